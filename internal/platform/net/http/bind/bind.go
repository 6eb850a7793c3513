// Package bind decodes request bodies and runs the shared validator over them
package bind

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"

	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
)

// MaxBody caps a request body; solve requests carry a URL and a sitekey, nothing larger
const MaxBody int64 = 64 << 10

// Validator is the shared validator with its english translator
type Validator struct {
	v     *validator.Validate
	trans ut.Translator
}

var (
	once   sync.Once
	shared *Validator
)

var keyCharsRe = regexp.MustCompile(`^[0-9A-Za-z_-]*$`)

// short messages override the stock english ones
var messages = map[string]string{
	"min":      "{0} must be at least {1}",
	"max":      "{0} must be at most {1}",
	"keychars": "{0} may only contain letters, digits, '-' and '_'",
}

// Get returns the shared validator, building it on first use
func Get() *Validator {
	once.Do(func() { shared = build() })
	return shared
}

func build() *Validator {
	loc := en.New()
	trans, _ := ut.New(loc, loc).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = entrans.RegisterDefaultTranslations(v, trans)
	_ = v.RegisterValidation("keychars", func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && keyCharsRe.MatchString(s)
	})
	for tag, text := range messages {
		_ = v.RegisterTranslation(tag, trans,
			func(t ut.Translator) error { return t.Add(tag, text, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				msg, _ := t.T(tag, fe.Field(), fe.Param())
				return msg
			},
		)
	}
	return &Validator{v: v, trans: trans}
}

// jsonName reports fields by their wire name
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// Struct validates v. The first failing field becomes a Validation error carrying that field
func (s *Validator) Struct(v any) error {
	err := s.v.Struct(v)
	if err == nil {
		return nil
	}
	var inv *validator.InvalidValidationError
	if errors.As(err, &inv) {
		logger.Get().Error().Err(inv).Msg("validator misuse")
		return perr.Internalf("validation unavailable")
	}
	field, msg := s.first(err)
	return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "%s", msg), field)
}

func (s *Validator) first(err error) (field, msg string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field(), verrs[0].Translate(s.trans)
	}
	return "", err.Error()
}

// Validate is Get().Struct(v)
func Validate(v any) error { return Get().Struct(v) }

// ParseJSON decodes exactly one JSON value of type T from the body and validates it.
// Unknown fields, trailing data and an empty body are JSON errors
func ParseJSON[T any](r *http.Request) (T, error) {
	var zero, dst T
	if r.Body == nil || r.Body == http.NoBody {
		return zero, perr.JSONErrf("empty body")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, perr.JSONErrf("empty body")
		}
		return zero, perr.JSONErrf("invalid JSON: %v", err)
	}
	if dec.More() {
		return zero, perr.JSONErrf("unexpected trailing data")
	}
	if err := Validate(dst); err != nil {
		return zero, err
	}
	return dst, nil
}
