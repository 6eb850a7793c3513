// Package sitekey classifies Turnstile sitekey candidates as valid, demo, fake or unknown.
// Validate is pure and total: every input string gets a verdict and a reason
package sitekey

import (
	"math"
	"regexp"
	"strings"
)

// Kind is the verdict class
type Kind string

const (
	// KindValid has the standard shape and no placeholder traits
	KindValid Kind = "valid"
	// KindDemo is a documented test key; the widget answers it without a real challenge
	KindDemo Kind = "demo"
	// KindFake is a placeholder, malformed or obviously synthetic value
	KindFake Kind = "fake"
	// KindUnknown has a plausible prefix but a non-standard length
	KindUnknown Kind = "unknown"
)

// Type refines the verdict
const (
	TypeProduction  = "production"
	TypeDevelopment = "development"
	TypeTest        = "test"
	TypePlaceholder = "placeholder"
	TypeMalformed   = "malformed"
	TypeNonStandard = "nonstandard"
)

// SuffixLen is the character count after the two character prefix of a standard key
const SuffixLen = 22

// Verdict is the classification of one candidate
type Verdict struct {
	Raw         string  `json:"sitekey"`
	Kind        Kind    `json:"verdict"`
	Type        string  `json:"type"`
	Reason      string  `json:"reason"`
	Prefix      string  `json:"prefix,omitempty"`
	SuffixLen   int     `json:"suffix_len"`
	Entropy     float64 `json:"entropy,omitempty"`
	Confidence  int     `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// Usable reports whether the key is worth sending to a solver
func (v Verdict) Usable() bool { return v.Kind == KindValid || v.Kind == KindUnknown }

// Demo keys published for integration testing
var demoKeys = map[string]string{
	"1x00000000000000000000AA": "always passes (visible)",
	"2x00000000000000000000AB": "always blocks (visible)",
	"3x00000000000000000000FF": "always passes (invisible)",
	"1x00000000000000000000BB": "always passes (interactive)",
	"2x00000000000000000000BB": "always blocks (interactive)",
}

// DemoKeys returns the documented test keys in a stable order
func DemoKeys() []string {
	return []string{
		"1x00000000000000000000AA",
		"2x00000000000000000000AB",
		"3x00000000000000000000FF",
		"1x00000000000000000000BB",
		"2x00000000000000000000BB",
	}
}

// IsDemo reports whether s is a documented test key
func IsDemo(s string) bool {
	_, ok := demoKeys[s]
	return ok
}

var placeholders = map[string]struct{}{
	"YOUR_SITE_KEY": {}, "YOUR-SITE-KEY": {}, "YOURSITEKEY": {}, "SITEKEY": {}, "SITE_KEY": {},
	"PLACEHOLDER": {}, "EXAMPLE": {}, "TEST_KEY": {}, "DEMO": {}, "FAKE": {},
	"NULL": {}, "UNDEFINED": {}, "NONE": {}, "0X4AAAAAAA": {},
}

var (
	keywordRe = regexp.MustCompile(`(?i)(TEST|FAKE|DEMO|EXAMPLE|PLACEHOLDER|YOUR_?SITE_?KEY)`)
	hexWordRe = regexp.MustCompile(`(?i)(?:DEAD|BEEF|CAFE|FACE|BABE|FADE){4,}`)
	charsetRe = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)
)

// fakeRule inspects the suffix of a prefixed key; it runs before the 2x/3x test families
type fakeRule struct {
	reason string
	match  func(suffix string) bool
}

var fakeRules = []fakeRule{
	{"mostly zeros", func(s string) bool {
		return strings.HasPrefix(s, strings.Repeat("0", 20)) || strings.HasSuffix(s, strings.Repeat("0", 20))
	}},
	{"only the 4AAAAAAA family marker", func(s string) bool {
		return strings.HasPrefix(strings.ToUpper(s), "4AAAAAAA") && strings.Trim(strings.ToUpper(s[1:]), "A") == ""
	}},
	{"single repeated character", func(s string) bool { return repeats(s, 1) }},
	{"short repeating pattern", func(s string) bool { return repeats(s, 2) || repeats(s, 3) || repeats(s, 4) }},
	{"sequential hex run", func(s string) bool {
		u := strings.ToUpper(s)
		return strings.HasPrefix(u, "123456789ABCDEF") ||
			strings.Contains(u, "0123456789ABCDEF") ||
			strings.Contains(u, "FEDCBA9876543210")
	}},
	{"only digits", func(s string) bool { return len(s) >= 20 && strings.Trim(s, "0123456789") == "" }},
	{"hex test words", hexWordRe.MatchString},
	{"test keyword", keywordRe.MatchString},
}

// repeats reports whether s is one unit of length n repeated at least twice with nothing left over
func repeats(s string, n int) bool {
	if len(s) < 2*n || len(s)%n != 0 {
		return false
	}
	unit := strings.ToUpper(s[:n])
	return strings.Repeat(unit, len(s)/n) == strings.ToUpper(s)
}

// Validate classifies a raw candidate
func Validate(raw string) Verdict {
	v := Verdict{Raw: raw}
	s := strings.TrimSpace(raw)

	if desc, ok := demoKeys[s]; ok {
		v.Kind, v.Type, v.Prefix, v.SuffixLen = KindDemo, TypeTest, s[:2], len(s)-2
		v.Reason = "documented test key"
		v.Description = desc
		v.Confidence = 100
		return v
	}

	if s == "" {
		return fake(v, TypePlaceholder, "empty sitekey", 100)
	}
	if _, ok := placeholders[strings.ToUpper(s)]; ok {
		return fake(v, TypePlaceholder, "placeholder text", 95)
	}

	prefix := ""
	if len(s) >= 2 && strings.EqualFold(s[1:2], "x") && s[0] >= '0' && s[0] <= '3' {
		prefix = strings.ToLower(s[:2])
	}
	if prefix == "" {
		if keywordRe.MatchString(s) {
			return fake(v, TypePlaceholder, "placeholder text", 95)
		}
		return fake(v, TypeMalformed, "missing 0x/1x/2x/3x prefix", 100)
	}
	v.Prefix = prefix
	suffix := s[2:]
	v.SuffixLen = len(suffix)

	if !charsetRe.MatchString(suffix) {
		return fake(v, TypeMalformed, "characters outside the sitekey alphabet", 100)
	}

	for _, r := range fakeRules {
		if r.match(suffix) {
			return fake(v, TypePlaceholder, r.reason, 90)
		}
	}

	switch prefix {
	case "2x", "3x":
		v.Kind, v.Type = KindDemo, TypeTest
		v.Reason = "test key family " + prefix
		v.Confidence = 80
		return v
	}

	if len(s) < 20 {
		return fake(v, TypeMalformed, "too short for a sitekey", 100)
	}

	if len(suffix) != SuffixLen {
		v.Kind, v.Type = KindUnknown, TypeNonStandard
		v.Reason = "non-standard length"
		v.Entropy = Entropy(suffix)
		v.Confidence = 30
		return v
	}

	v.Kind = KindValid
	v.Type = TypeProduction
	if prefix == "0x" {
		v.Type = TypeDevelopment
	}
	v.Entropy = Entropy(suffix)
	v.Confidence = min(50+int(v.Entropy*50), 95)
	v.Reason = "standard shape"
	if v.Entropy < 0.5 {
		v.Reason = "standard shape, low entropy"
		v.Confidence -= 20
	}
	return v
}

func fake(v Verdict, typ, reason string, conf int) Verdict {
	v.Kind, v.Type, v.Reason, v.Confidence = KindFake, typ, reason, conf
	return v
}

// Entropy is the Shannon entropy of s normalized to [0,1] by the maximum reachable for its length
func Entropy(s string) float64 {
	if len(s) < 2 {
		return 0
	}
	counts := make(map[byte]int, len(s))
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	n := float64(len(s))
	h := 0.0
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	maxH := math.Log2(math.Min(n, 64))
	if maxH == 0 {
		return 0
	}
	return math.Round(h/maxH*1000) / 1000
}

// ValidateAll classifies candidates preserving order
func ValidateAll(keys []string) []Verdict {
	out := make([]Verdict, 0, len(keys))
	for _, k := range keys {
		out = append(out, Validate(k))
	}
	return out
}

// Pick returns the candidate a solver should use: the first valid key, then the first
// unknown, then the first demo, then the first of anything
func Pick(vs []Verdict) (Verdict, bool) {
	if len(vs) == 0 {
		return Verdict{}, false
	}
	for _, want := range []Kind{KindValid, KindUnknown, KindDemo} {
		for _, v := range vs {
			if v.Kind == want {
				return v, true
			}
		}
	}
	return vs[0], true
}
