// Package rulepack loads and compiles Turnstile signature rules.
// The embedded rules.json is the default; LoadFile accepts an external YAML or JSON pack
package rulepack

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	perr "turnstiled/internal/platform/errors"
)

//go:embed rules.json
var embedded []byte

// Tier is the evidential weight of a rule
type Tier string

const (
	// TierHigh is strong, hard to fake evidence (widget container, response field, iframe)
	TierHigh Tier = "high"
	// TierMedium is supporting evidence (api script, demo keys)
	TierMedium Tier = "medium"
	// TierLow is circumstantial evidence (network hints, config attributes)
	TierLow Tier = "low"
)

// Weight returns the probability mass a fired rule of this tier contributes
func (t Tier) Weight() float64 {
	switch t {
	case TierHigh:
		return 0.85
	case TierMedium:
		return 0.50
	case TierLow:
		return 0.20
	default:
		return 0
	}
}

// Kind is the matcher flavor
type Kind string

const (
	// KindLiteral is a plain substring
	KindLiteral Kind = "literal"
	// KindRegex is an RE2 expression; capture group 1 (if any) is the extracted value
	KindRegex Kind = "regex"
)

type rawMatcher struct {
	ID     string `json:"id" yaml:"id"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Value  string `json:"value" yaml:"value"`
	NoCase bool   `json:"nocase,omitempty" yaml:"nocase,omitempty"`
}

type rawRule struct {
	ID          string       `json:"id" yaml:"id"`
	Category    string       `json:"category" yaml:"category"`
	Tier        Tier         `json:"tier" yaml:"tier"`
	Sitekeys    bool         `json:"sitekeys,omitempty" yaml:"sitekeys,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Matchers    []rawMatcher `json:"matchers" yaml:"matchers"`
	Groups      [][]string   `json:"groups,omitempty" yaml:"groups,omitempty"`
}

type rawPack struct {
	Version int       `json:"version" yaml:"version"`
	Rules   []rawRule `json:"rules" yaml:"rules"`
}

// Matcher is a compiled literal or regex
type Matcher struct {
	ID     string
	Kind   Kind
	Value  string
	NoCase bool
	Re     *regexp.Regexp // nil for literals
}

// Rule is an immutable compiled signature rule
type Rule struct {
	ID          string
	Category    string
	Tier        Tier
	Sitekeys    bool // matched text is a sitekey candidate
	Description string
	Matchers    []Matcher
	// Groups holds matcher indexes: every matcher in a group must hit (AND),
	// any group firing fires the rule (OR). Empty means any single matcher
	Groups [][]int
}

// Pack is a compiled rule table
type Pack struct {
	Version int
	Rules   []Rule
}

// Load returns the compiled pack from the embedded rules.json
func Load() (*Pack, error) {
	return Parse(embedded, "json")
}

// LoadFile compiles an external pack; .yaml and .yml are read as YAML, everything else as JSON
func LoadFile(path string) (*Pack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDetection, "rulepack: read %s", path)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Parse(b, format)
}

// LoadOrEmbedded loads path when set, otherwise the embedded pack
func LoadOrEmbedded(path string) (*Pack, error) {
	if strings.TrimSpace(path) == "" {
		return Load()
	}
	return LoadFile(path)
}

// Parse compiles raw pack bytes in the given format ("json" or "yaml")
func Parse(b []byte, format string) (*Pack, error) {
	var rp rawPack
	var err error
	switch format {
	case "yaml":
		err = yaml.Unmarshal(b, &rp)
	default:
		err = json.Unmarshal(b, &rp)
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDetection, "rulepack: parse %s", format)
	}
	if rp.Version != 1 {
		return nil, perr.Detectionf("rulepack: unsupported version %d (want 1)", rp.Version)
	}
	if len(rp.Rules) == 0 {
		return nil, perr.Detectionf("rulepack: no rules")
	}

	p := &Pack{Version: rp.Version, Rules: make([]Rule, 0, len(rp.Rules))}
	seen := make(map[string]struct{}, len(rp.Rules))
	for _, r := range rp.Rules {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return nil, perr.Detectionf("rulepack: rule without id")
		}
		if _, dup := seen[id]; dup {
			return nil, perr.Detectionf("rulepack: duplicate rule id %q", id)
		}
		seen[id] = struct{}{}

		rule, err := compileRule(id, r)
		if err != nil {
			return nil, err
		}
		p.Rules = append(p.Rules, rule)
	}

	// Deterministic iteration for tests/debug
	sort.Slice(p.Rules, func(i, j int) bool { return p.Rules[i].ID < p.Rules[j].ID })
	return p, nil
}

func compileRule(id string, r rawRule) (Rule, error) {
	switch r.Tier {
	case TierHigh, TierMedium, TierLow:
	default:
		return Rule{}, perr.Detectionf("rulepack: rule %q: unknown tier %q", id, r.Tier)
	}
	if strings.TrimSpace(r.Category) == "" {
		return Rule{}, perr.Detectionf("rulepack: rule %q: empty category", id)
	}
	if len(r.Matchers) == 0 {
		return Rule{}, perr.Detectionf("rulepack: rule %q: no matchers", id)
	}

	out := Rule{
		ID:          id,
		Category:    r.Category,
		Tier:        r.Tier,
		Sitekeys:    r.Sitekeys,
		Description: r.Description,
		Matchers:    make([]Matcher, 0, len(r.Matchers)),
	}
	index := make(map[string]int, len(r.Matchers))
	for i, m := range r.Matchers {
		mid := strings.TrimSpace(m.ID)
		if mid == "" {
			mid = string(rune('a' + i%26))
		}
		if _, dup := index[mid]; dup {
			return Rule{}, perr.Detectionf("rulepack: rule %q: duplicate matcher %q", id, mid)
		}
		if m.Value == "" {
			return Rule{}, perr.Detectionf("rulepack: rule %q: matcher %q has empty value", id, mid)
		}
		cm := Matcher{ID: mid, Kind: m.Kind, Value: m.Value, NoCase: m.NoCase}
		switch m.Kind {
		case KindLiteral:
		case KindRegex:
			expr := m.Value
			if m.NoCase {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return Rule{}, perr.Wrapf(err, perr.ErrorCodeDetection, "rulepack: rule %q: compile %q", id, m.Value)
			}
			cm.Re = re
		default:
			return Rule{}, perr.Detectionf("rulepack: rule %q: matcher %q unknown kind %q", id, mid, m.Kind)
		}
		index[mid] = len(out.Matchers)
		out.Matchers = append(out.Matchers, cm)
	}

	for gi, g := range r.Groups {
		if len(g) == 0 {
			return Rule{}, perr.Detectionf("rulepack: rule %q: group %d is empty", id, gi)
		}
		idx := make([]int, 0, len(g))
		for _, name := range g {
			i, ok := index[strings.TrimSpace(name)]
			if !ok {
				return Rule{}, perr.Detectionf("rulepack: rule %q: group %d names unknown matcher %q", id, gi, name)
			}
			idx = append(idx, i)
		}
		out.Groups = append(out.Groups, idx)
	}
	return out, nil
}

// Fires evaluates the rule predicate given which matchers hit
func (r Rule) Fires(hit []bool) bool {
	if len(r.Groups) == 0 {
		for _, h := range hit {
			if h {
				return true
			}
		}
		return false
	}
	for _, g := range r.Groups {
		all := true
		for _, i := range g {
			if i >= len(hit) || !hit[i] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Categories returns the sorted set of categories declared by the pack
func (p *Pack) Categories() []string {
	set := make(map[string]struct{}, len(p.Rules))
	for _, r := range p.Rules {
		set[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Rule returns a rule by id
func (p *Pack) Rule(id string) (Rule, bool) {
	i := sort.Search(len(p.Rules), func(i int) bool { return p.Rules[i].ID >= id })
	if i < len(p.Rules) && p.Rules[i].ID == id {
		return p.Rules[i], true
	}
	return Rule{}, false
}
