// Package detector recognizes an embedded Turnstile challenge in page content.
// The primary engine evaluates a compiled rule pack over raw content; the fallback
// engine inspects a DOM snapshot with goquery when the primary is unavailable or silent
package detector

import (
	"context"
	"regexp"
	"sort"

	"turnstiled/internal/core/rulepack"
	perr "turnstiled/internal/platform/errors"
)

// Source tags which engine produced a Result
type Source string

const (
	// SourcePrimary is the rule pack engine
	SourcePrimary Source = "primary"
	// SourceFallback is the DOM snapshot engine
	SourceFallback Source = "fallback"
)

// Match is one matcher hit of a fired rule. Offset is a byte offset into the scanned content
type Match struct {
	RuleID   string `json:"rule_id"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Offset   int    `json:"offset"`
}

// Element is a DOM node the fallback engine matched
type Element struct {
	Method   string            `json:"method"`
	Tag      string            `json:"tag"`
	Selector string            `json:"selector"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Visible  bool              `json:"visible"`
}

// Result is the outcome of one scan. Built fresh per call and never mutated afterwards
type Result struct {
	Source     Source    `json:"source"`
	Found      bool      `json:"found"`
	Confidence int       `json:"confidence"`
	Categories []string  `json:"categories"`
	Sitekeys   []string  `json:"sitekeys"`
	Rules      []string  `json:"rules"`
	Matches    []Match   `json:"matches,omitempty"`
	Elements   []Element `json:"elements,omitempty"`
}

// HasCategory reports whether c fired
func (r Result) HasCategory(c string) bool {
	i := sort.SearchStrings(r.Categories, c)
	return i < len(r.Categories) && r.Categories[i] == c
}

// Options controls engine behavior
type Options struct {
	// MaxMatches caps emitted matches (0 = no cap). Sitekeys and categories are never capped
	MaxMatches int
}

// DOMSource supplies a live DOM snapshot as HTML for the fallback engine
type DOMSource func(ctx context.Context) (string, error)

// litRef ties an automaton pattern back to its rule and matcher
type litRef struct {
	rule    int
	matcher int
	value   string
	noCase  bool
}

// Engine evaluates rules. Safe for concurrent use; all state is read-only after construction
type Engine struct {
	pack     *rulepack.Pack
	opts     Options
	lits     *trie
	refs     []litRef
	err      error
	fallback *Fallback
}

// New builds an engine over a compiled pack
func New(p *rulepack.Pack, opts Options) *Engine {
	e := &Engine{pack: p, opts: opts, fallback: NewFallback()}
	if p == nil {
		e.err = perr.Detectionf("detector: nil rule pack")
		return e
	}
	e.lits = newTrie()
	for ri, r := range p.Rules {
		for mi, m := range r.Matchers {
			if m.Kind != rulepack.KindLiteral {
				continue
			}
			e.lits.add(foldASCII(m.Value), len(e.refs))
			e.refs = append(e.refs, litRef{rule: ri, matcher: mi, value: m.Value, noCase: m.NoCase})
		}
	}
	e.lits.compile()
	return e
}

// NewFromLoader calls load once. A load failure disables the primary engine for the
// lifetime of the returned engine and every Detect goes to the fallback
func NewFromLoader(load func() (*rulepack.Pack, error), opts Options) *Engine {
	p, err := load()
	if err != nil {
		return &Engine{opts: opts, err: perr.Wrap(err, perr.ErrorCodeDetection, "detector: rule pack unavailable"), fallback: NewFallback()}
	}
	return New(p, opts)
}

// Err reports why the primary engine is disabled, nil when it is enabled
func (e *Engine) Err() error { return e.err }

// Enabled reports whether the primary engine can scan
func (e *Engine) Enabled() bool { return e.err == nil }

// Fallback exposes the DOM engine
func (e *Engine) Fallback() *Fallback { return e.fallback }

// Ping reports the primary engine state; readiness probes call it
func (e *Engine) Ping(context.Context) error { return e.err }

// PackInfo returns the loaded pack version and rule count, zeros when disabled
func (e *Engine) PackInfo() (version, rules int) {
	if e.pack == nil {
		return 0, 0
	}
	return e.pack.Version, len(e.pack.Rules)
}

type span struct {
	start, end       int
	capStart, capEnd int // -1 when the matcher has no capture group
}

// Scan evaluates every rule independently over content. Deterministic and pure
func (e *Engine) Scan(content string) Result {
	res := Result{Source: SourcePrimary, Categories: []string{}, Sitekeys: []string{}, Rules: []string{}}
	if !e.Enabled() || content == "" {
		return res
	}

	rules := e.pack.Rules
	spans := make([][][]span, len(rules))
	for i, r := range rules {
		spans[i] = make([][]span, len(r.Matchers))
	}

	// Stage A: literals through the automaton
	for end, id := range e.lits.matches(foldASCII(content)) {
		ref := e.refs[id]
		start := end - len(ref.value)
		if !ref.noCase && content[start:end] != ref.value {
			continue
		}
		spans[ref.rule][ref.matcher] = append(spans[ref.rule][ref.matcher], span{start: start, end: end, capStart: -1, capEnd: -1})
	}

	// Stage B: regex matchers per rule
	for ri, r := range rules {
		for mi, m := range r.Matchers {
			if m.Re == nil {
				continue
			}
			for _, loc := range m.Re.FindAllStringSubmatchIndex(content, -1) {
				sp := span{start: loc[0], end: loc[1], capStart: -1, capEnd: -1}
				if len(loc) >= 4 && loc[2] >= 0 {
					sp.capStart, sp.capEnd = loc[2], loc[3]
				}
				spans[ri][mi] = append(spans[ri][mi], sp)
			}
		}
	}

	type keyAt struct {
		key    string
		offset int
	}
	var (
		keys    []keyAt
		cats    = map[string]struct{}{}
		tiers   []rulepack.Tier
		matches []Match
	)
	for ri, r := range rules {
		hit := make([]bool, len(r.Matchers))
		for mi := range r.Matchers {
			hit[mi] = len(spans[ri][mi]) > 0
		}
		if !r.Fires(hit) {
			continue
		}
		res.Rules = append(res.Rules, r.ID)
		cats[r.Category] = struct{}{}
		tiers = append(tiers, r.Tier)

		for mi := range r.Matchers {
			for _, sp := range spans[ri][mi] {
				matches = append(matches, Match{RuleID: r.ID, Category: r.Category, Text: content[sp.start:sp.end], Offset: sp.start})
				if !r.Sitekeys {
					continue
				}
				s, en := sp.start, sp.end
				if sp.capStart >= 0 {
					s, en = sp.capStart, sp.capEnd
				}
				if cand := content[s:en]; sitekeyShape.MatchString(cand) {
					keys = append(keys, keyAt{key: cand, offset: s})
				}
			}
		}
	}

	if len(res.Rules) == 0 {
		return res
	}
	res.Found = true
	res.Confidence = Confidence(tiers)

	for c := range cats {
		res.Categories = append(res.Categories, c)
	}
	sort.Strings(res.Categories)

	sort.SliceStable(keys, func(i, j int) bool { return keys[i].offset < keys[j].offset })
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k.key]; dup {
			continue
		}
		seen[k.key] = struct{}{}
		res.Sitekeys = append(res.Sitekeys, k.key)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Offset != matches[j].Offset {
			return matches[i].Offset < matches[j].Offset
		}
		return matches[i].RuleID < matches[j].RuleID
	})
	matches = dedupeMatches(matches)
	if e.opts.MaxMatches > 0 && len(matches) > e.opts.MaxMatches {
		matches = matches[:e.opts.MaxMatches]
	}
	res.Matches = matches
	return res
}

// Detect runs the primary engine and falls back to a DOM snapshot when the primary is
// disabled or finds nothing. The error is non-nil only when no engine could run
func (e *Engine) Detect(ctx context.Context, content string, dom DOMSource) (Result, error) {
	var primary Result
	if e.Enabled() {
		primary = e.Scan(content)
		if primary.Found {
			return primary, nil
		}
	}
	if dom == nil {
		if !e.Enabled() {
			return Result{Source: SourceFallback, Categories: []string{}, Sitekeys: []string{}, Rules: []string{}}, e.err
		}
		return primary, nil
	}
	html, err := dom(ctx)
	if err != nil {
		if !e.Enabled() {
			return Result{Source: SourceFallback, Categories: []string{}, Sitekeys: []string{}, Rules: []string{}}, perr.Wrap(err, perr.ErrorCodeDetection, "detector: dom snapshot")
		}
		return primary, nil
	}
	return e.fallback.Scan(html), nil
}

// sitekeyShape is the public key format: a family prefix and 22 url-safe characters
var sitekeyShape = regexp.MustCompile(`(?i)^[0-3]x[0-9a-z_-]{22}$`)

// IsSitekeyShape reports whether s has the standard sitekey shape
func IsSitekeyShape(s string) bool { return sitekeyShape.MatchString(s) }

func dedupeMatches(in []Match) []Match {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, m := range in[1:] {
		last := out[len(out)-1]
		if m == last {
			continue
		}
		out = append(out, m)
	}
	return out
}
