package detector

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"

	"turnstiled/internal/core/dom"
	"turnstiled/internal/core/rulepack"
)

// Fallback inspects a DOM snapshot. It needs no rule pack, so it keeps working when
// the primary engine could not load its rules
type Fallback struct{}

// NewFallback returns the DOM engine
func NewFallback() *Fallback { return &Fallback{} }

var iframeKey = regexp.MustCompile(`/([0-3]x[0-9A-Za-z_-]{22})(?:/|$|\?)`)

// fallbackScan accumulates evidence across methods
type fallbackScan struct {
	res   Result
	cats  map[string]struct{}
	tiers []rulepack.Tier
	keys  map[string]struct{}
}

func (s *fallbackScan) fire(method string, tier rulepack.Tier, category string, sel *goquery.Selection, attrs func(*goquery.Selection) map[string]string) {
	if sel.Length() == 0 {
		return
	}
	s.res.Rules = append(s.res.Rules, "fallback."+method)
	s.cats[category] = struct{}{}
	s.tiers = append(s.tiers, tier)
	sel.Each(func(_ int, n *goquery.Selection) {
		el := Element{
			Method:   method,
			Tag:      goquery.NodeName(n),
			Selector: dom.Describe(n),
			Visible:  dom.Visible(n),
		}
		if attrs != nil {
			el.Attrs = attrs(n)
		}
		s.res.Elements = append(s.res.Elements, el)
	})
}

// key records k when it has the public sitekey shape; template text stays in Element.Attrs only
func (s *fallbackScan) key(k string) {
	k = strings.TrimSpace(k)
	if !IsSitekeyShape(k) {
		return
	}
	if _, dup := s.keys[k]; dup {
		return
	}
	s.keys[k] = struct{}{}
	s.res.Sitekeys = append(s.res.Sitekeys, k)
}

// Scan runs every DOM method over html. Keys come from well-shaped data-sitekey attributes
// and from challenge iframe paths, in document order
func (f *Fallback) Scan(html string) Result {
	s := &fallbackScan{
		res:  Result{Source: SourceFallback, Categories: []string{}, Sitekeys: []string{}, Rules: []string{}},
		cats: map[string]struct{}{},
		keys: map[string]struct{}{},
	}
	if strings.TrimSpace(html) == "" {
		return s.res
	}
	doc, err := dom.Parse(html)
	if err != nil {
		return s.res
	}
	// Casers are stateful; one per scan
	fold := cases.Fold()
	mentions := func(text string) bool {
		return strings.Contains(fold.String(text), "turnstile")
	}

	// data-sitekey anywhere
	containers := doc.Find("[data-sitekey]")
	s.fire("data_sitekey", rulepack.TierHigh, "turnstile_widget", containers, dom.DataAttrs)
	containers.Each(func(_ int, n *goquery.Selection) {
		v, _ := n.Attr("data-sitekey")
		s.key(v)
	})

	// response inputs
	responses := doc.Find(`input[name="cf-turnstile-response"], input[id*="cf-chl-widget"]`)
	s.fire("response_token", rulepack.TierHigh, "turnstile_response", responses, func(n *goquery.Selection) map[string]string {
		v, _ := n.Attr("value")
		return map[string]string{"name": n.AttrOr("name", ""), "id": n.AttrOr("id", ""), "has_value": strconv.FormatBool(v != "")}
	})

	// challenge iframes
	iframes := doc.Find(`iframe[src*="challenges.cloudflare.com"], iframe[src*="turnstile"]`)
	s.fire("iframe", rulepack.TierHigh, "turnstile_iframe", iframes, func(n *goquery.Selection) map[string]string {
		return map[string]string{"src": n.AttrOr("src", ""), "title": n.AttrOr("title", ""), "name": n.AttrOr("name", "")}
	})
	iframes.Each(func(_ int, n *goquery.Selection) {
		if m := iframeKey.FindStringSubmatch(n.AttrOr("src", "")); m != nil {
			s.key(m[1])
		}
	})

	// loader scripts
	scripts := doc.Find(`script[src*="turnstile"], script[src*="challenges.cloudflare.com"]`)
	s.fire("script", rulepack.TierMedium, "turnstile_api", scripts, func(n *goquery.Selection) map[string]string {
		_, async := n.Attr("async")
		_, deferred := n.Attr("defer")
		return map[string]string{"src": n.AttrOr("src", ""), "async": strconv.FormatBool(async), "defer": strconv.FormatBool(deferred)}
	})

	// inline API usage
	inline := doc.Find("script:not([src])")
	s.fire("javascript_api", rulepack.TierHigh, "turnstile_api", inline.FilterFunction(func(_ int, n *goquery.Selection) bool {
		t := n.Text()
		return strings.Contains(t, "window.turnstile") || strings.Contains(t, "turnstile.render")
	}), nil)
	s.fire("callback_function", rulepack.TierMedium, "turnstile_api", inline.FilterFunction(func(_ int, n *goquery.Selection) bool {
		return strings.Contains(n.Text(), "onloadTurnstileCallback")
	}), nil)

	// visible text plus turnstile-named nodes
	if mentions(doc.Find("body").Text()) {
		s.fire("text_content", rulepack.TierLow, "turnstile_widget", doc.Find(`[class*="turnstile"], [id*="turnstile"]`), idClass)
	}

	// generic challenge markup that carries a key or mentions the widget
	for _, p := range []string{"cf-", "cloudflare", "challenge"} {
		hit := doc.Find(`[class*="` + p + `"], [id*="` + p + `"]`).FilterFunction(func(_ int, n *goquery.Selection) bool {
			if _, ok := n.Attr("data-sitekey"); ok {
				return true
			}
			inner, _ := n.Html()
			return mentions(n.Text()) || strings.Contains(inner, "turnstile")
		}).First()
		if hit.Length() > 0 {
			s.fire("pattern_match", rulepack.TierMedium, "cloudflare_challenge", hit, idClass)
			break
		}
	}

	if len(s.res.Sitekeys) > 0 {
		s.cats["captcha_sitekey"] = struct{}{}
	}
	if len(s.res.Rules) == 0 {
		return s.res
	}
	s.res.Found = true
	s.res.Confidence = Confidence(s.tiers)
	for c := range s.cats {
		s.res.Categories = append(s.res.Categories, c)
	}
	sort.Strings(s.res.Categories)
	return s.res
}

func idClass(n *goquery.Selection) map[string]string {
	return map[string]string{"id": n.AttrOr("id", ""), "class": n.AttrOr("class", "")}
}
