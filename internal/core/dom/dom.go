// Package dom holds goquery helpers shared by the fallback detector and the static page handle.
// Visibility is approximated from markup alone: no layout or stylesheet evaluation happens here
package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	perr "turnstiled/internal/platform/errors"
)

// WidgetAttrs are the data attributes a Turnstile container may carry
var WidgetAttrs = []string{
	"data-sitekey",
	"data-action",
	"data-cdata",
	"data-theme",
	"data-size",
	"data-callback",
	"data-error-callback",
	"data-expired-callback",
	"data-timeout-callback",
	"data-before-interactive-callback",
	"data-after-interactive-callback",
	"data-unsupported-callback",
	"data-tabindex",
	"data-response-field",
	"data-response-field-name",
	"data-appearance",
	"data-execution",
	"data-refresh-expired",
	"data-retry",
	"data-retry-interval",
	"data-language",
}

// Parse builds a document from an HTML snapshot
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "dom: parse html")
	}
	return doc, nil
}

// Visible reports whether the first node of sel and all its ancestors are rendered.
// Hidden inputs, the hidden attribute and inline display:none / visibility:hidden hide a node
func Visible(sel *goquery.Selection) bool {
	if sel == nil || sel.Length() == 0 {
		return false
	}
	node := sel.First()
	if goquery.NodeName(node) == "input" {
		if t, _ := node.Attr("type"); strings.EqualFold(strings.TrimSpace(t), "hidden") {
			return false
		}
	}
	for cur := node; cur.Length() > 0; cur = cur.Parent() {
		if hiddenNode(cur) {
			return false
		}
	}
	return true
}

func hiddenNode(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style, ok := s.Attr("style")
	if !ok {
		return false
	}
	compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(compact, "display:none") ||
		strings.Contains(compact, "visibility:hidden")
}

// DataAttrs returns the widget data attributes present on the first node of sel
func DataAttrs(sel *goquery.Selection) map[string]string {
	out := map[string]string{}
	node := sel.First()
	for _, a := range WidgetAttrs {
		if v, ok := node.Attr(a); ok {
			out[a] = v
		}
	}
	return out
}

// Describe renders a short css-ish selector for the first node of sel (tag#id.class1.class2)
func Describe(sel *goquery.Selection) string {
	node := sel.First()
	var b strings.Builder
	b.WriteString(goquery.NodeName(node))
	if id, ok := node.Attr("id"); ok && strings.TrimSpace(id) != "" {
		b.WriteString("#")
		b.WriteString(strings.TrimSpace(id))
	}
	if cls, ok := node.Attr("class"); ok {
		for _, c := range strings.Fields(cls) {
			b.WriteString(".")
			b.WriteString(c)
		}
	}
	return b.String()
}

// Render serializes the document back to HTML
func Render(doc *goquery.Document) (string, error) {
	html, err := doc.Html()
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeUnknown, "dom: render html")
	}
	return html, nil
}
