package portal

import (
	"context"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var asciiFold = strings.NewReplacer(
	"İ", "I", "Ş", "S", "Ğ", "G", "Ü", "U", "Ö", "O", "Ç", "C",
	"Â", "A", "Î", "I", "Û", "U",
)

// Fold upper-cases s with Turkish casing rules, strips Turkish diacritics and
// collapses whitespace, so "İzlem", "izlem" and "IZLEM" compare equal.
func Fold(s string) string {
	s = strings.ToUpperSpecial(unicode.TurkishCase, s)
	s = asciiFold.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// TextFromHTML returns the human-visible text of an HTML document: scripts,
// styles and hidden elements are skipped and block elements end a line.
func TextFromHTML(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	extractText(doc, &sb, 0)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 200 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "head":
			return
		}
		if isHidden(n) {
			return
		}
		if n.Data == "input" {
			if v := getAttr(n, "value"); v != "" && getAttr(n, "type") != "hidden" {
				sb.WriteString(v)
				sb.WriteString(" ")
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "tr", "br", "h1", "h2", "h3", "h4", "h5", "h6", "label", "section", "table":
			sb.WriteString("\n")
		}
	}
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// HTMLPage is a read-only snapshot of a saved page, used to replay
// classification offline.
type HTMLPage struct {
	url  string
	text string
}

// NewHTMLPage parses document and returns a snapshot page at url.
func NewHTMLPage(url string, document io.Reader) (*HTMLPage, error) {
	text, err := TextFromHTML(document)
	if err != nil {
		return nil, err
	}
	return &HTMLPage{url: url, text: text}, nil
}

func (p *HTMLPage) CurrentURL() string  { return p.url }
func (p *HTMLPage) VisibleText() string { return p.text }

// Locate always fails: a snapshot has no live elements.
func (p *HTMLPage) Locate(ctx context.Context, sel Selector) ([]Element, error) {
	return nil, ErrReadOnly
}
