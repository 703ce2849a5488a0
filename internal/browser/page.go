package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"hypauto/internal/logging"
	"hypauto/internal/portal"
)

// readTimeout bounds CurrentURL and VisibleText, which take no context.
const readTimeout = 10 * time.Second

// Page adapts a rod page to portal.Page. CurrentURL and VisibleText read the
// live document on every call.
type Page struct {
	page  *rod.Page
	touch func()
}

// NewPage wraps a rod page.
func NewPage(p *rod.Page) *Page {
	return &Page{page: p}
}

func (p *Page) CurrentURL() string {
	page := p.reader()
	defer page.CancelTimeout()
	info, err := page.Info()
	if err != nil {
		logging.BrowserDebug("page info: %v", err)
		return ""
	}
	return info.URL
}

func (p *Page) VisibleText() string {
	page := p.reader()
	defer page.CancelTimeout()
	doc, err := page.HTML()
	if err != nil {
		logging.BrowserDebug("page html: %v", err)
		return ""
	}
	text, err := portal.TextFromHTML(strings.NewReader(doc))
	if err != nil {
		logging.BrowserDebug("text extraction: %v", err)
		return ""
	}
	return text
}

// reader detaches reads from whatever context the page was created with.
func (p *Page) reader() *rod.Page {
	return p.page.Context(context.Background()).Timeout(readTimeout)
}

func (p *Page) Locate(ctx context.Context, sel portal.Selector) ([]portal.Element, error) {
	page := p.page.Context(ctx)

	var (
		els rod.Elements
		err error
	)
	switch sel.By {
	case portal.ByCSS, portal.ByText:
		els, err = page.Elements(sel.Expr)
	case portal.ByXPath:
		els, err = page.ElementsX(sel.Expr)
	default:
		return nil, fmt.Errorf("unsupported selector %s", sel)
	}
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", sel, err)
	}

	out := make([]portal.Element, 0, len(els))
	want := portal.Fold(sel.Text)
	for _, el := range els {
		e := &Element{el: el, touch: p.touch}
		if sel.By == portal.ByText && !strings.Contains(portal.Fold(e.Text()), want) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Element adapts a rod element to portal.Element.
type Element struct {
	el    *rod.Element
	touch func()
}

func (e *Element) Text() string {
	t, err := e.el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}

func (e *Element) Value() string {
	v, err := e.el.Property("value")
	if err != nil || v.Nil() {
		return ""
	}
	return v.Str()
}

func (e *Element) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *Element) Checked() bool {
	v, err := e.el.Property("checked")
	if err != nil || v.Nil() {
		return false
	}
	return v.Bool()
}

func (e *Element) Visible() bool {
	ok, err := e.el.Visible()
	return err == nil && ok
}

func (e *Element) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		logging.BrowserDebug("scroll into view: %v", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		// Overlays sometimes intercept the pointer; fall back to a DOM click.
		if _, jsErr := el.Eval(`() => this.click()`); jsErr != nil {
			return fmt.Errorf("click: %w", err)
		}
	}
	e.active()
	return nil
}

func (e *Element) SetValue(ctx context.Context, v string) error {
	el := e.el.Context(ctx)
	tag, err := el.Property("tagName")
	if err == nil && strings.EqualFold(tag.Str(), "select") {
		if err := el.Select([]string{v}, true, rod.SelectorTypeText); err == nil {
			e.active()
			return nil
		}
		_, err := el.Eval(`(v) => {
			for (const o of this.options) {
				if (o.value === v || o.label === v) { this.value = o.value; break }
			}
			this.dispatchEvent(new Event('change', { bubbles: true }))
		}`, v)
		if err != nil {
			return fmt.Errorf("select %q: %w", v, err)
		}
		e.active()
		return nil
	}

	if _, err := el.Eval(`() => { this.value = '' }`); err != nil {
		return fmt.Errorf("clear input: %w", err)
	}
	if err := el.Input(v); err != nil {
		return fmt.Errorf("input %q: %w", v, err)
	}
	e.active()
	return nil
}

func (e *Element) active() {
	if e.touch != nil {
		e.touch()
	}
}
