// Package portaltest provides a scripted in-memory portal.Page for tests.
// Elements are registered under selectors; click and set callbacks mutate the
// page to simulate view transitions.
package portaltest

import (
	"context"
	"fmt"

	"hypauto/internal/portal"
)

// Page is a fake portal page. Not safe for concurrent use.
type Page struct {
	URL  string
	Body string

	elements map[portal.Selector][]*Element
	actions  []string
}

// New returns a page showing body at url.
func New(url, body string) *Page {
	return &Page{URL: url, Body: body, elements: make(map[portal.Selector][]*Element)}
}

func (p *Page) CurrentURL() string  { return p.URL }
func (p *Page) VisibleText() string { return p.Body }

// Locate returns the registered elements for sel.
func (p *Page) Locate(ctx context.Context, sel portal.Selector) ([]portal.Element, error) {
	els := p.elements[sel]
	out := make([]portal.Element, 0, len(els))
	for _, e := range els {
		out = append(out, e)
	}
	return out, nil
}

// Show replaces the current view.
func (p *Page) Show(url, body string) {
	p.URL = url
	p.Body = body
}

// Add registers elements under sel, appending to existing ones.
func (p *Page) Add(sel portal.Selector, els ...*Element) {
	for _, e := range els {
		e.page = p
	}
	p.elements[sel] = append(p.elements[sel], els...)
}

// On registers elements under the locator's first strategy, replacing any
// elements previously registered there.
func (p *Page) On(loc portal.Locator, els ...*Element) {
	p.Remove(loc)
	p.Add(loc.Strategies[0], els...)
}

// Remove unregisters every element of the locator's strategies.
func (p *Page) Remove(loc portal.Locator) {
	for _, s := range loc.Strategies {
		delete(p.elements, s)
	}
}

// Actions returns the recorded interactions in order.
func (p *Page) Actions() []string {
	return append([]string(nil), p.actions...)
}

// Element is a fake rendered element.
type Element struct {
	Label     string
	Val       string
	Attrs     map[string]string
	IsChecked bool
	Hidden    bool

	// OnClick runs after a click. When nil, checkboxes toggle.
	OnClick func(p *Page, e *Element)
	// OnSet runs after SetValue.
	OnSet func(p *Page, e *Element, v string)

	Clicks int
	page   *Page
}

// Button returns an element labelled label that runs onClick.
func Button(label string, onClick func(p *Page, e *Element)) *Element {
	return &Element{Label: label, OnClick: onClick}
}

// Checkbox returns a checkbox labelled label with a data-test-name attribute.
func Checkbox(label string, checked bool) *Element {
	return &Element{
		Label:     label,
		IsChecked: checked,
		Attrs:     map[string]string{"type": "checkbox", "data-test-name": label},
	}
}

// Input returns a text input with the given value and attributes.
func Input(value string, attrs map[string]string) *Element {
	return &Element{Val: value, Attrs: attrs}
}

func (e *Element) Text() string  { return e.Label }
func (e *Element) Value() string { return e.Val }
func (e *Element) Checked() bool { return e.IsChecked }
func (e *Element) Visible() bool { return !e.Hidden }

func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

func (e *Element) Click(ctx context.Context) error {
	e.Clicks++
	if e.page != nil {
		e.page.actions = append(e.page.actions, "click "+e.Label)
	}
	if e.OnClick != nil {
		e.OnClick(e.page, e)
		return nil
	}
	if e.Attrs["type"] == "checkbox" || e.Attrs["type"] == "radio" {
		if e.Attrs["type"] == "radio" {
			e.IsChecked = true
		} else {
			e.IsChecked = !e.IsChecked
		}
	}
	return nil
}

func (e *Element) SetValue(ctx context.Context, v string) error {
	e.Val = v
	if e.page != nil {
		e.page.actions = append(e.page.actions, fmt.Sprintf("set %s=%s", e.Label, v))
	}
	if e.OnSet != nil {
		e.OnSet(e.page, e, v)
	}
	return nil
}
