// Package portal abstracts the remote clinical UI behind three primitives:
// Locate, CurrentURL and VisibleText. Classification is a pure function of the
// latter two; handlers act through Elements returned by Locate.
//
// The browser package provides the rod-backed implementation; portaltest
// provides a scripted fake.
package portal

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no strategy of a Locator matches.
var ErrNotFound = errors.New("element not found")

// ErrReadOnly is returned by pages that cannot be interacted with.
var ErrReadOnly = errors.New("page is read-only")

// By selects how a Selector is evaluated.
type By int

const (
	ByCSS By = iota
	ByXPath
	// ByText matches elements of the CSS scope whose text contains Text.
	ByText
)

func (b By) String() string {
	switch b {
	case ByCSS:
		return "css"
	case ByXPath:
		return "xpath"
	case ByText:
		return "text"
	default:
		return fmt.Sprintf("by(%d)", int(b))
	}
}

// Selector is one way of finding elements.
type Selector struct {
	By   By
	Expr string
	Text string
}

// CSS returns a CSS selector.
func CSS(expr string) Selector { return Selector{By: ByCSS, Expr: expr} }

// XPath returns an XPath selector.
func XPath(expr string) Selector { return Selector{By: ByXPath, Expr: expr} }

// Text returns a selector for elements matching scope whose text contains text.
func Text(scope, text string) Selector { return Selector{By: ByText, Expr: scope, Text: text} }

func (s Selector) String() string {
	if s.By == ByText {
		return fmt.Sprintf("text(%s ~ %q)", s.Expr, s.Text)
	}
	return fmt.Sprintf("%s(%s)", s.By, s.Expr)
}

// Element is a handle to one rendered element.
type Element interface {
	Text() string
	// Value is the current form value; empty for non-form elements.
	Value() string
	Attr(name string) (string, bool)
	Checked() bool
	Visible() bool
	Click(ctx context.Context) error
	// SetValue replaces the value of an input, or picks the option of a select
	// whose value or label equals v.
	SetValue(ctx context.Context, v string) error
}

// Page is the current view of the active tab.
type Page interface {
	CurrentURL() string
	VisibleText() string
	Locate(ctx context.Context, sel Selector) ([]Element, error)
}
