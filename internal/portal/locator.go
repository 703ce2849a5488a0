package portal

import (
	"context"
	"fmt"
)

// Locator is an ordered list of strategies tried until one yields elements.
// Each strategy is independently testable; the order encodes preference.
type Locator struct {
	Name       string
	Strategies []Selector
}

// NewLocator builds a locator from strategies in preference order.
func NewLocator(name string, strategies ...Selector) Locator {
	return Locator{Name: name, Strategies: strategies}
}

// All returns the elements matched by the first strategy that matches any.
// Lookup errors of individual strategies are skipped; ErrNotFound is returned
// only when every strategy came up empty.
func (l Locator) All(ctx context.Context, p Page) ([]Element, error) {
	var lastErr error
	for _, sel := range l.Strategies {
		els, err := p.Locate(ctx, sel)
		if err != nil {
			lastErr = err
			continue
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%s: %w (last error: %v)", l.Name, ErrNotFound, lastErr)
	}
	return nil, fmt.Errorf("%s: %w", l.Name, ErrNotFound)
}

// First returns the first visible element, or the first element at all when
// none report visible.
func (l Locator) First(ctx context.Context, p Page) (Element, error) {
	els, err := l.All(ctx, p)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if el.Visible() {
			return el, nil
		}
	}
	return els[0], nil
}

// Click clicks the first match.
func (l Locator) Click(ctx context.Context, p Page) error {
	el, err := l.First(ctx, p)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("%s: click: %w", l.Name, err)
	}
	return nil
}

// Present reports whether any strategy matches.
func (l Locator) Present(ctx context.Context, p Page) bool {
	_, err := l.All(ctx, p)
	return err == nil
}
