// Package recovery resolves mandatory lab-test checkboxes that the portal's
// "clear all" action leaves checked, by finding a prior value for each test
// and submitting it as an external lab result.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hypauto/internal/logging"
	"hypauto/internal/portal"
)

// Source tells where a recovered value came from.
type Source string

const (
	// SourceRead values were on the page after clear-all.
	SourceRead Source = "read"
	// SourceRecovered values came from the snapshot taken before clear-all.
	SourceRecovered Source = "recovered"
)

// LabValue is a value submitted for a test.
type LabValue struct {
	Test   string
	Value  string
	Source Source
}

// MissingTestsError lists tests that stayed checked with no value anywhere.
type MissingTestsError struct {
	Tests []string
}

func (e *MissingTestsError) Error() string {
	return "missing lab values: " + strings.Join(e.Tests, ", ")
}

// Recoverer drives the clear / recover / submit / clear cycle.
type Recoverer struct {
	Catalog    Catalog
	Transition time.Duration
	Poll       time.Duration
}

// New returns a recoverer with the default one second transition wait.
func New(c Catalog) *Recoverer {
	return &Recoverer{Catalog: c, Transition: time.Second, Poll: 100 * time.Millisecond}
}

type checkedTest struct {
	label string
	test  LabTest
}

// RecoverAndClear snapshots the page, clears all tests, recovers a value for
// each test still checked, submits the values through the external lab panel
// and clears again. It returns *MissingTestsError if tests without any value
// remain checked.
func (r *Recoverer) RecoverAndClear(ctx context.Context, page portal.Page) ([]LabValue, error) {
	snapshot := page.VisibleText()

	r.clearAll(ctx, page)

	remaining := r.checked(ctx, page)
	if len(remaining) == 0 {
		return nil, nil
	}

	current := page.VisibleText()
	var values []LabValue
	unresolved := map[string]bool{}

	for _, c := range remaining {
		v, p := r.Catalog.FindValue(current, c.test)
		src := SourceRead
		if p != Found {
			v, p = r.Catalog.FindValue(snapshot, c.test)
			src = SourceRecovered
		}
		if p != Found {
			logging.Recovery("no prior value for %s", c.label)
			unresolved[c.label] = true
			continue
		}
		values = append(values, LabValue{Test: c.test.Name, Value: v, Source: src})
	}

	var submitted []LabValue
	for _, v := range values {
		if err := r.SubmitExternal(ctx, page, v.Test, v.Value); err != nil {
			logging.Recovery("submit %s=%s failed: %v", v.Test, v.Value, err)
			unresolved[labelFor(remaining, v.Test)] = true
			continue
		}
		logging.RecoveryDebug("submitted %s=%s (%s)", v.Test, v.Value, v.Source)
		submitted = append(submitted, v)
	}

	// Submission can re-flag checkboxes.
	r.clearAll(ctx, page)

	var missing []string
	for _, c := range r.checked(ctx, page) {
		if unresolved[c.label] {
			missing = append(missing, c.label)
		}
	}
	if len(missing) > 0 {
		return submitted, &MissingTestsError{Tests: missing}
	}
	return submitted, nil
}

func labelFor(tests []checkedTest, name string) string {
	for _, c := range tests {
		if c.test.Name == name {
			return c.label
		}
	}
	return name
}

func (r *Recoverer) clearAll(ctx context.Context, page portal.Page) {
	before := portal.Fingerprint(page)
	if err := portal.ClearAllTests.Click(ctx, page); err != nil {
		logging.RecoveryDebug("clear-all unavailable: %v", err)
		return
	}
	portal.WaitTransition(ctx, page, before, r.Transition, r.Poll)
}

func (r *Recoverer) checked(ctx context.Context, page portal.Page) []checkedTest {
	els, err := portal.LabCheckboxes.All(ctx, page)
	if err != nil {
		return nil
	}
	var out []checkedTest
	for _, el := range els {
		if !el.Checked() {
			continue
		}
		label, ok := el.Attr("data-test-name")
		if !ok || label == "" {
			label = strings.TrimSpace(el.Text())
		}
		test, known := r.Catalog.Identify(label)
		if !known {
			test = LabTest{Key: "label:" + label, Name: label, Aliases: []string{label}}
		}
		out = append(out, checkedTest{label: label, test: test})
	}
	return out
}

// SubmitExternal enters value for test through the external lab result panel.
func (r *Recoverer) SubmitExternal(ctx context.Context, page portal.Page, test, value string) error {
	before := portal.Fingerprint(page)
	if err := portal.ExternalLabOpen.Click(ctx, page); err != nil {
		return fmt.Errorf("open external lab panel: %w", err)
	}
	portal.WaitTransition(ctx, page, before, r.Transition, r.Poll)

	sel, err := portal.ExternalLabTest.First(ctx, page)
	if err != nil {
		return fmt.Errorf("external lab test select: %w", err)
	}
	if err := sel.SetValue(ctx, test); err != nil {
		return fmt.Errorf("select %s: %w", test, err)
	}
	in, err := portal.ExternalLabValue.First(ctx, page)
	if err != nil {
		return fmt.Errorf("external lab value input: %w", err)
	}
	if err := in.SetValue(ctx, value); err != nil {
		return fmt.Errorf("enter value: %w", err)
	}

	before = portal.Fingerprint(page)
	if err := portal.ExternalLabSave.Click(ctx, page); err != nil {
		return fmt.Errorf("save external lab result: %w", err)
	}
	portal.WaitTransition(ctx, page, before, r.Transition, r.Poll)
	return nil
}

// IsMissingTests unwraps a *MissingTestsError.
func IsMissingTests(err error) (*MissingTestsError, bool) {
	var mt *MissingTestsError
	if errors.As(err, &mt) {
		return mt, true
	}
	return nil, false
}
