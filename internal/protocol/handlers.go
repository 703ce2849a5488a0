package protocol

import (
	"context"
	"regexp"
	"strings"
	"time"

	"hypauto/internal/classify"
	"hypauto/internal/clinical"
	"hypauto/internal/logging"
	"hypauto/internal/portal"
	"hypauto/internal/recovery"
)

// commonHandlers serve every protocol unless its Spec overrides a state.
var commonHandlers = map[classify.State]Handler{
	classify.Start:      handleStart,
	classify.OptIn:      handleOptIn,
	classify.Done:       handleDone,
	classify.Summary:    handleSummary,
	classify.Vitals:     handleVitals,
	classify.Pregnancy:  handlePregnancy,
	classify.Labs:       handleLabs,
	classify.Medication: handleMedication,
}

// Advance is the generic continue action: click Continue, or finalize when
// the view offers no Continue button.
func Advance(ctx context.Context, run *Run) (Step, error) {
	if portal.Continue.Present(ctx, run.Page) {
		if err := run.click(ctx, portal.Continue); err != nil {
			return Next, err
		}
		return Next, nil
	}
	if portal.Finalize.Present(ctx, run.Page) {
		return finalize(ctx, run)
	}
	// A modal may be covering the form.
	if portal.PopupNo.Present(ctx, run.Page) {
		return Next, run.click(ctx, portal.PopupNo)
	}
	logging.ProtocolWarn("%s: nothing to click at %s", run.Spec.Name, run.State)
	return Next, nil
}

func finalize(ctx context.Context, run *Run) (Step, error) {
	if err := run.click(ctx, portal.Finalize); err != nil {
		return Next, err
	}
	if portal.ConfirmDialog.Present(ctx, run.Page) {
		if err := run.click(ctx, portal.ConfirmDialog); err != nil {
			return Next, err
		}
	}
	return Finished, nil
}

func handleStart(ctx context.Context, run *Run) (Step, error) {
	if err := run.click(ctx, portal.StartTask); err != nil {
		return Next, err
	}
	if portal.StartOption.Present(ctx, run.Page) {
		if err := run.click(ctx, portal.StartOption); err != nil {
			return Next, err
		}
	}
	return Next, nil
}

func handleOptIn(ctx context.Context, run *Run) (Step, error) {
	return Next, &Abort{
		Kind:          Cancelled,
		State:         run.State,
		Reason:        "patient has not given SMS consent",
		OptInRequired: true,
	}
}

func handleDone(ctx context.Context, run *Run) (Step, error) {
	return Finished, nil
}

func handleSummary(ctx context.Context, run *Run) (Step, error) {
	if !portal.Finalize.Present(ctx, run.Page) {
		return Advance(ctx, run)
	}
	return finalize(ctx, run)
}

// Safe defaults for the vitals that are required but may have no history.
var vitalDefaults = []struct {
	keys  []string
	value string
}{
	{[]string{"SISTOLIK", "BUYUK TANSIYON"}, "120"},
	{[]string{"DIASTOLIK", "DIYASTOLIK", "KUCUK TANSIYON"}, "80"},
	{[]string{"NABIZ"}, "72"},
}

var numberRe = regexp.MustCompile(`^\s*\d+(?:[.,]\d+)?\s*$`)

// VitalValue picks the value for an empty vital input: its last recorded
// value, a numeric placeholder, or a safe default for blood pressure and pulse.
func VitalValue(el portal.Element) (string, bool) {
	if v, ok := el.Attr("data-last-value"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	if v, ok := el.Attr("placeholder"); ok && numberRe.MatchString(v) {
		return strings.TrimSpace(v), true
	}
	var ident []string
	for _, a := range []string{"name", "id", "aria-label"} {
		if v, ok := el.Attr(a); ok {
			ident = append(ident, v)
		}
	}
	key := portal.Fold(strings.Join(ident, " "))
	for _, d := range vitalDefaults {
		for _, k := range d.keys {
			if strings.Contains(key, k) {
				return d.value, true
			}
		}
	}
	return "", false
}

func handleVitals(ctx context.Context, run *Run) (Step, error) {
	if err := fillVitals(ctx, run); err != nil {
		return Next, err
	}
	return Advance(ctx, run)
}

func fillVitals(ctx context.Context, run *Run) error {
	inputs, err := portal.VitalInputs.All(ctx, run.Page)
	if err != nil {
		return nil
	}
	for _, in := range inputs {
		if strings.TrimSpace(in.Value()) != "" {
			continue
		}
		v, ok := VitalValue(in)
		if !ok {
			name, _ := in.Attr("name")
			logging.ProtocolDebug("no value for vital %q", name)
			continue
		}
		if err := in.SetValue(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func handlePregnancy(ctx context.Context, run *Run) (Step, error) {
	answer := portal.PregnancyNo
	if p := run.runner.Pregnancy; p != nil && p.IsPregnant(run.Subject.ID, run.Subject.Name) {
		answer = portal.PregnancyYes
		run.Note("pregnancy roster match")
	}
	if err := answer.Click(ctx, run.Page); err != nil {
		return Next, err
	}
	return Advance(ctx, run)
}

func handleLabs(ctx context.Context, run *Run) (Step, error) {
	submitted, err := run.runner.Recovery.RecoverAndClear(ctx, run.Page)
	run.submitted = append(run.submitted, submitted...)
	if mt, ok := recovery.IsMissingTests(err); ok {
		return Next, cancelMissing(run.State, mt.Tests)
	}
	if err != nil {
		return Next, err
	}
	return Advance(ctx, run)
}

// MedicationActive reports whether any prescription still covers today.
func MedicationActive(meds []clinical.Medication, today time.Time) bool {
	for _, m := range meds {
		if m.ActiveOn(today) {
			return true
		}
	}
	return false
}

func handleMedication(ctx context.Context, run *Run) (Step, error) {
	answer := portal.MedicationNo
	if MedicationActive(run.Subject.Medications, run.Today()) {
		answer = portal.MedicationYes
	}
	if err := answer.Click(ctx, run.Page); err != nil {
		return Next, err
	}
	return Advance(ctx, run)
}
