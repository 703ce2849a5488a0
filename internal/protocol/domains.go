package protocol

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"hypauto/internal/classify"
	"hypauto/internal/clinical"
	"hypauto/internal/logging"
	"hypauto/internal/portal"
	"hypauto/internal/quota"
	"hypauto/internal/recovery"
)

// KVRStuckThreshold is higher because the cardiovascular form re-renders in place.
const KVRStuckThreshold = 4

// DefaultObesityDiagnosis is selected when the diagnosis is left at its placeholder.
const DefaultObesityDiagnosis = "E66.9"

// For returns the protocol for a task type.
func For(t quota.TaskType) (Spec, bool) {
	s := Spec{Task: t, Name: string(t), StuckThreshold: DefaultStuckThreshold}
	switch t.Domain() {
	case quota.Hypertension:
		s.Table = htTable
		s.Always = []Hook{answerAtRiskNo}
	case quota.Diabetes:
		s.Table = diyTable
		s.Always = []Hook{resolveGlycemicRequirement}
	case quota.Obesity:
		s.Table = obeTable
		s.Always = []Hook{defaultDiagnosis}
		if t.IsFollowUp() {
			s.Always = append(s.Always, shortestInterval, clearComorbidityTests)
		}
	case quota.Cardiovascular:
		s.Table = kvrTable
		s.StuckThreshold = KVRStuckThreshold
	case quota.Elderly:
		s.Table = yasTable
		s.Always = []Hook{answerBoneDensityNo, answerUnansweredNo}
		s.Handlers = map[classify.State]Handler{classify.ElderlyAssessment: handleElderly}
	default:
		return Spec{}, false
	}
	if _, err := quota.ParseTaskType(string(t)); err != nil {
		return Spec{}, false
	}
	return s, true
}

// clickIfPresent clicks the first match of loc when shown. It never takes the iteration.
func clickIfPresent(ctx context.Context, run *Run, loc portal.Locator) error {
	el, err := loc.First(ctx, run.Page)
	if err != nil {
		return nil
	}
	if el.Checked() {
		return nil
	}
	return el.Click(ctx)
}

// HT

func answerAtRiskNo(ctx context.Context, run *Run) (bool, error) {
	return false, clickIfPresent(ctx, run, portal.AtRiskNo)
}

// DIY

// GlycemicPriority is the order rendered values are tried in when the form
// demands at least one glycemic test.
var GlycemicPriority = []string{recovery.HbA1c, recovery.Glucose, recovery.FastingGlucose, recovery.OGTT}

func hasGlycemicError(folded string) bool {
	return strings.Contains(folded, "EN AZ BIRI") && strings.Contains(folded, "HBA1C")
}

// withoutErrorLines drops the validation message so its test names are not
// mistaken for rendered values.
func withoutErrorLines(text string) string {
	var keep []string
	for _, line := range strings.Split(text, "\n") {
		if hasGlycemicError(portal.Fold(line)) {
			continue
		}
		keep = append(keep, line)
	}
	return strings.Join(keep, "\n")
}

func resolveGlycemicRequirement(ctx context.Context, run *Run) (bool, error) {
	text := run.Page.VisibleText()
	if !hasGlycemicError(portal.Fold(text)) {
		return false, nil
	}
	rec := run.runner.Recovery
	test, value, ok := rec.Catalog.FirstValue(withoutErrorLines(text), GlycemicPriority...)
	if !ok {
		var names []string
		for _, k := range GlycemicPriority {
			if t, found := rec.Catalog.ByKey(k); found {
				names = append(names, t.Name)
			}
		}
		return true, cancelMissing(run.State, names)
	}
	logging.Recovery("glycemic requirement: submitting %s=%s", test.Name, value)
	if err := rec.SubmitExternal(ctx, run.Page, test.Name, value); err != nil {
		return true, fmt.Errorf("submit %s: %w", test.Name, err)
	}
	run.submitted = append(run.submitted, recovery.LabValue{Test: test.Name, Value: value, Source: recovery.SourceRead})
	_, err := Advance(ctx, run)
	return true, err
}

// OBE

func defaultDiagnosis(ctx context.Context, run *Run) (bool, error) {
	sel, err := portal.DiagnosisSelect.First(ctx, run.Page)
	if err != nil {
		return false, nil
	}
	if v := strings.TrimSpace(sel.Value()); v != "" && v != "0" {
		return false, nil
	}
	run.Note("diagnosis defaulted to %s", DefaultObesityDiagnosis)
	return false, sel.SetValue(ctx, DefaultObesityDiagnosis)
}

var monthsRe = regexp.MustCompile(`\d+`)

func intervalMonths(el portal.Element) int {
	if v, ok := el.Attr("value"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	if m := monthsRe.FindString(el.Text()); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}

func shortestInterval(ctx context.Context, run *Run) (bool, error) {
	els, err := portal.FollowUpIntervals.All(ctx, run.Page)
	if err != nil || len(els) == 0 {
		return false, nil
	}
	sort.SliceStable(els, func(i, j int) bool { return intervalMonths(els[i]) < intervalMonths(els[j]) })
	if els[0].Checked() {
		return false, nil
	}
	return false, els[0].Click(ctx)
}

func clearComorbidityTests(ctx context.Context, run *Run) (bool, error) {
	return false, uncheckAll(ctx, run.Page, portal.ComorbidityChecks)
}

func uncheckAll(ctx context.Context, page portal.Page, loc portal.Locator) error {
	els, err := loc.All(ctx, page)
	if err != nil {
		return nil
	}
	for _, el := range els {
		if !el.Checked() {
			continue
		}
		if err := el.Click(ctx); err != nil {
			return err
		}
	}
	return nil
}

// YAS

func answerBoneDensityNo(ctx context.Context, run *Run) (bool, error) {
	return false, clickIfPresent(ctx, run, portal.BoneDensityNo)
}

func answerUnansweredNo(ctx context.Context, run *Run) (bool, error) {
	els, err := portal.UnansweredToggleNo.All(ctx, run.Page)
	if err != nil {
		return false, nil
	}
	for _, el := range els {
		if err := el.Click(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

var (
	katzRe     = regexp.MustCompile(`KATZ[^0-9]{0,60}(\d{1,2})`)
	hospitalRe = regexp.MustCompile(`HASTANEYE YATIS[^0-9]{0,40}(\d{1,2})`)
	fallRe     = regexp.MustCompile(`DUSME[^0-9]{0,40}(\d{1,2})`)
)

func firstInt(re *regexp.Regexp, s string, missing int) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return missing
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return missing
	}
	return n
}

// ReadFrailtyInput reads the elderly assessment page. Katz is -1 when absent.
func ReadFrailtyInput(text string, age int, chronicDrugs int) clinical.FrailtyInput {
	folded := portal.Fold(text)
	return clinical.FrailtyInput{
		Age:              age,
		Katz:             firstInt(katzRe, folded, -1),
		ChronicDrugs:     chronicDrugs,
		Hospitalizations: firstInt(hospitalRe, folded, 0),
		Falls:            firstInt(fallRe, folded, 0),
	}
}

func handleElderly(ctx context.Context, run *Run) (Step, error) {
	analysis := run.runner.Drugs.Analyze(run.Subject.Medications)
	in := ReadFrailtyInput(run.Page.VisibleText(), run.Subject.Age, analysis.ChronicCount)
	score := clinical.FrailtyScore(in)
	months := clinical.FollowUpMonths(score)
	run.Note("frailty score %d, follow-up in %d months", score, months)
	if analysis.Polypharmacy {
		run.Note("polypharmacy %s (%d chronic drugs)", analysis.Level, analysis.ChronicCount)
	}

	if err := clickIfPresent(ctx, run, portal.FollowUpBucket(months)); err != nil {
		return Next, err
	}
	if err := uncheckAll(ctx, run.Page, portal.LabCheckboxes); err != nil {
		return Next, err
	}
	return Advance(ctx, run)
}
