// Package classify maps the current portal view to a symbolic state.
//
// Classification is a pure function of the page URL and its visible text:
// path rules are tried first, in table order, then keyword rules over the
// folded text. Nothing on the page is touched.
package classify

import (
	"net/url"
	"strings"

	"hypauto/internal/logging"
	"hypauto/internal/portal"
)

// State is a named protocol view.
type State string

const (
	Unknown           State = "UNKNOWN"
	Start             State = "START"
	OptIn             State = "OPT_IN"
	Done              State = "DONE"
	Summary           State = "SUMMARY"
	Pregnancy         State = "PREGNANCY"
	Vitals            State = "VITALS"
	Labs              State = "LABS"
	Medication        State = "MEDICATION"
	Risk              State = "RISK"
	Symptom           State = "SYMPTOM"
	Anamnesis         State = "ANAMNESIS"
	Lifestyle         State = "LIFESTYLE"
	Diagnosis         State = "DIAGNOSIS"
	BloodSugar        State = "BLOOD_SUGAR"
	FollowUpPlan      State = "FOLLOW_UP_PLAN"
	ElderlyAssessment State = "ELDERLY_ASSESSMENT"
)

// Rule maps URL path fragments or visible-text keywords to a state.
type Rule struct {
	State    State
	Paths    []string
	Keywords []string
}

// Table is the ordered rule set of one protocol.
type Table struct {
	Name  string
	Rules []Rule
}

// Classify returns the first state whose path matches, else the first state
// whose keyword occurs in the visible text, else Unknown.
func Classify(p portal.Page, t Table) State {
	path := urlPath(p.CurrentURL())
	for _, r := range t.Rules {
		for _, frag := range r.Paths {
			if frag != "" && strings.Contains(path, strings.ToLower(frag)) {
				logging.ClassifierDebug("%s: path %q matched %s", t.Name, frag, r.State)
				return r.State
			}
		}
	}

	text := portal.Fold(p.VisibleText())
	for _, r := range t.Rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(text, portal.Fold(kw)) {
				logging.ClassifierDebug("%s: keyword %q matched %s", t.Name, kw, r.State)
				return r.State
			}
		}
	}

	return Unknown
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return strings.ToLower(raw)
	}
	p := u.Path
	if u.Fragment != "" {
		p += "#" + u.Fragment
	}
	return strings.ToLower(p)
}

// Merge concatenates rule lists, preserving order.
func Merge(name string, groups ...[]Rule) Table {
	t := Table{Name: name}
	for _, g := range groups {
		t.Rules = append(t.Rules, g...)
	}
	return t
}
