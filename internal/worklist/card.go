package worklist

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"hypauto/internal/portal"
	"hypauto/internal/quota"
)

// DueState is what a card says about when it may be done.
type DueState int

const (
	DueUnknown DueState = iota
	DueImmediate
	DueDated
	DueInProgress
	DueCompleted
)

func (s DueState) String() string {
	switch s {
	case DueImmediate:
		return "immediate"
	case DueDated:
		return "dated"
	case DueInProgress:
		return "in-progress"
	case DueCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Screening may be started this many days before its due date; follow-ups less.
const (
	ScreeningWindowDays = 30
	FollowUpWindowDays  = 15
)

// Card is one outstanding task on a patient's page.
type Card struct {
	Type    quota.TaskType
	Known   bool // Type was recognised
	Title   string
	State   DueState
	DueDate time.Time
	Side    bool // found in the side list
	// Ref is the rendered card; clicking it opens the task.
	Ref portal.Element
}

type typeRule struct {
	domain   quota.Domain
	keywords []string
}

// Order matters: the first domain whose keyword appears wins.
var cardTypeRules = []typeRule{
	{quota.Diabetes, []string{"DIYABET", "DIABET"}},
	{quota.Obesity, []string{"OBEZITE"}},
	{quota.Elderly, []string{"YASLI"}},
	{quota.Cardiovascular, []string{"KARDIYOVASKULER", "KVR"}},
	{quota.Hypertension, []string{"HIPERTANSIYON"}},
}

var (
	immediateMarkers  = []string{"HEMEN YAPILABILIR", "HEMEN YAPILABILIR DURUMDA"}
	completedMarkers  = []string{"TAMAMLANDI"}
	inProgressMarkers = []string{"DEVAM EDIYOR", "BASLATILDI", "YARIM KALAN"}
	dateRe            = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)
)

// ParseCard reads type and due state from a card's text.
func ParseCard(text string) Card {
	folded := portal.Fold(text)
	c := Card{Title: strings.TrimSpace(firstLine(text))}

	kind := kindOf(portal.Fold(c.Title))
	if kind == "" {
		kind = kindOf(folded)
	}
	if kind != "" {
		for _, r := range cardTypeRules {
			if containsAny(folded, r.keywords) {
				t := quota.NewTaskType(r.domain, kind)
				if _, err := quota.ParseTaskType(string(t)); err == nil {
					c.Type = t
					c.Known = true
				}
				break
			}
		}
	}

	switch {
	case containsAny(folded, immediateMarkers):
		c.State = DueImmediate
	case containsAny(folded, completedMarkers):
		c.State = DueCompleted
	case containsAny(folded, inProgressMarkers):
		c.State = DueInProgress
	default:
		if d, ok := parseDate(folded); ok {
			c.State = DueDated
			c.DueDate = d
		}
	}
	return c
}

func parseDate(s string) (time.Time, bool) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	y, _ := strconv.Atoi(m[3])
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.Local)
	// time.Date normalizes 31.02 into March; reject anything it had to move.
	if t.Day() != d || int(t.Month()) != mo || t.Year() != y {
		return time.Time{}, false
	}
	return t, true
}

// DaysUntil is the calendar-day delta from today to the due date; negative when overdue.
func DaysUntil(due, today time.Time) int {
	a := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Eligible applies the due-date rule: immediate is always eligible, overdue is
// eligible, otherwise screening within 30 days and follow-up within 15 days.
func Eligible(c Card, today time.Time) bool {
	switch c.State {
	case DueImmediate:
		return true
	case DueDated:
		days := DaysUntil(c.DueDate, today)
		if days < 0 {
			return true
		}
		if c.Type.IsFollowUp() {
			return days <= FollowUpWindowDays
		}
		return days <= ScreeningWindowDays
	default:
		return false
	}
}

// DueLabel renders the due state as immediate / due-soon / not-due /
// in-progress / completed.
func DueLabel(c Card, today time.Time) string {
	switch c.State {
	case DueImmediate:
		return "immediate"
	case DueInProgress:
		return "in-progress"
	case DueCompleted:
		return "completed"
	case DueDated:
		if Eligible(c, today) {
			return "due-soon"
		}
		return "not-due"
	default:
		return "unknown"
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func kindOf(folded string) quota.Kind {
	switch {
	case strings.Contains(folded, "IZLEM"):
		return quota.FollowUp
	case strings.Contains(folded, "TARAMA"):
		return quota.Screening
	}
	return ""
}
