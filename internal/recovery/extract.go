package recovery

import (
	"sort"
	"unicode"
	"unicode/utf8"

	"hypauto/internal/portal"
)

// Presence describes what a page says about a test.
type Presence int

const (
	// Absent: the test is not mentioned with a value or a dash.
	Absent Presence = iota
	// Dash: the test is shown with "-", meaning there is no prior value.
	Dash
	// Found: a numeric value follows the label.
	Found
)

// valueWindow bounds how far past a label a value may appear.
const valueWindow = 40

type span struct {
	start, end int
	test       int
}

// spans locates every alias occurrence in folded text. Longer aliases claim
// their span first, so a shorter alias inside a longer one ("GLUKOZ" inside
// "ORAL GLUKOZ TOLERANS TESTI") is not reported separately.
func (c Catalog) spans(folded string) []span {
	var claimed []span
	overlaps := func(s, e int) bool {
		for _, sp := range claimed {
			if s < sp.end && e > sp.start {
				return true
			}
		}
		return false
	}
	for _, a := range c.aliases() {
		if a.folded == "" {
			continue
		}
		from := 0
		for {
			i := indexBounded(folded, a.folded, from)
			if i < 0 {
				break
			}
			end := i + len(a.folded)
			if !overlaps(i, end) {
				claimed = append(claimed, span{start: i, end: end, test: a.test})
			}
			from = i + 1
		}
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start < claimed[j].start })
	return claimed
}

// FindValue looks for the value rendered next to test's label in text. The
// search window ends at the next label of any catalog test, so one test never
// picks up a neighbour's number.
func (c Catalog) FindValue(text string, test LabTest) (string, Presence) {
	idx := -1
	for i, t := range c {
		if t.Key == test.Key {
			idx = i
			break
		}
	}
	cat := c
	if idx < 0 {
		cat = append(append(Catalog(nil), c...), test)
		idx = len(cat) - 1
	}

	folded := portal.Fold(text)
	spans := cat.spans(folded)

	best := Absent
	for n, sp := range spans {
		if sp.test != idx {
			continue
		}
		limit := sp.end + valueWindow
		if n+1 < len(spans) && spans[n+1].start < limit {
			limit = spans[n+1].start
		}
		if limit > len(folded) {
			limit = len(folded)
		}
		v, p := scanValue(folded[sp.end:limit])
		if p == Found {
			return v, Found
		}
		if p == Dash {
			best = Dash
		}
	}
	return "", best
}

// FirstValue returns the first test, in the given key order, that has a value in text.
func (c Catalog) FirstValue(text string, keys ...string) (LabTest, string, bool) {
	for _, k := range keys {
		t, ok := c.ByKey(k)
		if !ok {
			continue
		}
		if v, p := c.FindValue(text, t); p == Found {
			return t, v, true
		}
	}
	return LabTest{}, "", false
}

// scanValue reads the first number or dash after separators and unit words.
func scanValue(w string) (string, Presence) {
	for i := 0; i < len(w); {
		r, size := utf8.DecodeRuneInString(w[i:])
		switch {
		case unicode.IsDigit(r):
			return readNumber(w[i:]), Found
		case r == '-' || r == '–' || r == '—':
			return "", Dash
		}
		i += size
	}
	return "", Absent
}

func readNumber(s string) string {
	end := 0
	seenSep := false
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if (c == '.' || c == ',') && !seenSep && end+1 < len(s) && s[end+1] >= '0' && s[end+1] <= '9' {
			seenSep = true
			end++
			continue
		}
		break
	}
	return s[:end]
}
