// Package worklist finds patients on the portal and reads their task cards.
package worklist

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"hypauto/internal/clinical"
	"hypauto/internal/logging"
	"hypauto/internal/portal"
)

// ErrPatientNotFound is returned when a search has no matching row.
var ErrPatientNotFound = errors.New("patient not found")

// Patient is a portal patient.
type Patient struct {
	ID   string
	Name string
	Age  int // 0 when unknown
}

var (
	naturalIDRe = regexp.MustCompile(`\b\d{11}\b`)
	ageRe       = regexp.MustCompile(`\bYAS\b\s*:?\s*(\d{1,3})\b`)
	birthRe     = regexp.MustCompile(`DOGUM TARIHI\s*:?\s*(\d{1,2}[./]\d{1,2}[./]\d{4})`)
)

// IsNaturalID reports whether s is an 11-digit national id.
func IsNaturalID(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeName folds case, Turkish letters and spacing for name comparison.
func NormalizeName(s string) string {
	return portal.Fold(s)
}

// Reader drives patient search and card enumeration on a page.
type Reader struct {
	Transition time.Duration
	Poll       time.Duration
}

// NewReader returns a reader with the default transition wait.
func NewReader() *Reader {
	return &Reader{Transition: time.Second, Poll: 100 * time.Millisecond}
}

// ParsePatientRow extracts id and name from a patient list row.
func ParsePatientRow(text string) Patient {
	p := Patient{ID: naturalIDRe.FindString(text)}
	var name []string
	for _, tok := range strings.Fields(text) {
		if strings.ContainsAny(tok, "0123456789") {
			continue
		}
		name = append(name, tok)
	}
	p.Name = strings.Join(name, " ")
	return p
}

// Matches reports whether p answers query: exact id for an 11-digit query,
// else normalized substring of the display name.
func (p Patient) Matches(query string) bool {
	query = strings.TrimSpace(query)
	if IsNaturalID(query) {
		return p.ID == query
	}
	q := NormalizeName(query)
	return q != "" && strings.Contains(NormalizeName(p.Name), q)
}

// Search types query into the patient search box, picks the matching row
// and opens it.
func (r *Reader) Search(ctx context.Context, page portal.Page, query string) (Patient, error) {
	in, err := portal.PatientSearchInput.First(ctx, page)
	if err != nil {
		return Patient{}, fmt.Errorf("search box: %w", err)
	}
	before := portal.Fingerprint(page)
	if err := in.SetValue(ctx, strings.TrimSpace(query)); err != nil {
		return Patient{}, fmt.Errorf("type query: %w", err)
	}
	if err := portal.PatientSearchButton.Click(ctx, page); err != nil {
		logging.WorklistDebug("no search button, relying on live filtering: %v", err)
	}
	portal.WaitTransition(ctx, page, before, r.Transition, r.Poll)

	rows, err := portal.PatientRows.All(ctx, page)
	if err != nil {
		return Patient{}, fmt.Errorf("%w: %s", ErrPatientNotFound, query)
	}
	for _, row := range rows {
		p := ParsePatientRow(row.Text())
		if !p.Matches(query) {
			continue
		}
		before = portal.Fingerprint(page)
		if err := row.Click(ctx); err != nil {
			return Patient{}, fmt.Errorf("open patient: %w", err)
		}
		portal.WaitTransition(ctx, page, before, r.Transition, r.Poll)
		if p.Age == 0 {
			p.Age = ReadAge(page.VisibleText(), time.Now())
		}
		logging.WorklistDebug("opened patient %s (%s)", p.ID, p.Name)
		return p, nil
	}
	return Patient{}, fmt.Errorf("%w: %s", ErrPatientNotFound, query)
}

// ListPatients reads the patient list currently shown.
func (r *Reader) ListPatients(ctx context.Context, page portal.Page) ([]Patient, error) {
	rows, err := portal.PatientRows.All(ctx, page)
	if err != nil {
		if errors.Is(err, portal.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var out []Patient
	seen := map[string]bool{}
	for _, row := range rows {
		p := ParsePatientRow(row.Text())
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

// DateLayout is the portal's date format.
const DateLayout = "02.01.2006"

// ListPatientsOn switches the appointment list to day and reads the patients
// booked on it.
func (r *Reader) ListPatientsOn(ctx context.Context, page portal.Page, day time.Time) ([]Patient, error) {
	in, err := portal.AppointmentDate.First(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("appointment date: %w", err)
	}
	before := portal.Fingerprint(page)
	if err := in.SetValue(ctx, day.Format(DateLayout)); err != nil {
		return nil, fmt.Errorf("set appointment date: %w", err)
	}
	if err := portal.AppointmentList.Click(ctx, page); err != nil {
		logging.WorklistDebug("no list button, relying on the date change: %v", err)
	}
	portal.WaitTransition(ctx, page, before, r.Transition, r.Poll)
	return r.ListPatients(ctx, page)
}

// Cards enumerates the main and side card lists of the open patient.
func (r *Reader) Cards(ctx context.Context, page portal.Page) ([]Card, error) {
	var out []Card
	for _, list := range []struct {
		loc  portal.Locator
		side bool
	}{{portal.MainCards, false}, {portal.SideCards, true}} {
		els, err := list.loc.All(ctx, page)
		if err != nil {
			if errors.Is(err, portal.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, el := range els {
			c := ParseCard(el.Text())
			c.Side = list.side
			c.Ref = el
			out = append(out, c)
		}
	}
	logging.WorklistDebug("found %d cards", len(out))
	return out, nil
}

// ReadAge extracts the patient's age from header text, from an explicit age
// field or a birth date.
func ReadAge(text string, today time.Time) int {
	folded := portal.Fold(text)
	if m := ageRe.FindStringSubmatch(folded); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := birthRe.FindStringSubmatch(folded); m != nil {
		if born, ok := parseDate(m[1]); ok {
			age := today.Year() - born.Year()
			if today.YearDay() < born.YearDay() {
				age--
			}
			return age
		}
	}
	return 0
}

// ReadMedications reads the prescription table of the open patient.
func (r *Reader) ReadMedications(ctx context.Context, page portal.Page) ([]clinical.Medication, error) {
	rows, err := portal.MedicationRows.All(ctx, page)
	if err != nil {
		if errors.Is(err, portal.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var out []clinical.Medication
	for _, row := range rows {
		m := clinical.Medication{Name: strings.TrimSpace(row.Text())}
		if v, ok := row.Attr("data-name"); ok && v != "" {
			m.Name = v
		}
		m.ATC, _ = row.Attr("data-atc")
		if v, ok := row.Attr("data-last-date"); ok {
			if d, ok := parseDate(v); ok {
				m.LastPrescription = d
			}
		}
		if v, ok := row.Attr("data-quantity"); ok {
			m.Quantity, _ = strconv.Atoi(v)
		}
		if v, ok := row.Attr("data-package-size"); ok {
			m.PackageSize, _ = strconv.Atoi(v)
		}
		out = append(out, m)
	}
	return out, nil
}
