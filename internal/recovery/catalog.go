package recovery

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"hypauto/internal/portal"
)

// LabTest is a laboratory test known to the portal's forms.
type LabTest struct {
	Key  string
	Name string // label used by the external lab result panel
	// Aliases are the spellings seen on rendered pages.
	Aliases []string
}

// Catalog keys.
const (
	HbA1c          = "hba1c"
	Glucose        = "glucose"
	FastingGlucose = "fasting_glucose"
	OGTT           = "ogtt"
	TotalChol      = "total_cholesterol"
	LDL            = "ldl"
	HDL            = "hdl"
	NonHDL         = "non_hdl"
	Triglycerides  = "triglycerides"
	Creatinine     = "creatinine"
	EGFR           = "egfr"
	Microalbumin   = "microalbumin"
	ALT            = "alt"
	TSH            = "tsh"
	Hemoglobin     = "hemoglobin"
)

// Catalog is the set of recognised tests.
type Catalog []LabTest

// DefaultCatalog covers the tests the HT, DIY, OBE, KVR and YAS forms ask for.
var DefaultCatalog = Catalog{
	{Key: HbA1c, Name: "HbA1c", Aliases: []string{"HbA1c", "Hemoglobin A1c", "A1C"}},
	{Key: FastingGlucose, Name: "Açlık Kan Şekeri", Aliases: []string{"Açlık Kan Şekeri", "Açlık Plazma Glukozu", "Açlık Glukozu", "AKŞ"}},
	{Key: Glucose, Name: "Glukoz", Aliases: []string{"Glukoz", "Glikoz", "Rastgele Kan Şekeri"}},
	{Key: OGTT, Name: "OGTT", Aliases: []string{"OGTT", "Oral Glukoz Tolerans Testi"}},
	{Key: TotalChol, Name: "Total Kolesterol", Aliases: []string{"Total Kolesterol", "Toplam Kolesterol"}},
	{Key: NonHDL, Name: "Non-HDL Kolesterol", Aliases: []string{"Non-HDL Kolesterol", "Non-HDL", "HDL Dışı Kolesterol"}},
	{Key: HDL, Name: "HDL Kolesterol", Aliases: []string{"HDL Kolesterol", "HDL"}},
	{Key: LDL, Name: "LDL Kolesterol", Aliases: []string{"LDL Kolesterol", "LDL"}},
	{Key: Triglycerides, Name: "Trigliserit", Aliases: []string{"Trigliserit", "Trigliserid"}},
	{Key: Creatinine, Name: "Kreatinin", Aliases: []string{"Kreatinin", "Creatinine"}},
	{Key: EGFR, Name: "eGFR", Aliases: []string{"eGFR", "Glomerüler Filtrasyon Hızı"}},
	{Key: Microalbumin, Name: "İdrarda Mikroalbümin", Aliases: []string{"İdrarda Mikroalbümin", "Mikroalbüminüri", "Mikroalbümin"}},
	{Key: ALT, Name: "ALT", Aliases: []string{"ALT", "SGPT"}},
	{Key: TSH, Name: "TSH", Aliases: []string{"TSH"}},
	{Key: Hemoglobin, Name: "Hemoglobin", Aliases: []string{"Hemoglobin", "HGB"}},
}

// ByKey returns the test with key.
func (c Catalog) ByKey(key string) (LabTest, bool) {
	for _, t := range c {
		if t.Key == key {
			return t, true
		}
	}
	return LabTest{}, false
}

type alias struct {
	folded string
	test   int
}

// aliases returns every folded alias, longest first.
func (c Catalog) aliases() []alias {
	var out []alias
	for i, t := range c {
		for _, a := range t.Aliases {
			out = append(out, alias{folded: portal.Fold(a), test: i})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].folded) > len(out[j].folded) })
	return out
}

// Identify maps a checkbox label to a catalog test. The longest alias found
// on word boundaries wins, so "Non-HDL Kolesterol" never resolves to HDL.
func (c Catalog) Identify(label string) (LabTest, bool) {
	folded := portal.Fold(label)
	for _, a := range c.aliases() {
		if folded == a.folded || indexBounded(folded, a.folded, 0) >= 0 {
			return c[a.test], true
		}
	}
	return LabTest{}, false
}

// indexBounded finds needle in s at or after from, such that it is not glued
// to a preceding letter, digit or hyphen, nor to a following letter or digit.
// The hyphen rule is what keeps "HDL" out of "NON-HDL".
func indexBounded(s, needle string, from int) int {
	for from <= len(s) {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(needle)
		if boundaryBefore(s, i) && boundaryAfter(s, end) {
			return i
		}
		from = i + 1
	}
	return -1
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-')
}

func boundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return !(unicode.IsLetter(r) || unicode.IsDigit(r))
}
