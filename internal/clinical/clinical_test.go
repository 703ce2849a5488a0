package clinical

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMedication_ActiveOn(t *testing.T) {
	m := Medication{Name: "Ramipril", LastPrescription: day("2026-09-01"), Quantity: 1, PackageSize: 28}

	assert.True(t, m.ActiveOn(day("2026-09-29")), "last covered day")
	assert.False(t, m.ActiveOn(day("2026-09-30")))

	m.Quantity = 2
	assert.True(t, m.ActiveOn(day("2026-10-18")))

	assert.False(t, Medication{Name: "x"}.ActiveOn(day("2026-10-18")), "no prescription date")
}

func TestChronicAndActiveAreIndependent(t *testing.T) {
	// A chronic drug whose supply ran out is still chronic; an antibiotic in
	// supply is active but not chronic.
	expired := Medication{ATC: "C09AA05", LastPrescription: day("2026-01-01"), Quantity: 1, PackageSize: 28}
	antibiotic := Medication{ATC: "J01CA04", LastPrescription: day("2026-10-15"), Quantity: 1, PackageSize: 14}

	assert.True(t, IsChronic(expired.ATC))
	assert.False(t, expired.ActiveOn(day("2026-10-18")))
	assert.False(t, IsChronic(antibiotic.ATC))
	assert.True(t, antibiotic.ActiveOn(day("2026-10-18")))
}

func TestAnalyze_PolypharmacyLevels(t *testing.T) {
	a := NewDrugAnalyzer(nil)
	meds := func(n int) []Medication {
		var out []Medication
		for i := 0; i < n; i++ {
			out = append(out, Medication{Name: "d", ATC: "C07AB02"})
		}
		return out
	}

	cases := []struct {
		n     int
		poly  bool
		level PolypharmacyLevel
	}{
		{0, false, PolypharmacyNone},
		{3, false, PolypharmacyRisk},
		{5, true, PolypharmacyPresent},
		{10, true, PolypharmacyExcessive},
	}
	for _, tc := range cases {
		res := a.Analyze(meds(tc.n))
		assert.Equal(t, tc.n, res.ChronicCount)
		assert.Equal(t, tc.poly, res.Polypharmacy, "n=%d", tc.n)
		assert.Equal(t, tc.level, res.Level, "n=%d", tc.n)
	}
}

func TestAnalyze_ShortTermAndInappropriate(t *testing.T) {
	a := NewDrugAnalyzer(map[string]string{"DIAZEM 5 MG": "N05BA01"})
	res := a.Analyze([]Medication{
		{Name: "Amoksisilin", ATC: "J01CA04"},
		{Name: "Diazem"},
		{Name: "Majezik", ATC: "M01AE01"},
	})

	require.Len(t, res.ShortTerm, 2)
	assert.Equal(t, 1, res.ChronicCount, "diazepam is an anxiolytic (N05B)")
	require.Len(t, res.Inappropriate, 2)
	assert.Equal(t, "N05BA01", res.Inappropriate[0].ATC)
	assert.Contains(t, res.Recommendations, "2 potansiyel uygunsuz ilaç tespit edildi")
}

func TestFrailtyScore(t *testing.T) {
	assert.Equal(t, 3, FrailtyScore(FrailtyInput{Age: 66, Katz: 6}))
	assert.Equal(t, 12, FollowUpMonths(3))

	mid := FrailtyScore(FrailtyInput{Age: 78, Katz: 5, ChronicDrugs: 5})
	assert.Equal(t, 6, mid)
	assert.Equal(t, 6, FollowUpMonths(mid))

	frail := FrailtyScore(FrailtyInput{Age: 90, Katz: 1, ChronicDrugs: 12, Hospitalizations: 3, Falls: 2})
	assert.Equal(t, 9, frail, "clamped")
	assert.Equal(t, 3, FollowUpMonths(frail))

	assert.Equal(t, 5, FrailtyScore(FrailtyInput{Age: 85, Katz: -1}), "unknown Katz adds nothing")
}

func TestPregnancyRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gebeler.csv")
	require.NoError(t, os.WriteFile(path, []byte("tc,ad\n12345678901,Ayşe Yılmaz\n,ELİF KARA DEMİR\n"), 0644))

	r, err := LoadPregnancyRoster(path)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.IsPregnant("12345678901", ""))
	assert.True(t, r.IsPregnant("", "ayşe yılmaz"))
	assert.True(t, r.IsPregnant("", "Elif Kara"), "roster name contains query")
	assert.False(t, r.IsPregnant("99999999999", "Zeynep Ak"))

	empty, err := LoadPregnancyRoster(filepath.Join(dir, "none.csv"))
	require.NoError(t, err)
	assert.False(t, empty.IsPregnant("12345678901", "Ayşe"))
}

func TestPregnancyRoster_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"10000000146","name":"Fatma Şahin"}]`), 0644))

	r, err := LoadPregnancyRoster(path)
	require.NoError(t, err)
	assert.True(t, r.IsPregnant("10000000146", ""))
}
