package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypauto/internal/portal"
	"hypauto/internal/portal/portaltest"
)

func mustTest(t *testing.T, key string) LabTest {
	t.Helper()
	lt, ok := DefaultCatalog.ByKey(key)
	require.True(t, ok, key)
	return lt
}

func TestFindValue_HDLAndNonHDLNeverConflated(t *testing.T) {
	hdl := mustTest(t, HDL)
	nonHDL := mustTest(t, NonHDL)

	cases := []struct {
		name       string
		text       string
		wantHDL    string
		wantNonHDL string
	}{
		{"non-hdl first", "Non-HDL Kolesterol: 160 mg/dL\nHDL Kolesterol: 45 mg/dL", "45", "160"},
		{"hdl first", "HDL: 45 Non-HDL: 160", "45", "160"},
		{"short labels", "LDL 110 HDL 38 NON-HDL 140", "38", "140"},
		{"turkish alias", "HDL Dışı Kolesterol 171 | HDL Kolesterol 52", "52", "171"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, p := DefaultCatalog.FindValue(tc.text, hdl)
			assert.Equal(t, Found, p)
			assert.Equal(t, tc.wantHDL, v)

			v, p = DefaultCatalog.FindValue(tc.text, nonHDL)
			assert.Equal(t, Found, p)
			assert.Equal(t, tc.wantNonHDL, v)
		})
	}
}

func TestFindValue_OnlyNonHDLPresent(t *testing.T) {
	v, p := DefaultCatalog.FindValue("Non-HDL Kolesterol: 160", mustTest(t, HDL))
	assert.Equal(t, Absent, p)
	assert.Empty(t, v)
}

func TestFindValue_DashMeansNoPriorValue(t *testing.T) {
	_, p := DefaultCatalog.FindValue("Kreatinin: - \nHDL: 50", mustTest(t, Creatinine))
	assert.Equal(t, Dash, p)
}

func TestFindValue_WindowStopsAtNextLabel(t *testing.T) {
	// Creatinine has no number of its own; TSH's value must not leak into it.
	_, p := DefaultCatalog.FindValue("Kreatinin TSH 2,4", mustTest(t, Creatinine))
	assert.Equal(t, Absent, p)

	v, p := DefaultCatalog.FindValue("Kreatinin TSH 2,4", mustTest(t, TSH))
	assert.Equal(t, Found, p)
	assert.Equal(t, "2,4", v)
}

func TestFindValue_ShorterAliasInsideLongerLabel(t *testing.T) {
	text := "Oral Glukoz Tolerans Testi: 140"
	_, p := DefaultCatalog.FindValue(text, mustTest(t, Glucose))
	assert.Equal(t, Absent, p)

	v, p := DefaultCatalog.FindValue(text, mustTest(t, OGTT))
	assert.Equal(t, Found, p)
	assert.Equal(t, "140", v)
}

func TestFirstValue_Priority(t *testing.T) {
	text := "HbA1c, Glukoz veya OGTT testlerinden en az biri girilmelidir. Açlık Kan Şekeri: 92 mg/dL  OGTT: 150"
	test, v, ok := DefaultCatalog.FirstValue(text, HbA1c, Glucose, FastingGlucose, OGTT)
	require.True(t, ok)
	assert.Equal(t, FastingGlucose, test.Key)
	assert.Equal(t, "92", v)
}

func TestIdentify(t *testing.T) {
	lt, ok := DefaultCatalog.Identify("Non-HDL Kolesterol")
	require.True(t, ok)
	assert.Equal(t, NonHDL, lt.Key)

	lt, ok = DefaultCatalog.Identify("hdl kolesterol")
	require.True(t, ok)
	assert.Equal(t, HDL, lt.Key)

	_, ok = DefaultCatalog.Identify("Vitamin D")
	assert.False(t, ok)
}

// labForm wires a fake lab page. Boxes listed in sticky survive clear-all
// until a value for them has been saved through the external lab panel.
type labForm struct {
	page   *portaltest.Page
	boxes  []*portaltest.Element
	sticky map[string]bool
	saved  map[string]string
}

func newLabForm(body string, sticky ...string) *labForm {
	f := &labForm{
		page:   portaltest.New("https://hyp.test/#/tetkik", body),
		sticky: map[string]bool{},
		saved:  map[string]string{},
	}
	for _, s := range sticky {
		f.sticky[s] = true
	}

	f.page.On(portal.ClearAllTests, portaltest.Button("Tümünü Temizle", func(p *portaltest.Page, _ *portaltest.Element) {
		for _, b := range f.boxes {
			if !f.sticky[b.Label] {
				b.IsChecked = false
			}
		}
		p.Body = "Tetkikler temizlendi"
	}))

	testSelect := portaltest.Input("", nil)
	valueInput := portaltest.Input("", nil)
	f.page.On(portal.ExternalLabOpen, portaltest.Button("Dış Laboratuvar Sonucu", nil))
	f.page.On(portal.ExternalLabTest, testSelect)
	f.page.On(portal.ExternalLabValue, valueInput)
	f.page.On(portal.ExternalLabSave, portaltest.Button("Kaydet", func(p *portaltest.Page, _ *portaltest.Element) {
		f.saved[testSelect.Val] = valueInput.Val
		delete(f.sticky, testSelect.Val)
	}))
	return f
}

func (f *labForm) box(label string) {
	b := portaltest.Checkbox(label, true)
	f.boxes = append(f.boxes, b)
	f.page.Add(portal.LabCheckboxes.Strategies[0], b)
}

func fastRecoverer() *Recoverer {
	r := New(DefaultCatalog)
	r.Transition = 5 * time.Millisecond
	r.Poll = time.Millisecond
	return r
}

func TestRecoverAndClear_RecoversFromSnapshot(t *testing.T) {
	f := newLabForm("Son Tetkikler: HDL Kolesterol: 48 mg/dL  Non-HDL Kolesterol: 150", "HDL Kolesterol")
	f.box("HDL Kolesterol")
	f.box("LDL Kolesterol")

	values, err := fastRecoverer().RecoverAndClear(context.Background(), f.page)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, LabValue{Test: "HDL Kolesterol", Value: "48", Source: SourceRecovered}, values[0])
	assert.Equal(t, map[string]string{"HDL Kolesterol": "48"}, f.saved)
	for _, b := range f.boxes {
		assert.False(t, b.IsChecked, b.Label)
	}
}

func TestRecoverAndClear_UnrecoverableCreatinine(t *testing.T) {
	f := newLabForm("Kreatinin: -", "Kreatinin")
	f.box("Kreatinin")

	_, err := fastRecoverer().RecoverAndClear(context.Background(), f.page)
	require.Error(t, err)
	mt, ok := IsMissingTests(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Kreatinin"}, mt.Tests)
	assert.Empty(t, f.saved, "nothing to submit")
}

func TestRecoverAndClear_NothingLeftChecked(t *testing.T) {
	f := newLabForm("HbA1c: 6,1")
	f.box("HbA1c")

	values, err := fastRecoverer().RecoverAndClear(context.Background(), f.page)
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.Empty(t, f.saved)
}
