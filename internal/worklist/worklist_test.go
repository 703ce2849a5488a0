package worklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypauto/internal/portal"
	"hypauto/internal/portal/portaltest"
	"hypauto/internal/quota"
)

var today = time.Date(2026, 10, 18, 9, 30, 0, 0, time.Local)

func dated(t quota.TaskType, days int) Card {
	return Card{Type: t, Known: true, State: DueDated, DueDate: today.AddDate(0, 0, days)}
}

func TestEligible_DueWindows(t *testing.T) {
	cases := []struct {
		name      string
		days      int
		screening bool
		followUp  bool
	}{
		{"due in 10 days", 10, true, true},
		{"due in 15 days", 15, true, true},
		{"due in 20 days", 20, true, false},
		{"due in 30 days", 30, true, false},
		{"due in 31 days", 31, false, false},
		{"overdue by 5 days", -5, true, true},
		{"due today", 0, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.screening, Eligible(dated(quota.DIYScreening, tc.days), today))
			assert.Equal(t, tc.followUp, Eligible(dated(quota.DIYFollowUp, tc.days), today))
		})
	}
}

func TestEligible_ImmediateIgnoresDate(t *testing.T) {
	c := ParseCard("Hipertansiyon İzlemi\nSon tarih: 01.06.2027\nHemen yapılabilir")
	require.True(t, c.Known)
	assert.Equal(t, DueImmediate, c.State)
	assert.True(t, Eligible(c, today))

	c = ParseCard("Diyabet Taraması\nHemen Yapılabilir")
	assert.True(t, Eligible(c, today))
}

func TestEligible_CompletedAndInProgress(t *testing.T) {
	assert.False(t, Eligible(ParseCard("Obezite Taraması\nTamamlandı"), today))
	assert.False(t, Eligible(ParseCard("Obezite İzlemi\nDevam ediyor"), today))
	assert.False(t, Eligible(Card{Type: quota.HTScreening}, today), "no due information")
}

func TestParseCard_Types(t *testing.T) {
	cases := map[string]quota.TaskType{
		"Hipertansiyon Taraması\n25.10.2026":                 quota.HTScreening,
		"Hipertansiyon İzlemi\n25.10.2026":                   quota.HTFollowUp,
		"Diyabet İzlem\n25.10.2026":                          quota.DIYFollowUp,
		"Obezite Tarama":                                     quota.OBEScreening,
		"Kardiyovasküler Risk Değerlendirme İzlemi":          quota.KVRFollowUp,
		"KARDİYOVASKÜLER RİSK TARAMASI":                      quota.KVRScreening,
		"Yaşlı Sağlığı İzlemi\nSon izlem tarihi: 02.09.2026": quota.YASFollowUp,
	}
	for text, want := range cases {
		c := ParseCard(text)
		assert.True(t, c.Known, text)
		assert.Equal(t, want, c.Type, text)
	}

	c := ParseCard("Kanser Taraması - Mamografi")
	assert.False(t, c.Known)
}

func TestParseCard_DueDate(t *testing.T) {
	c := ParseCard("Diyabet Taraması\nPlanlanan: 28.10.2026")
	require.Equal(t, DueDated, c.State)
	assert.Equal(t, 10, DaysUntil(c.DueDate, today))
	assert.Equal(t, "due-soon", DueLabel(c, today))

	c = ParseCard("Diyabet İzlemi\n15.12.2026")
	assert.Equal(t, "not-due", DueLabel(c, today))
}

func TestParseCard_RejectsImpossibleDates(t *testing.T) {
	for _, text := range []string{"31.02.2026", "29.02.2026", "00.10.2026", "12.13.2026"} {
		c := ParseCard("Diyabet İzlemi\n" + text)
		assert.NotEqual(t, DueDated, c.State, text)
		assert.True(t, c.DueDate.IsZero(), text)
	}

	c := ParseCard("Diyabet İzlemi\n29.02.2028")
	require.Equal(t, DueDated, c.State)
	assert.Equal(t, time.February, c.DueDate.Month())
}

func TestPatientMatches(t *testing.T) {
	p := ParsePatientRow("12345678901  AYŞE   YILMAZ  45")
	assert.Equal(t, "12345678901", p.ID)
	assert.Equal(t, "AYŞE YILMAZ", p.Name)

	assert.True(t, p.Matches("12345678901"))
	assert.False(t, p.Matches("12345678902"))
	assert.True(t, p.Matches("ayşe yılmaz"))
	assert.True(t, p.Matches("ayse  yilmaz"))
	assert.True(t, p.Matches("yılmaz"))
	assert.False(t, p.Matches("mehmet"))
	assert.False(t, p.Matches("   "))
}

func fastReader() *Reader {
	return &Reader{Transition: 5 * time.Millisecond, Poll: time.Millisecond}
}

func TestSearch_OpensMatchingRow(t *testing.T) {
	ctx := context.Background()
	page := portaltest.New("https://hyp.test/#/hastalar", "Hasta Listesi")
	page.On(portal.PatientSearchInput, portaltest.Input("", nil))
	page.On(portal.PatientSearchButton, portaltest.Button("Ara", nil))

	opened := ""
	open := func(id string) func(*portaltest.Page, *portaltest.Element) {
		return func(p *portaltest.Page, _ *portaltest.Element) {
			opened = id
			p.Show("https://hyp.test/#/hasta/"+id, "Hasta Bilgileri Yaş: 67")
		}
	}
	page.On(portal.PatientRows,
		&portaltest.Element{Label: "10000000146 MEHMET KAYA", OnClick: open("10000000146")},
		&portaltest.Element{Label: "12345678901 AYŞE YILMAZ", OnClick: open("12345678901")},
	)

	p, err := fastReader().Search(ctx, page, "Ayşe Yılmaz")
	require.NoError(t, err)
	assert.Equal(t, "12345678901", opened)
	assert.Equal(t, "12345678901", p.ID)
	assert.Equal(t, 67, p.Age)

	_, err = fastReader().Search(ctx, page, "99999999999")
	assert.True(t, errors.Is(err, ErrPatientNotFound))
}

func TestCards_MainAndSideLists(t *testing.T) {
	ctx := context.Background()
	page := portaltest.New("https://hyp.test/#/hasta/1", "")
	page.On(portal.MainCards,
		&portaltest.Element{Label: "Hipertansiyon İzlemi\nHemen yapılabilir"},
		&portaltest.Element{Label: "Diyabet Taraması\n01.02.2027"},
	)
	page.On(portal.SideCards, &portaltest.Element{Label: "Kardiyovasküler Risk İzlemi\nHemen yapılabilir"})

	cards, err := fastReader().Cards(ctx, page)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, quota.HTFollowUp, cards[0].Type)
	assert.False(t, cards[0].Side)
	assert.Equal(t, quota.KVRFollowUp, cards[2].Type)
	assert.True(t, cards[2].Side)
	assert.NotNil(t, cards[2].Ref)
}

func TestListPatients_Dedupes(t *testing.T) {
	page := portaltest.New("", "")
	page.On(portal.PatientRows,
		&portaltest.Element{Label: "12345678901 AYŞE YILMAZ"},
		&portaltest.Element{Label: "12345678901 AYŞE YILMAZ"},
		&portaltest.Element{Label: "başlık satırı"},
		&portaltest.Element{Label: "10000000146 MEHMET KAYA"},
	)
	got, err := fastReader().ListPatients(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10000000146", got[1].ID)
}

func TestListPatientsOn_SwitchesDate(t *testing.T) {
	page := portaltest.New("https://hyp.test/#/randevu", "18.10.2026 randevuları")
	page.On(portal.PatientRows, &portaltest.Element{Label: "12345678901 AYŞE YILMAZ"})
	page.On(portal.AppointmentDate, portaltest.Input("18.10.2026", nil))
	page.On(portal.AppointmentList, portaltest.Button("Listele", func(p *portaltest.Page, e *portaltest.Element) {
		p.Show(p.URL, "15.10.2026 randevuları")
		p.On(portal.PatientRows,
			&portaltest.Element{Label: "10000000146 MEHMET KAYA"},
			&portaltest.Element{Label: "10000000278 FATMA DEMİR"},
		)
	}))

	got, err := fastReader().ListPatientsOn(context.Background(), page, today.AddDate(0, 0, -3))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10000000146", got[0].ID)
	assert.Equal(t, []string{"set =15.10.2026", "click Listele"}, page.Actions())
}

func TestListPatientsOn_NoDateFilter(t *testing.T) {
	page := portaltest.New("", "")
	_, err := fastReader().ListPatientsOn(context.Background(), page, today)
	assert.ErrorIs(t, err, portal.ErrNotFound)
}

func TestReadAge(t *testing.T) {
	assert.Equal(t, 72, ReadAge("Ad Soyad: X  Yaş: 72  Cinsiyet: K", today))
	assert.Equal(t, 0, ReadAge("Yaşam tarzı önerileri 5", today))
	assert.Equal(t, 80, ReadAge("Doğum Tarihi: 01.02.1946", today))
}

func TestReadMedications(t *testing.T) {
	page := portaltest.New("", "")
	page.On(portal.MedicationRows, &portaltest.Element{
		Label: "Ramipril 5 mg",
		Attrs: map[string]string{
			"data-atc": "C09AA05", "data-last-date": "01.10.2026",
			"data-quantity": "2", "data-package-size": "28",
		},
	})
	meds, err := fastReader().ReadMedications(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.Equal(t, "C09AA05", meds[0].ATC)
	assert.True(t, meds[0].ActiveOn(today))
}
