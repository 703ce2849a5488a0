// Package clinical holds the patient-level lookups the protocols consult:
// medication analysis, the elderly frailty score and the pregnancy roster.
package clinical

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Medication is one prescription line read from the patient's record.
type Medication struct {
	Name             string
	ATC              string
	LastPrescription time.Time
	Quantity         int // boxes
	PackageSize      int // units per box, taken one per day
}

// ActiveOn reports whether the last prescription still covers day:
// lastPrescription + quantity×packageSize days ≥ day.
// This is independent of whether the drug is chronic.
func (m Medication) ActiveOn(day time.Time) bool {
	if m.LastPrescription.IsZero() {
		return false
	}
	supply := m.Quantity * m.PackageSize
	if supply <= 0 {
		return false
	}
	end := truncateDay(m.LastPrescription).AddDate(0, 0, supply)
	return !end.Before(truncateDay(day))
}

func truncateDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// chronicATC lists ATC prefixes of long-term therapies.
var chronicATC = map[string]string{
	"C01": "Kardiyak glikozidler",
	"C02": "Antihipertansifler",
	"C03": "Diüretikler",
	"C07": "Beta blokerler",
	"C08": "Kalsiyum kanal blokerleri",
	"C09": "RAA sistemi ilaçları",
	"C10": "Lipid düzenleyiciler",

	"A10A": "İnsülinler",
	"A10B": "Oral antidiyabetikler",

	"N02A": "Opioidler",
	"N03":  "Antiepileptikler",
	"N04":  "Antiparkinson",
	"N05A": "Antipsikotikler",
	"N05B": "Anksiyolitikler",
	"N05C": "Hipnotik/sedatifler",
	"N06A": "Antidepresanlar",
	"N06D": "Demans ilaçları",

	"R03": "Astım/KOAH ilaçları",

	"H01": "Hipofiz hormonları",
	"H02": "Sistemik kortikosteroidler",
	"H03": "Tiroid ilaçları",

	"B01A": "Antitrombotikler",
	"B03":  "Antianemikler",

	"G04B": "Ürolojikler",
	"G04C": "BPH ilaçları",

	"L04":  "İmmünsüpresanlar",
	"M05B": "Osteoporoz ilaçları",
	"S01E": "Glokom ilaçları",
}

// shortTermATC lists ATC prefixes excluded from polypharmacy counting.
var shortTermATC = map[string]string{
	"J01":  "Antibiyotikler",
	"J02":  "Sistemik antifungaller",
	"J05":  "Antiviraller",
	"D01":  "Topikal antifungaller",
	"D06":  "Topikal antibiyotikler",
	"D07":  "Topikal kortikosteroidler",
	"M01A": "NSAİİ",
	"M02":  "Topikal ağrı kesiciler",
	"N02B": "Analjezikler",
	"R05":  "Öksürük/soğuk algınlığı",
	"A02":  "Antasitler",
	"A03":  "Gİ spazmolitikler",
	"A07":  "Antidiyareikler",
}

// inappropriateATC lists drugs to avoid in the elderly (Beers criteria).
var inappropriateATC = map[string]string{
	"N05BB01": "Difenhidramin - yaşlıda kaçınılmalı",
	"R06AA02": "Difenhidramin - antikolinerjik etki",
	"A03B":    "Belladonna alkaloidleri - antikolinerjik",
	"N05BA01": "Diazepam - uzun etkili, düşme riski",
	"N05BA05": "Klordiazepoksit - uzun etkili",
	"N05CD02": "Nitrazepam - uzun etkili",
	"R06AA":   "Birinci kuşak antihistaminikler",
	"R06AB":   "Birinci kuşak antihistaminikler",
	"A03BA":   "Atropin türevleri",
	"A03BB":   "Skopolamin türevleri",
	"M01AB05": "Diklofenak - Gİ kanama riski",
	"M01AE01": "İbuprofen - uzun süreli kullanımda risk",
	"M01AC01": "Piroksikam - uzun yarı ömür",
	"M03BX":   "Merkezi etkili kas gevşeticiler",
	"C01AA05": "Digoksin - doz kontrolü gerekli",
	"C02CA":   "Alfa blokerler - ortostatik hipotansiyon",
	"A10AB":   "Kısa etkili insülin - sliding scale riskli",
}

// matchPrefix returns the category of the longest prefix of code in table.
func matchPrefix(table map[string]string, code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", false
	}
	best := ""
	for prefix := range table {
		if strings.HasPrefix(code, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", false
	}
	return table[best], true
}

// IsChronic reports whether the ATC code belongs to a long-term therapy class.
func IsChronic(atc string) bool {
	_, ok := matchPrefix(chronicATC, atc)
	return ok
}

// PolypharmacyLevel grades the chronic drug count.
type PolypharmacyLevel string

const (
	PolypharmacyNone      PolypharmacyLevel = "YOK"
	PolypharmacyRisk      PolypharmacyLevel = "RISK"
	PolypharmacyPresent   PolypharmacyLevel = "MEVCUT"
	PolypharmacyExcessive PolypharmacyLevel = "ASIRI"
)

// DrugNote is a drug with the reason it was listed.
type DrugNote struct {
	Name string
	ATC  string
	Note string
}

// Analysis summarizes a medication list.
type Analysis struct {
	ChronicCount    int
	Chronic         []DrugNote
	ShortTerm       []DrugNote
	Inappropriate   []DrugNote
	Polypharmacy    bool
	Level           PolypharmacyLevel
	Recommendations []string
}

// DrugAnalyzer classifies medications by ATC code. Names without a code are
// resolved through an optional name→ATC table.
type DrugAnalyzer struct {
	atcByName map[string]string
}

// NewDrugAnalyzer returns an analyzer. atcByName may be nil.
func NewDrugAnalyzer(atcByName map[string]string) *DrugAnalyzer {
	idx := make(map[string]string, len(atcByName))
	for name, code := range atcByName {
		idx[strings.ToUpper(strings.TrimSpace(name))] = code
	}
	return &DrugAnalyzer{atcByName: idx}
}

// ATCFor returns the code of m, looking the name up when the code is missing.
// A name matches exactly, or by its first word as a prefix of a known name.
func (a *DrugAnalyzer) ATCFor(m Medication) string {
	if m.ATC != "" {
		return m.ATC
	}
	name := strings.ToUpper(strings.TrimSpace(m.Name))
	if name == "" {
		return ""
	}
	if code, ok := a.atcByName[name]; ok {
		return code
	}
	first := strings.Fields(name)[0]
	keys := make([]string, 0, len(a.atcByName))
	for k := range a.atcByName {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, first) {
			return a.atcByName[k]
		}
	}
	return ""
}

// Analyze counts chronic drugs, grades polypharmacy and flags drugs
// inappropriate for the elderly.
func (a *DrugAnalyzer) Analyze(meds []Medication) Analysis {
	res := Analysis{Level: PolypharmacyNone}

	for _, m := range meds {
		code := a.ATCFor(m)
		if cat, ok := matchPrefix(chronicATC, code); ok {
			res.ChronicCount++
			res.Chronic = append(res.Chronic, DrugNote{Name: m.Name, ATC: code, Note: cat})
		} else if cat, ok := matchPrefix(shortTermATC, code); ok {
			res.ShortTerm = append(res.ShortTerm, DrugNote{Name: m.Name, ATC: code, Note: cat})
		}
		if warn, ok := matchPrefix(inappropriateATC, code); ok {
			res.Inappropriate = append(res.Inappropriate, DrugNote{Name: m.Name, ATC: code, Note: warn})
		}
	}

	switch {
	case res.ChronicCount >= 10:
		res.Polypharmacy = true
		res.Level = PolypharmacyExcessive
		res.Recommendations = append(res.Recommendations, "Aşırı polifarmasi (10+ ilaç): acil ilaç gözden geçirmesi")
	case res.ChronicCount >= 5:
		res.Polypharmacy = true
		res.Level = PolypharmacyPresent
		res.Recommendations = append(res.Recommendations, "Polifarmasi (5+ kronik ilaç): etkileşimleri değerlendirin")
	case res.ChronicCount >= 3:
		res.Level = PolypharmacyRisk
		res.Recommendations = append(res.Recommendations, "Polifarmasi riski (3-4 kronik ilaç): takip edin")
	}
	if n := len(res.Inappropriate); n > 0 {
		res.Recommendations = append(res.Recommendations, fmt.Sprintf("%d potansiyel uygunsuz ilaç tespit edildi", n))
	}
	return res
}
