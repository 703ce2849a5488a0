package protocol

import "hypauto/internal/classify"

// Rules every protocol checks before its own. Start comes last so a start
// button left in a sidebar never masks a form.
var (
	headRules = []classify.Rule{
		{State: classify.OptIn, Keywords: []string{"SMS ONAY"}},
		{State: classify.Done, Keywords: []string{"BAŞARIYLA TAMAMLANDI", "İŞLEM TAMAMLANDI"}},
		{State: classify.Summary, Paths: []string{"/ozet"}, Keywords: []string{"SONLANDIRILMASI", "SONLANDIRMA"}},
	}
	tailRules = []classify.Rule{
		{State: classify.Start, Keywords: []string{"TARAMA BAŞLAT", "İZLEM BAŞLAT"}},
	}
)

var (
	pregnancyRule  = classify.Rule{State: classify.Pregnancy, Keywords: []string{"GEBE Mİ"}}
	vitalsRule     = classify.Rule{State: classify.Vitals, Paths: []string{"/vital-bulgular"}, Keywords: []string{"VİTAL BULGU"}}
	labsRule       = classify.Rule{State: classify.Labs, Paths: []string{"/laboratuvar", "/tetkik"}, Keywords: []string{"TETKİK", "LABORATUVAR"}}
	medicationRule = classify.Rule{State: classify.Medication, Paths: []string{"/ilac"}, Keywords: []string{"İLAÇ KULLANIM"}}
	riskRule       = classify.Rule{State: classify.Risk, Paths: []string{"/risk-faktorleri"}, Keywords: []string{"RİSK FAKTÖR"}}
	symptomRule    = classify.Rule{State: classify.Symptom, Paths: []string{"/semptom"}, Keywords: []string{"ŞİKAYET", "SEMPTOM"}}
	anamnesisRule  = classify.Rule{State: classify.Anamnesis, Paths: []string{"/anamnez"}, Keywords: []string{"ANAMNEZ", "ÖYKÜ"}}
	lifestyleRule  = classify.Rule{State: classify.Lifestyle, Paths: []string{"/yasam-tarzi"}, Keywords: []string{"YAŞAM TARZI"}}
	diagnosisRule  = classify.Rule{State: classify.Diagnosis, Paths: []string{"/tani"}, Keywords: []string{"TANI KONULMASI", "TANI KODU"}}
	bloodSugarRule = classify.Rule{State: classify.BloodSugar, Paths: []string{"/kan-sekeri"}, Keywords: []string{"KAN ŞEKERİ ÖLÇÜM"}}
	followUpRule   = classify.Rule{State: classify.FollowUpPlan, Paths: []string{"/izlem-plani"}, Keywords: []string{"İZLEM ARALIĞI", "İZLEM PLANI"}}
	elderlyRule    = classify.Rule{State: classify.ElderlyAssessment, Paths: []string{"/yasli-degerlendirme"}, Keywords: []string{"KIRILGANLIK", "KEMİK MİNERAL"}}
)

func table(name string, domain ...classify.Rule) classify.Table {
	return classify.Merge(name, headRules, domain, tailRules)
}

var (
	htTable = table("HT",
		pregnancyRule, labsRule, vitalsRule, medicationRule, riskRule, symptomRule, lifestyleRule, followUpRule)
	diyTable = table("DIY",
		pregnancyRule, labsRule, bloodSugarRule, vitalsRule, medicationRule, anamnesisRule, riskRule, lifestyleRule, followUpRule)
	obeTable = table("OBE",
		pregnancyRule, diagnosisRule, labsRule, vitalsRule, medicationRule, anamnesisRule, lifestyleRule, followUpRule)
	kvrTable = table("KVR")
	yasTable = table("YAS",
		elderlyRule, labsRule, vitalsRule, medicationRule, anamnesisRule, followUpRule)
)
