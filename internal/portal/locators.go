package portal

import "fmt"

// Named locators for the HYP portal. Strategies are listed most specific first;
// the later ones survive cosmetic markup changes.
var (
	Continue = NewLocator("continue",
		XPath("//button[contains(@class,'hyp-next-button')]"),
		XPath("//button[.//span[contains(text(),'İlerle')]]"),
		XPath("//button[contains(.,'İlerle')]"),
	)

	Finalize = NewLocator("finalize",
		XPath("//button[contains(.,'Sonlandır ve Çık')]"),
		XPath("//button[contains(.,'Sonlandır')]"),
	)

	ConfirmDialog = NewLocator("confirm-dialog",
		XPath("//div[contains(@class,'modal')]//button[contains(.,'Evet')]"),
		XPath("//div[contains(@class,'modal')]//button[contains(.,'Tamam')]"),
		XPath("//button[contains(.,'Onayla')]"),
	)

	PopupNo = NewLocator("popup-no",
		XPath("//div[contains(@class,'modal')]//button[contains(.,'Hayır')]"),
	)

	StartTask = NewLocator("start-task",
		XPath("//button[contains(.,'Tarama Başlat')]"),
		XPath("//button[contains(.,'İzlem Başlat')]"),
	)

	// StartOption picks the encounter mode offered after starting a task.
	StartOption = NewLocator("start-option",
		XPath("//button[contains(.,'Yüz Yüze')]"),
		XPath("//button[contains(.,'Taramayla Devam')]"),
		XPath("//button[contains(.,'İzlemle Devam')]"),
		XPath("//button[contains(.,'Devam Et')]"),
	)

	CancelTask = NewLocator("cancel-task",
		XPath("//button[contains(@class,'hyp-cancel-button')]"),
		XPath("//button[contains(.,'İptal')]"),
		XPath("//button[contains(.,'Vazgeç')]"),
	)

	DeleteLastFollowUp = NewLocator("delete-last-follow-up",
		XPath("//button[contains(.,'Son İzlemi Sil')]"),
		XPath("//button[contains(.,'İzlemi Sil')]"),
	)

	// Login

	LoginButton = NewLocator("login-button",
		XPath("//*[@id='header']/div/div/button"),
		XPath("//button[contains(.,'Giriş')]"),
	)

	ESignatureLogin = NewLocator("e-signature-login",
		XPath("//button[contains(.,'E-İmza')]"),
		XPath("//a[contains(.,'E-İmza')]"),
	)

	PINInput = NewLocator("pin-input",
		CSS("#popupPinCode_Password"),
		CSS("input[type='password']"),
	)

	PINSubmit = NewLocator("pin-submit",
		XPath("//div[contains(@class,'modal')]//button[contains(.,'Giriş')]"),
		XPath("//div[contains(@class,'modal')]//button[contains(.,'Tamam')]"),
	)

	LoggedInMarker = NewLocator("logged-in",
		CSS(".hyp-user-menu"),
		XPath("//button[contains(.,'Çıkış')]"),
	)

	// Patients and cards

	PatientSearchInput = NewLocator("patient-search-input",
		CSS("#hastaAra"),
		CSS("input[placeholder*='T.C.']"),
	)

	PatientSearchButton = NewLocator("patient-search-button",
		XPath("//button[contains(.,'Ara')]"),
	)

	// AppointmentDate is the date filter above the appointment list.
	AppointmentDate = NewLocator("appointment-date",
		CSS("input#randevuTarihi"),
		XPath("//input[contains(@placeholder,'gg.aa.yyyy')]"),
	)

	AppointmentList = NewLocator("appointment-list",
		XPath("//button[contains(.,'Listele')]"),
		XPath("//button[contains(.,'Getir')]"),
	)

	PatientRows = NewLocator("patient-rows",
		CSS("table.hasta-listesi tbody tr"),
		CSS(".hyp-patient-row"),
	)

	MainCards = NewLocator("main-cards",
		CSS(".hyp-card-list .hyp-card"),
		XPath("//div[contains(@class,'hyp-task-card')]"),
	)

	SideCards = NewLocator("side-cards",
		CSS(".hyp-side-list .hyp-card"),
	)

	MedicationRows = NewLocator("medication-rows",
		CSS("tr[data-atc]"),
	)

	// Protocol forms

	VitalInputs = NewLocator("vital-inputs",
		CSS("input.hyp-vital-input"),
		CSS("input[type='number'][required]"),
	)

	PregnancyNo = NewLocator("pregnancy-no",
		XPath("//div[contains(text(),'gebe mi')]//following::button[contains(.,'Hayır')]"),
	)

	PregnancyYes = NewLocator("pregnancy-yes",
		XPath("//div[contains(text(),'gebe mi')]//following::button[contains(.,'Evet')]"),
	)

	MedicationYes = NewLocator("medication-yes",
		XPath("//div[contains(text(),'ilaç kullan')]//following::button[contains(.,'Evet')]"),
	)

	MedicationNo = NewLocator("medication-no",
		XPath("//div[contains(text(),'ilaç kullan')]//following::button[contains(.,'Hayır')]"),
	)

	AtRiskNo = NewLocator("at-risk-no",
		XPath("//div[contains(text(),'risk altında')]//following::button[contains(.,'Hayır')]"),
	)

	DiagnosisSelect = NewLocator("diagnosis-select",
		CSS("select#taniKodu"),
		XPath("//select[contains(@name,'tani')]"),
	)

	FollowUpIntervals = NewLocator("follow-up-intervals",
		CSS("input[type='radio'][name='izlemAraligi']"),
	)

	ComorbidityChecks = NewLocator("comorbidity-checks",
		XPath("//div[contains(@class,'eslik-eden')]//input[@type='checkbox']"),
	)

	BoneDensityNo = NewLocator("bone-density-no",
		XPath("//div[contains(text(),'Kemik mineral')]//following::button[contains(.,'Hayır')]"),
	)

	UnansweredToggleNo = NewLocator("unanswered-toggle-no",
		XPath("//div[contains(@class,'hyp-toggle') and not(.//button[contains(@class,'active')])]//button[contains(.,'Hayır')]"),
	)

	// Labs

	LabCheckboxes = NewLocator("lab-checkboxes",
		CSS("input[type='checkbox'][data-test-name]"),
		XPath("//div[contains(@class,'tetkik')]//input[@type='checkbox']"),
	)

	ClearAllTests = NewLocator("clear-all-tests",
		XPath("//button[contains(.,'Tümünü Temizle')]"),
		XPath("//button[contains(.,'Tetkikleri Temizle')]"),
	)

	ExternalLabOpen = NewLocator("external-lab-open",
		XPath("//button[contains(.,'Dış Laboratuvar')]"),
		XPath("//button[contains(.,'Harici Sonuç')]"),
	)

	ExternalLabTest = NewLocator("external-lab-test",
		CSS("select#disLabTetkik"),
		XPath("//div[contains(@class,'modal')]//select"),
	)

	ExternalLabValue = NewLocator("external-lab-value",
		CSS("input#disLabSonuc"),
		XPath("//div[contains(@class,'modal')]//input[@type='number']"),
	)

	ExternalLabSave = NewLocator("external-lab-save",
		XPath("//div[contains(@class,'modal')]//button[contains(.,'Kaydet')]"),
	)
)

// FollowUpBucket selects the follow-up period radio for months.
func FollowUpBucket(months int) Locator {
	return NewLocator(fmt.Sprintf("follow-up-%dm", months),
		CSS(fmt.Sprintf("input[type='radio'][name='izlemSuresi'][value='%d']", months)),
		XPath(fmt.Sprintf("//label[contains(.,'%d Ay')]//input[@type='radio']", months)),
	)
}
