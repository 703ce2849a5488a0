package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hypauto/internal/portal/portaltest"
)

var testTable = Table{
	Name: "test",
	Rules: []Rule{
		{State: OptIn, Keywords: []string{"SMS onay"}},
		{State: Summary, Paths: []string{"/ozet"}, Keywords: []string{"SONLANDIRILMASI", "SONLANDIRMA"}},
		{State: Vitals, Paths: []string{"/vital"}, Keywords: []string{"Vital Bulgu"}},
		{State: Lifestyle, Keywords: []string{"Yaşam Tarzı"}},
	},
}

func TestClassify_PathBeforeKeyword(t *testing.T) {
	// The text mentions the summary step in a sidebar, but the route is the vitals form.
	page := portaltest.New("https://hyp.test/#/hasta/1/vital", "Adımlar: Vital Bulgular, Protokol Sonlandırma")
	assert.Equal(t, Vitals, Classify(page, testTable))
}

func TestClassify_KeywordFallbackIsCaseAndDiacriticInsensitive(t *testing.T) {
	page := portaltest.New("https://hyp.test/#/hasta/1/form", "YASAM TARZI ÖNERİLERİ")
	assert.Equal(t, Lifestyle, Classify(page, testTable))

	page = portaltest.New("https://hyp.test/#/hasta/1/form", "izlemin sonlandırılması")
	assert.Equal(t, Summary, Classify(page, testTable))
}

func TestClassify_TableOrderDecides(t *testing.T) {
	page := portaltest.New("https://hyp.test/x", "SMS onayı gerekli. Vital bulgular")
	assert.Equal(t, OptIn, Classify(page, testTable))
}

func TestClassify_Unknown(t *testing.T) {
	page := portaltest.New("https://hyp.test/x", "Hoş geldiniz")
	assert.Equal(t, Unknown, Classify(page, testTable))
}

func TestClassify_Pure(t *testing.T) {
	page := portaltest.New("https://hyp.test/#/a", "Vital Bulgular")
	first := Classify(page, testTable)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(page, testTable))
	}
	assert.Empty(t, page.Actions(), "classification must not interact with the page")
	assert.Equal(t, "Vital Bulgular", page.VisibleText())
}
