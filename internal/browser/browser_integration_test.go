//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypauto/internal/browser"
	"hypauto/internal/portal"
)

const fakePortal = `<html><body>
<div id="header"><div><div><button onclick="document.getElementById('pin').style.display='block'">Giriş</button></div></div></div>
<div id="pin" class="modal" style="display:none">
  <input id="popupPinCode_Password" type="password">
  <button onclick="document.body.innerHTML='<button class=\'hyp-user-menu\'>Çıkış</button><p>Hoş geldiniz</p>'">Tamam</button>
</div>
<select id="taniKodu"><option value="">Seçiniz</option><option value="E66.9">E66.9 Obezite</option></select>
</body></html>`

func TestController_LoginAndLocate_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakePortal)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.PortalURL = ts.URL
	cfg.Headless = true
	cfg.ProfileDir = t.TempDir()
	cfg.PINWait = 10 * time.Second
	cfg.PINPoll = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := browser.NewController(cfg)
	require.NoError(t, c.Connect(ctx, false))
	defer c.Close()

	page, err := c.Page()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(page.CurrentURL(), ts.URL))

	sel, err := portal.DiagnosisSelect.First(ctx, page)
	require.NoError(t, err)
	require.NoError(t, sel.SetValue(ctx, "E66.9"))
	assert.Equal(t, "E66.9", sel.Value())

	require.NoError(t, c.Login(ctx, "123456", true))
	assert.Contains(t, page.VisibleText(), "Hoş geldiniz")
	require.NoError(t, c.KeepAlive(ctx))
}

func TestController_PageOutlivesStopRequest_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakePortal)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.PortalURL = ts.URL
	cfg.Headless = true
	cfg.ProfileDir = t.TempDir()

	runCtx, stop := context.WithCancel(context.Background())
	c := browser.NewController(cfg)
	require.NoError(t, c.Connect(runCtx, false))
	defer c.Close()

	page, err := c.Page()
	require.NoError(t, err)

	// Ctrl-C: the card in flight keeps working on a detached context.
	stop()
	cardCtx := context.WithoutCancel(runCtx)

	assert.True(t, strings.HasPrefix(page.CurrentURL(), ts.URL), "URL readable after stop")
	assert.Contains(t, page.VisibleText(), "Giriş", "text readable after stop")
	sel, err := portal.DiagnosisSelect.First(cardCtx, page)
	require.NoError(t, err)
	require.NoError(t, sel.SetValue(cardCtx, "E66.9"))
}
