// Package browser owns the Chrome session that drives the HYP portal: it
// attaches to or launches the browser, signs in with the e-signature PIN and
// exposes the active tab as a portal.Page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"hypauto/internal/config"
	"hypauto/internal/logging"
	"hypauto/internal/portal"
)

// ErrNotConnected is returned by operations that need a live browser.
var ErrNotConnected = errors.New("browser not connected")

// Config holds browser configuration.
type Config struct {
	PortalURL   string
	DebuggerURL string
	Bin         string
	Headless    bool
	ProfileDir  string

	NavigationTimeout time.Duration
	Transition        time.Duration
	TransitionPoll    time.Duration
	PINWait           time.Duration
	PINPoll           time.Duration
	KeepAliveIdle     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebuggerURL:       "http://127.0.0.1:9222",
		NavigationTimeout: 30 * time.Second,
		Transition:        time.Second,
		TransitionPoll:    100 * time.Millisecond,
		PINWait:           120 * time.Second,
		PINPoll:           2 * time.Second,
		KeepAliveIdle:     120 * time.Second,
	}
}

// FromConfig derives the browser settings from the application config.
func FromConfig(c *config.Config) Config {
	return Config{
		PortalURL:         c.Portal.URL,
		DebuggerURL:       c.Browser.DebuggerURL,
		Bin:               c.Browser.Bin,
		Headless:          c.Browser.Headless,
		ProfileDir:        c.ProfileDir(),
		NavigationTimeout: c.GetNavigationTimeout(),
		Transition:        c.GetTransitionTimeout(),
		TransitionPoll:    c.GetTransitionPoll(),
		PINWait:           c.GetPINWait(),
		PINPoll:           c.GetPINPoll(),
		KeepAliveIdle:     c.GetKeepAliveIdle(),
	}
}

// Controller owns one browser and the tab the automation works in.
type Controller struct {
	cfg Config

	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	attached   bool
	controlURL string
	lastActive time.Time
}

// NewController creates a controller. Connect must be called before use.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Connect attaches to the configured debugger endpoint when attach is set and
// it answers; otherwise it launches Chrome with the persistent profile. The
// portal is opened unless the attached tab already shows it.
func (c *Controller) Connect(ctx context.Context, attach bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("Stale browser connection detected, reconnecting")
		c.closeLocked()
	}

	timer := logging.StartTimer(logging.CategoryBrowser, "connect")
	defer timer.Stop()

	controlURL := ""
	if attach && c.cfg.DebuggerURL != "" {
		u, err := launcher.ResolveURL(c.cfg.DebuggerURL)
		if err == nil {
			controlURL = u
			c.attached = true
			logging.Session("Attaching to running browser at %s", c.cfg.DebuggerURL)
		} else {
			logging.SessionWarn("No browser at %s (%v), launching one", c.cfg.DebuggerURL, err)
		}
	}

	if controlURL == "" {
		l := launcher.New().Headless(c.cfg.Headless).Leakless(false)
		if c.cfg.Bin != "" {
			l = l.Bin(c.cfg.Bin)
		}
		if c.cfg.ProfileDir != "" {
			l = l.UserDataDir(c.cfg.ProfileDir)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		c.attached = false
		logging.Session("Launched browser (headless=%v, profile=%s)", c.cfg.Headless, c.cfg.ProfileDir)
	}

	// The browser outlives ctx: a stop request must not cut off the card
	// that is still being finished.
	browser := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	c.browser = browser
	c.controlURL = controlURL

	page, err := c.openPortalLocked()
	if err != nil {
		c.closeLocked()
		return err
	}
	c.page = page
	c.lastActive = time.Now()
	return nil
}

// openPortalLocked reuses the first open tab when attached and opens the
// portal in it unless it is already there.
func (c *Controller) openPortalLocked() (*rod.Page, error) {
	var page *rod.Page
	if c.attached {
		pages, err := c.browser.Pages()
		if err == nil && len(pages) > 0 {
			page = pages.First()
		}
	}
	if page == nil {
		p, err := c.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		page = p
	}

	if c.cfg.PortalURL == "" {
		return page, nil
	}
	if info, err := page.Info(); err == nil && sameSite(info.URL, c.cfg.PortalURL) {
		logging.BrowserDebug("Tab already on portal: %s", info.URL)
		return page, nil
	}
	if err := page.Timeout(c.cfg.NavigationTimeout).Navigate(c.cfg.PortalURL); err != nil {
		return nil, fmt.Errorf("open portal %s: %w", c.cfg.PortalURL, err)
	}
	_ = page.Timeout(c.cfg.NavigationTimeout).WaitLoad()
	return page, nil
}

// Login signs in to the portal. See Login for the flow.
func (c *Controller) Login(ctx context.Context, pin string, autoSubmit bool) error {
	p, err := c.Page()
	if err != nil {
		return err
	}
	return Login(ctx, p, pin, autoSubmit, LoginOptions{
		PINWait:        c.cfg.PINWait,
		PINPoll:        c.cfg.PINPoll,
		Transition:     c.cfg.Transition,
		TransitionPoll: c.cfg.TransitionPoll,
	})
}

// Page exposes the active tab.
func (c *Controller) Page() (portal.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return nil, ErrNotConnected
	}
	return &Page{page: c.page, touch: c.touch}, nil
}

// KeepAlive pokes the portal when the session has been idle for at least the
// configured period, so the server-side session does not expire between
// patients.
func (c *Controller) KeepAlive(ctx context.Context) error {
	c.mu.Lock()
	page := c.page
	idle := time.Since(c.lastActive)
	c.mu.Unlock()

	if page == nil {
		return ErrNotConnected
	}
	if idle < c.cfg.KeepAliveIdle {
		return nil
	}
	if _, err := page.Context(ctx).Eval(`() => window.scrollBy(0, 0)`); err != nil {
		return fmt.Errorf("keep-alive: %w", err)
	}
	logging.SessionDebug("Keep-alive after %s idle", idle.Round(time.Second))
	c.touch()
	return nil
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// ControlURL returns the WebSocket debugger URL.
func (c *Controller) ControlURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlURL
}

// Close shuts down a launched browser. An attached browser is left running
// for the operator.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Controller) closeLocked() error {
	var err error
	if c.browser != nil && !c.attached {
		err = c.browser.Close()
	}
	c.browser = nil
	c.page = nil
	c.controlURL = ""
	return err
}
