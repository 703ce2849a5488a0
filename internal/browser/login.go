package browser

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"hypauto/internal/logging"
	"hypauto/internal/portal"
)

// ErrLoginTimeout is returned when the PIN was not accepted within the wait.
var ErrLoginTimeout = errors.New("login not completed in time")

// LoginState is what the login flow sees on the current tab.
type LoginState int

const (
	LoginOther LoginState = iota
	LoggedIn
	PINPromptOpen
	LoginPageVisible
)

func (s LoginState) String() string {
	switch s {
	case LoggedIn:
		return "logged-in"
	case PINPromptOpen:
		return "pin-prompt"
	case LoginPageVisible:
		return "login-page"
	default:
		return "other"
	}
}

// LoginOptions bounds the login waits.
type LoginOptions struct {
	PINWait        time.Duration
	PINPoll        time.Duration
	Transition     time.Duration
	TransitionPoll time.Duration
}

// ClassifyLogin inspects the page for the session markers.
func ClassifyLogin(ctx context.Context, p portal.Page) LoginState {
	switch {
	case portal.LoggedInMarker.Present(ctx, p):
		return LoggedIn
	case portal.PINInput.Present(ctx, p):
		return PINPromptOpen
	case portal.LoginButton.Present(ctx, p), portal.ESignatureLogin.Present(ctx, p):
		return LoginPageVisible
	default:
		return LoginOther
	}
}

// Login brings p to a signed-in state. A page that is already signed in
// returns at once. From the login page the e-signature path is opened; the PIN
// is typed and submitted when autoSubmit is set and pin is non-empty,
// otherwise the operator is given PINWait to enter it by hand.
func Login(ctx context.Context, p portal.Page, pin string, autoSubmit bool, opts LoginOptions) error {
	state := ClassifyLogin(ctx, p)
	logging.Session("Login state: %s", state)

	if state == LoggedIn {
		return nil
	}

	if state == LoginPageVisible {
		for _, loc := range []portal.Locator{portal.LoginButton, portal.ESignatureLogin} {
			before := portal.Fingerprint(p)
			if err := loc.Click(ctx, p); err != nil {
				logging.SessionDebug("Login step %s skipped: %v", loc.Name, err)
				continue
			}
			portal.WaitTransition(ctx, p, before, opts.Transition, opts.TransitionPoll)
		}
	}

	if autoSubmit && pin != "" {
		ready := portal.PollUntil(ctx, opts.Transition*5, opts.TransitionPoll, func() bool {
			return portal.PINInput.Present(ctx, p)
		})
		if ready {
			if err := submitPIN(ctx, p, pin); err != nil {
				logging.SessionWarn("PIN auto-submit failed: %v", err)
			}
		} else {
			logging.SessionWarn("PIN prompt did not appear, waiting for manual entry")
		}
	} else {
		logging.Session("Waiting up to %s for manual PIN entry", opts.PINWait)
	}

	poll := opts.PINPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ok := portal.PollUntil(ctx, opts.PINWait, poll, func() bool {
		return ClassifyLogin(ctx, p) == LoggedIn
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return ErrLoginTimeout
	}
	logging.Session("Logged in")
	return nil
}

func submitPIN(ctx context.Context, p portal.Page, pin string) error {
	in, err := portal.PINInput.First(ctx, p)
	if err != nil {
		return err
	}
	if err := in.SetValue(ctx, pin); err != nil {
		return err
	}
	return portal.PINSubmit.Click(ctx, p)
}

// sameSite reports whether two URLs point at the same host.
func sameSite(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}
