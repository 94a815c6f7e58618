package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mediaferry/internal/browser"
	"mediaferry/internal/session"
)

// Service identifiers used as session-store keys.
const (
	ServiceApple  = "apple"
	ServiceGoogle = "google"
)

// ErrAuthenticationRequired means no valid session exists and no credentials
// were supplied. Not retryable without operator action.
var ErrAuthenticationRequired = errors.New("authentication required: no valid session and no credentials configured")

// Source-service login selectors. Vendor markup; expected to rot and need
// ongoing maintenance.
const (
	appleAccountInput  = `input#account_name_text_field`
	appleContinueArrow = `button#sign-in`
	applePasswordInput = `input#password_text_field`
	appleSignInButton  = `button#sign-in`
)

// Accounts carries the identities the authenticator signs in with. Passwords
// come from the environment; they are opaque to this package.
type Accounts struct {
	AppleID        string
	ApplePassword  string
	AppleLoginURL  string
	GoogleAccount  string
	GoogleLoginURL string
}

// Authenticator establishes authenticated pages for both services, reusing
// persisted sessions when they are still fresh.
type Authenticator struct {
	accounts Accounts
	sessions *session.Store
	handler  *Handler
	prompter Prompter
	log      *zap.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(accounts Accounts, sessions *session.Store, handler *Handler, prompter Prompter, log *zap.Logger) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		sessions: sessions,
		handler:  handler,
		prompter: prompter,
		log:      log,
	}
}

// EnsureApple leaves page signed in to the source service. With reuse enabled
// it first tries the stored session; otherwise (or when restore does not
// stick) it runs a fresh credential login with challenge handling and saves
// the new session.
func (a *Authenticator) EnsureApple(ctx context.Context, page browser.Page, reuse bool) error {
	if reuse && a.restore(ctx, page, ServiceApple, a.accounts.AppleLoginURL) {
		if signedIn, _ := a.appleSignedIn(ctx, page); signedIn {
			a.log.Info("source session restored", zap.String("service", ServiceApple))
			return nil
		}
		a.log.Info("restored source session no longer signed in, falling back to fresh login")
		_ = a.sessions.Clear(ServiceApple)
	}

	if a.accounts.AppleID == "" || a.accounts.ApplePassword == "" {
		return ErrAuthenticationRequired
	}
	return a.loginApple(ctx, page)
}

// EnsureGoogle leaves page signed in to the destination service. Destination
// sign-in is operator-driven (it happens once per freshness window), so a
// missing session defers to the human rather than scripting a second vendor's
// login form.
func (a *Authenticator) EnsureGoogle(ctx context.Context, page browser.Page, reuse bool) error {
	if reuse && a.restore(ctx, page, ServiceGoogle, a.accounts.GoogleLoginURL) {
		a.log.Info("destination session restored", zap.String("service", ServiceGoogle))
		return nil
	}

	if err := page.Navigate(ctx, a.accounts.GoogleLoginURL); err != nil {
		return err
	}
	if err := page.WaitStable(ctx); err != nil {
		return err
	}
	if err := a.prompter.Await(ctx, "Sign in to the destination account in the browser window, then press Enter."); err != nil {
		return err
	}
	return a.capture(ctx, page, ServiceGoogle)
}

// loginApple runs the credential flow: account id, password, then whatever
// challenge the service interposes.
func (a *Authenticator) loginApple(ctx context.Context, page browser.Page) error {
	if err := page.Navigate(ctx, a.accounts.AppleLoginURL); err != nil {
		return err
	}
	if err := page.WaitStable(ctx); err != nil {
		return err
	}

	if err := page.Fill(ctx, appleAccountInput, a.accounts.AppleID); err != nil {
		return err
	}
	if err := page.Click(ctx, appleContinueArrow); err != nil {
		return err
	}
	if err := page.WaitStable(ctx); err != nil {
		return err
	}

	if err := page.Fill(ctx, applePasswordInput, a.accounts.ApplePassword); err != nil {
		return err
	}
	if err := page.Click(ctx, appleSignInButton); err != nil {
		return err
	}
	if err := page.WaitStable(ctx); err != nil {
		return err
	}

	text, err := page.Text(ctx)
	if err != nil {
		return err
	}
	if challenge, signal := DetectChallenge(text); challenge != ChallengeNone {
		a.log.Info("challenge detected", zap.String("challenge", challenge.String()))
		if err := a.handler.Resolve(ctx, page, challenge, signal); err != nil {
			return err
		}
		if err := page.WaitStable(ctx); err != nil {
			return err
		}
	}

	signedIn, err := a.appleSignedIn(ctx, page)
	if err != nil {
		return err
	}
	if !signedIn {
		loc, _ := page.Location(ctx)
		return fmt.Errorf("sign-in did not complete, still at %s", loc.URL)
	}

	return a.capture(ctx, page, ServiceApple)
}

// appleSignedIn: the login form disappearing is the only vendor-stable signal
// that the account page is up.
func (a *Authenticator) appleSignedIn(ctx context.Context, page browser.Page) (bool, error) {
	has, err := page.Exists(ctx, appleAccountInput)
	if err != nil {
		return false, err
	}
	return !has, nil
}

// restore loads a stored blob and injects it. Returns false when no valid
// session exists or the injection fails; callers fall back to fresh login.
func (a *Authenticator) restore(ctx context.Context, page browser.Page, service, originURL string) bool {
	blob, ok := a.sessions.Load(service)
	if !ok {
		return false
	}
	// Storage writes are per-origin, so land on the service first.
	if err := page.Navigate(ctx, originURL); err != nil {
		a.log.Warn("session restore navigation failed", zap.String("service", service), zap.Error(err))
		return false
	}
	if err := page.RestoreState(ctx, blob); err != nil {
		a.log.Warn("session restore failed", zap.String("service", service), zap.Error(err))
		return false
	}
	if err := page.Reload(ctx); err != nil {
		return false
	}
	if err := page.WaitStable(ctx); err != nil {
		return false
	}
	return true
}

// capture saves the page's current state as the service's one live session.
func (a *Authenticator) capture(ctx context.Context, page browser.Page, service string) error {
	blob, err := page.CaptureState(ctx)
	if err != nil {
		return fmt.Errorf("capture session state: %w", err)
	}
	loc, err := page.Location(ctx)
	if err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	if err := a.sessions.Save(service, blob, loc.URL, loc.Title); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
