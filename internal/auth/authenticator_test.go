package auth

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mediaferry/internal/browser/browsertest"
	"mediaferry/internal/session"
)

const freshness = 7 * 24 * time.Hour

func testAccounts() Accounts {
	return Accounts{
		AppleID:        "user@example.com",
		ApplePassword:  "hunter2",
		AppleLoginURL:  "https://privacy.apple.com",
		GoogleAccount:  "user@gmail.com",
		GoogleLoginURL: "https://accounts.google.com",
	}
}

func newAuthenticator(t *testing.T, accounts Accounts) (*Authenticator, *session.Store, *fakePrompter, *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	sessions := session.NewStore(t.TempDir(), freshness, clk, log)
	prompter := &fakePrompter{}
	handler := NewHandler(fastConfig(), prompter, nil, log)
	return NewAuthenticator(accounts, sessions, handler, prompter, log), sessions, prompter, clk
}

// loginPage scripts a source login form: the account input exists until the
// second sign-in click, after which the account page is up.
func loginPage() *browsertest.FakePage {
	page := &browsertest.FakePage{
		CurURL:   "about:blank",
		BodyText: "Sign in to manage your data",
		Existing: map[string]bool{
			appleAccountInput:  true,
			applePasswordInput: true,
			appleSignInButton:  true,
		},
	}
	clicks := 0
	page.OnClick = func(string) {
		clicks++
		if clicks >= 2 {
			page.SetExisting(appleAccountInput, false)
			page.SetBodyText("Welcome back. Manage your data.")
			page.SetURL("https://privacy.apple.com/account")
		}
	}
	return page
}

func TestEnsureAppleRequiresCredentialsWhenNoSession(t *testing.T) {
	accounts := testAccounts()
	accounts.AppleID = ""
	accounts.ApplePassword = ""
	a, _, _, _ := newAuthenticator(t, accounts)

	err := a.EnsureApple(context.Background(), loginPage(), true)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestEnsureAppleFreshLoginSavesSession(t *testing.T) {
	a, sessions, _, _ := newAuthenticator(t, testAccounts())
	page := loginPage()

	require.NoError(t, a.EnsureApple(context.Background(), page, false))

	assert.Equal(t, "user@example.com", page.Fills[appleAccountInput])
	assert.Equal(t, "hunter2", page.Fills[applePasswordInput])
	assert.True(t, sessions.IsValid(ServiceApple))
}

func TestEnsureAppleReusesValidSession(t *testing.T) {
	a, sessions, _, _ := newAuthenticator(t, testAccounts())
	require.NoError(t, sessions.Save(ServiceApple, []byte(`{"cookies":[]}`), "", ""))

	// Already signed in: the login form never appears.
	page := &browsertest.FakePage{
		BodyText: "Welcome back",
		Existing: map[string]bool{appleAccountInput: false},
	}

	require.NoError(t, a.EnsureApple(context.Background(), page, true))

	assert.Len(t, page.Restored, 1)
	assert.Empty(t, page.Fills)
}

func TestEnsureAppleStaleSessionFallsBackToFreshLogin(t *testing.T) {
	a, sessions, _, clk := newAuthenticator(t, testAccounts())
	require.NoError(t, sessions.Save(ServiceApple, []byte(`{"cookies":[]}`), "", ""))
	clk.Advance(8 * 24 * time.Hour)

	page := loginPage()
	require.NoError(t, a.EnsureApple(context.Background(), page, true))

	// The stale blob was never injected; credentials were submitted instead.
	assert.Empty(t, page.Restored)
	assert.Equal(t, "user@example.com", page.Fills[appleAccountInput])
}

func TestEnsureAppleRestoredSessionNotSignedInRetriesLogin(t *testing.T) {
	a, sessions, _, _ := newAuthenticator(t, testAccounts())
	require.NoError(t, sessions.Save(ServiceApple, []byte(`{"cookies":[]}`), "", ""))

	// The blob restores but the service still shows the login form.
	page := loginPage()
	require.NoError(t, a.EnsureApple(context.Background(), page, true))

	assert.Len(t, page.Restored, 1)
	assert.Equal(t, "hunter2", page.Fills[applePasswordInput])
}

func TestEnsureAppleResolvesChallengeDuringLogin(t *testing.T) {
	a, sessions, prompter, _ := newAuthenticator(t, testAccounts())

	page := loginPage()
	clicks := 0
	page.OnClick = func(string) {
		clicks++
		if clicks >= 2 {
			page.SetExisting(appleAccountInput, false)
			// Push challenge that never redirects: the handler's ceiling
			// passes and it defers to the operator.
			page.SetBodyText("We sent a notification. Tap Yes on your device.")
		}
	}

	require.NoError(t, a.EnsureApple(context.Background(), page, false))
	assert.Equal(t, 1, prompter.awaitCount())
	assert.True(t, sessions.IsValid(ServiceApple))
}

func TestEnsureGoogleDefersToOperatorWhenNoSession(t *testing.T) {
	a, sessions, prompter, _ := newAuthenticator(t, testAccounts())
	page := &browsertest.FakePage{CurURL: "about:blank"}

	require.NoError(t, a.EnsureGoogle(context.Background(), page, true))

	assert.Equal(t, 1, prompter.awaitCount())
	assert.Contains(t, page.Navigations, "https://accounts.google.com")
	assert.True(t, sessions.IsValid(ServiceGoogle))
}

func TestEnsureGoogleReusesValidSession(t *testing.T) {
	a, sessions, prompter, _ := newAuthenticator(t, testAccounts())
	require.NoError(t, sessions.Save(ServiceGoogle, []byte(`{"cookies":[]}`), "", ""))

	page := &browsertest.FakePage{}
	require.NoError(t, a.EnsureGoogle(context.Background(), page, true))

	assert.Len(t, page.Restored, 1)
	assert.Zero(t, prompter.awaitCount())
}
