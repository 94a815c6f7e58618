// Package browser provides the automation driver the transfer workflow runs
// on. It wraps go-rod with the small set of primitives the workflow needs:
// navigate, locate, click, fill, wait-for-condition, popup tracking, and
// whole-page state capture for session reuse.
package browser

import (
	"context"
	"time"
)

// Location is the observable address of a page.
type Location struct {
	URL   string
	Title string
}

// Page is the automation surface consumed by the authentication, usage, and
// transfer packages. The production implementation is Driver; tests script
// against this interface directly.
type Page interface {
	// Navigate loads a URL in this page.
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current page. Used after restoring cookies so the
	// origin picks up the injected state.
	Reload(ctx context.Context) error

	// WaitStable blocks until the page has loaded and the network has been
	// quiet for the configured idle window. Dynamic confirmation pages render
	// content well after the load event; acting earlier clicks dead controls.
	WaitStable(ctx context.Context) error

	// Location returns the current URL and title.
	Location(ctx context.Context) (Location, error)

	// Text returns the visible text of the page body.
	Text(ctx context.Context) (string, error)

	// HTML returns the full page markup.
	HTML(ctx context.Context) (string, error)

	// Exists reports whether a selector currently matches.
	Exists(ctx context.Context, selector string) (bool, error)

	// Enabled reports whether the first match is interactable, without
	// waiting for the selector to appear: a missing control is an error.
	// Some vendor controls report disabled in markup while accepting
	// clicks, so callers treat the answer as advisory.
	Enabled(ctx context.Context, selector string) (bool, error)

	// Click clicks the first match.
	Click(ctx context.Context, selector string) error

	// Fill types text into the first match.
	Fill(ctx context.Context, selector, text string) error

	// SelectOption switches a single-select control to the option with the
	// given visible text. Selecting the already-active option is a no-op.
	SelectOption(ctx context.Context, selector, option string) error

	// Texts returns the visible text of every match, in document order.
	Texts(ctx context.Context, selector string) ([]string, error)

	// ClickNth clicks the n-th match (0-based), for positional fallbacks when
	// label matching fails.
	ClickNth(ctx context.Context, selector string, n int) error

	// WaitPopup waits up to timeout for a new window opened from this page.
	// Returns ErrNoPopup when none appears; callers decide whether that is
	// fatal (pre-authorized accounts skip consent popups entirely).
	WaitPopup(ctx context.Context, timeout time.Duration) (Page, error)

	// Closed reports whether this page's target has gone away. A closed
	// consent popup signals completed authorization.
	Closed(ctx context.Context) bool

	// CaptureState serializes cookies plus local/session storage into an
	// opaque blob suitable for the session store.
	CaptureState(ctx context.Context) ([]byte, error)

	// RestoreState injects a previously captured blob. The caller must have
	// navigated to the service origin first; storage writes are per-origin.
	RestoreState(ctx context.Context, blob []byte) error
}
