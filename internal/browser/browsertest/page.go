// Package browsertest provides a scriptable in-memory Page for tests. State
// lives in public fields; hooks let a test mutate the page in response to
// interactions, which is enough to script multi-step workflows without a
// browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mediaferry/internal/browser"
)

// FakePage implements browser.Page.
type FakePage struct {
	mu sync.Mutex

	CurURL   string
	CurTitle string
	BodyText string
	PageHTML string

	// Existing marks selectors that resolve. A nil map means every selector
	// resolves.
	Existing map[string]bool
	// Disabled marks selectors whose control reports disabled.
	Disabled map[string]bool
	// ElementTexts maps a selector to the visible text of each match.
	ElementTexts map[string][]string

	// Popup is handed out by WaitPopup; when nil, WaitPopup returns PopupErr
	// (or browser.ErrNoPopup).
	Popup    *FakePage
	PopupErr error

	IsClosed bool

	// CaptureBlob is returned by CaptureState.
	CaptureBlob []byte
	// Restored records blobs passed to RestoreState.
	Restored [][]byte

	// Call records.
	Navigations    []string
	Clicks         []string
	Fills          map[string]string
	Selections     map[string]string
	EnabledQueries map[string]int
	Reloads        int

	// Hooks run after the corresponding call is recorded.
	OnNavigate   func(url string)
	OnReload     func()
	OnWaitStable func()
	OnClick      func(selector string)
	OnClickNth   func(selector string, n int)
	OnFill       func(selector, text string)
	OnSelect     func(selector, option string)
}

var _ browser.Page = (*FakePage)(nil)

func (f *FakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.Navigations = append(f.Navigations, url)
	f.CurURL = url
	hook := f.OnNavigate
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

func (f *FakePage) Reload(context.Context) error {
	f.mu.Lock()
	f.Reloads++
	hook := f.OnReload
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *FakePage) WaitStable(context.Context) error {
	f.mu.Lock()
	hook := f.OnWaitStable
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *FakePage) Location(context.Context) (browser.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return browser.Location{URL: f.CurURL, Title: f.CurTitle}, nil
}

func (f *FakePage) Text(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BodyText, nil
}

func (f *FakePage) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageHTML, nil
}

func (f *FakePage) Exists(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Existing == nil {
		return true, nil
	}
	return f.Existing[selector], nil
}

func (f *FakePage) Enabled(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnabledQueries == nil {
		f.EnabledQueries = make(map[string]int)
	}
	f.EnabledQueries[selector]++
	if f.Existing != nil && !f.Existing[selector] {
		return false, fmt.Errorf("element not found: %s", selector)
	}
	return !f.Disabled[selector], nil
}

func (f *FakePage) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	if f.Existing != nil && !f.Existing[selector] {
		f.mu.Unlock()
		return fmt.Errorf("element not found: %s", selector)
	}
	f.Clicks = append(f.Clicks, selector)
	hook := f.OnClick
	f.mu.Unlock()
	if hook != nil {
		hook(selector)
	}
	return nil
}

func (f *FakePage) Fill(_ context.Context, selector, text string) error {
	f.mu.Lock()
	if f.Existing != nil && !f.Existing[selector] {
		f.mu.Unlock()
		return fmt.Errorf("element not found: %s", selector)
	}
	if f.Fills == nil {
		f.Fills = make(map[string]string)
	}
	f.Fills[selector] = text
	hook := f.OnFill
	f.mu.Unlock()
	if hook != nil {
		hook(selector, text)
	}
	return nil
}

func (f *FakePage) SelectOption(_ context.Context, selector, option string) error {
	f.mu.Lock()
	if f.Existing != nil && !f.Existing[selector] {
		f.mu.Unlock()
		return fmt.Errorf("element not found: %s", selector)
	}
	if f.Selections == nil {
		f.Selections = make(map[string]string)
	}
	f.Selections[selector] = option
	hook := f.OnSelect
	f.mu.Unlock()
	if hook != nil {
		hook(selector, option)
	}
	return nil
}

func (f *FakePage) Texts(_ context.Context, selector string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ElementTexts[selector], nil
}

func (f *FakePage) ClickNth(_ context.Context, selector string, n int) error {
	f.mu.Lock()
	texts := f.ElementTexts[selector]
	if n < 0 || n >= len(texts) {
		f.mu.Unlock()
		return fmt.Errorf("selector %s has %d matches, want index %d", selector, len(texts), n)
	}
	f.Clicks = append(f.Clicks, fmt.Sprintf("%s[%d]", selector, n))
	hook := f.OnClickNth
	f.mu.Unlock()
	if hook != nil {
		hook(selector, n)
	}
	return nil
}

func (f *FakePage) WaitPopup(_ context.Context, _ time.Duration) (browser.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Popup != nil {
		return f.Popup, nil
	}
	if f.PopupErr != nil {
		return nil, f.PopupErr
	}
	return nil, browser.ErrNoPopup
}

func (f *FakePage) Closed(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.IsClosed
}

func (f *FakePage) CaptureState(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureBlob == nil {
		return []byte(`{"cookies":[]}`), nil
	}
	return f.CaptureBlob, nil
}

func (f *FakePage) RestoreState(_ context.Context, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restored = append(f.Restored, blob)
	return nil
}

// SetBodyText swaps the visible page text, for hooks simulating navigation.
func (f *FakePage) SetBodyText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BodyText = text
}

// SetURL swaps the current URL, for hooks simulating redirects.
func (f *FakePage) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CurURL = url
}

// SetExisting flips whether a selector resolves.
func (f *FakePage) SetExisting(selector string, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Existing == nil {
		f.Existing = make(map[string]bool)
	}
	f.Existing[selector] = present
}

// SetClosed marks the page's target as gone, as a closing popup would.
func (f *FakePage) SetClosed(closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IsClosed = closed
}

// SetDisabled flips a control's disabled state.
func (f *FakePage) SetDisabled(selector string, disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Disabled == nil {
		f.Disabled = make(map[string]bool)
	}
	f.Disabled[selector] = disabled
}
