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
	"go.uber.org/zap"
)

// ErrNoPopup is returned by WaitPopup when no new window appears in time.
var ErrNoPopup = errors.New("no popup window appeared")

// popupPollInterval is how often WaitPopup re-lists browser targets.
const popupPollInterval = 250 * time.Millisecond

// Config holds driver settings.
type Config struct {
	Headless          bool
	Bin               string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	NetworkIdle       time.Duration
}

// DefaultConfig returns sensible defaults. Headless is off by default: the
// workflow leans on a human watching the window for 2FA challenges.
func DefaultConfig() Config {
	return Config{
		Headless:          false,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
		ElementTimeout:    10 * time.Second,
		NetworkIdle:       2 * time.Second,
	}
}

// Driver is the rod-backed Page implementation. One Driver owns one page;
// secondary pages (popups, the destination window) share the underlying
// browser and are returned as additional Drivers.
type Driver struct {
	cfg     Config
	log     *zap.Logger
	browser *rod.Browser
	page    *rod.Page

	// known tracks every target this driver family opened (the root page,
	// NewPage pages, and returned popups), shared across all drivers of one
	// browser. WaitPopup treats only targets outside this set as the popup.
	known *targetSet

	// ownsBrowser is true only for the Driver that launched Chrome; Close on
	// secondary drivers closes just their page.
	ownsBrowser bool
}

// targetSet is the shared registry of targets the workflow itself created.
type targetSet struct {
	mu  sync.Mutex
	ids map[proto.TargetTargetID]bool
}

func newTargetSet() *targetSet {
	return &targetSet{ids: make(map[proto.TargetTargetID]bool)}
}

func (s *targetSet) add(id proto.TargetTargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = true
}

func (s *targetSet) has(id proto.TargetTargetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id]
}

// foreignTarget returns the first target not opened by the workflow itself.
// The workflow's own pages (the root blank page, the destination window) are
// always present when a popup is awaited, so membership in the known set is
// what identifies the popup, not mere difference from the caller's page.
func foreignTarget(known *targetSet, ids []proto.TargetTargetID) (proto.TargetTargetID, bool) {
	for _, id := range ids {
		if !known.has(id) {
			return id, true
		}
	}
	return "", false
}

// New creates an unstarted driver.
func New(cfg Config, log *zap.Logger) *Driver {
	return &Driver{cfg: cfg, log: log}
}

// Start launches (or connects to) Chrome and opens the driver's page.
func (d *Driver) Start(ctx context.Context) error {
	if d.browser != nil {
		return nil
	}

	launch := launcher.New().Headless(d.cfg.Headless)
	if d.cfg.Bin != "" {
		launch = launch.Bin(d.cfg.Bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.ViewportWidth,
		Height:            d.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		d.log.Warn("failed to set viewport", zap.Error(err))
	}

	d.browser = b
	d.page = page
	d.known = newTargetSet()
	d.known.add(page.TargetID)
	d.ownsBrowser = true
	d.log.Info("browser started", zap.Bool("headless", d.cfg.Headless))
	return nil
}

// NewPage opens an additional page in the same browser.
func (d *Driver) NewPage(ctx context.Context) (*Driver, error) {
	if d.browser == nil {
		return nil, errors.New("browser not started")
	}
	page, err := d.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	d.known.add(page.TargetID)
	return &Driver{cfg: d.cfg, log: d.log, browser: d.browser, page: page, known: d.known}, nil
}

// Close shuts down this driver's page, and the browser if it owns it.
func (d *Driver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}
	if d.ownsBrowser && d.browser != nil {
		err := d.browser.Close()
		d.browser = nil
		return err
	}
	return nil
}

// Navigate implements Page.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Reload implements Page.
func (d *Driver) Reload(ctx context.Context) error {
	if err := d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout).Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// WaitStable implements Page.
func (d *Driver) WaitStable(ctx context.Context) error {
	p := d.page.Context(ctx)
	if err := p.Timeout(d.cfg.NavigationTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	if err := p.WaitIdle(d.cfg.NetworkIdle); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	return nil
}

// Location implements Page.
func (d *Driver) Location(ctx context.Context) (Location, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return Location{}, fmt.Errorf("page info: %w", err)
	}
	return Location{URL: info.URL, Title: info.Title}, nil
}

// Text implements Page.
func (d *Driver) Text(ctx context.Context) (string, error) {
	el, err := d.element(ctx, "body")
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("body text: %w", err)
	}
	return text, nil
}

// HTML implements Page.
func (d *Driver) HTML(ctx context.Context) (string, error) {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	return html, nil
}

// Exists implements Page.
func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	has, _, err := d.page.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return has, nil
}

// Enabled implements Page. Like Exists it queries without waiting: callers
// poll this in loops with their own ceilings, so a blocking element lookup
// here would stack the element timeout onto every iteration.
func (d *Driver) Enabled(ctx context.Context, selector string) (bool, error) {
	has, el, err := d.page.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	if !has {
		return false, fmt.Errorf("element not found: %s", selector)
	}
	prop, err := el.Property("disabled")
	if err != nil {
		return false, fmt.Errorf("read disabled property: %w", err)
	}
	return !prop.Bool(), nil
}

// Click implements Page.
func (d *Driver) Click(ctx context.Context, selector string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Fill implements Page.
func (d *Driver) Fill(ctx context.Context, selector, text string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// SelectOption implements Page.
func (d *Driver) SelectOption(ctx context.Context, selector, option string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Select([]string{option}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("select %q in %s: %w", option, selector, err)
	}
	return nil
}

// Texts implements Page.
func (d *Driver) Texts(ctx context.Context, selector string) ([]string, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("element text: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, nil
}

// ClickNth implements Page.
func (d *Driver) ClickNth(ctx context.Context, selector string, n int) error {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return fmt.Errorf("query %s: %w", selector, err)
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("selector %s has %d matches, want index %d", selector, len(els), n)
	}
	if err := els[n].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s[%d]: %w", selector, n, err)
	}
	return nil
}

// WaitPopup implements Page. The browser always hosts several of the
// workflow's own pages (the root blank page, the destination window), so the
// popup is the first target absent from the known set, not merely one that
// differs from the caller's. Detection polls rather than subscribing to
// target events: the popup may open between the click and the subscription.
func (d *Driver) WaitPopup(ctx context.Context, timeout time.Duration) (Page, error) {
	deadline := time.Now().Add(timeout)
	for {
		pages, err := d.browser.Pages()
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		ids := make([]proto.TargetTargetID, 0, len(pages))
		for _, p := range pages {
			ids = append(ids, p.TargetID)
		}
		if id, ok := foreignTarget(d.known, ids); ok {
			for _, p := range pages {
				if p.TargetID == id {
					d.known.add(id)
					return &Driver{cfg: d.cfg, log: d.log, browser: d.browser, page: p, known: d.known}, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return nil, ErrNoPopup
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(popupPollInterval):
		}
	}
}

// Closed implements Page.
func (d *Driver) Closed(ctx context.Context) bool {
	if d.page == nil {
		return true
	}
	_, err := d.page.Context(ctx).Info()
	return err != nil
}

func (d *Driver) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := d.page.Context(ctx).Timeout(d.cfg.ElementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el, nil
}
