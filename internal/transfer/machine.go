// Package transfer drives the source service's multi-page transfer-setup
// flow: destination selection, content-type selection, the OAuth handoff to
// the destination service, and the final confirmation step. The machine
// executes its states in a fixed order; it is not resumable, so a failed run
// is retried by restarting initiation from the top.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"

	"mediaferry/internal/browser"
	"mediaferry/internal/config"
)

// State is a step of the initiation workflow.
type State int

const (
	StateSelectingDestination State = iota
	StateSelectingContentTypes
	StateAwaitingContinueEnabled
	StateInformationPage
	StateOAuthPopupOpened
	StateOAuthConsentLoop
	StateAwaitingMainWindowReturn
	StateConfirmationReady
)

func (s State) String() string {
	switch s {
	case StateSelectingDestination:
		return "selecting_destination"
	case StateSelectingContentTypes:
		return "selecting_content_types"
	case StateAwaitingContinueEnabled:
		return "awaiting_continue_enabled"
	case StateInformationPage:
		return "information_page"
	case StateOAuthPopupOpened:
		return "oauth_popup_opened"
	case StateOAuthConsentLoop:
		return "oauth_consent_loop"
	case StateAwaitingMainWindowReturn:
		return "awaiting_main_window_return"
	case StateConfirmationReady:
		return "confirmation_ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is how a machine run ended. Initiated and awaiting-confirmation are
// both successes: deferring the irreversible confirmation click is a caller
// choice, not a failure.
type Outcome int

const (
	// OutcomeUnknown is the zero value, reported alongside errors so that a
	// failed run is never mistaken for an initiated one.
	OutcomeUnknown Outcome = iota
	// OutcomeInitiated means the service acknowledged the transfer request.
	OutcomeInitiated
	// OutcomeAwaitingConfirmation means the flow reached the confirmation
	// page but the commit click has not happened (deferred or not yet
	// acknowledged). Rerunning initiation picks it up.
	OutcomeAwaitingConfirmation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInitiated:
		return "initiated"
	case OutcomeAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// Transfer-flow selectors. Vendor markup; expected to rot and need ongoing
// maintenance, same caveat as the login selectors.
const (
	destinationSelect  = `select#transfer-destination`
	contentTypeLabel   = `label.transfer-content-type`
	continueButton     = `button.button-primary`
	consentContinueBtn = `button#submit_approve_access`
	confirmTransferBtn = `button#confirm-transfer`
	callbackMarker     = "callback"
)

// Content-type labels embed live counts ("Photos (12,053 photos)"), so
// matching is pattern-based, never literal.
var (
	photoLabelPattern = regexp.MustCompile(`(?i)^photos?\s*\(`)
	videoLabelPattern = regexp.MustCompile(`(?i)^videos?\s*\(`)
)

// initiatedSignals are acknowledgment phrases on the post-confirmation page.
var initiatedSignals = []string{
	"transfer has been initiated",
	"we've received your request",
	"your transfer is underway",
}

// MachineConfig carries the workflow's timing ceilings. They encode observed
// vendor UI timing, not algorithmic requirements, so they are tunable without
// touching control flow.
type MachineConfig struct {
	TransferURL string

	// Destination is the visible option text of the destination service in
	// the transfer-target select control.
	Destination string

	// IncludeVideos selects photo+video transfer instead of photos only.
	IncludeVideos bool

	ContinueEnableAttempts   int
	ContinuePoll             time.Duration
	PopupWait                time.Duration
	ConsentLoopMaxIterations int
	MainReturnTimeout        time.Duration
	MainReturnPoll           time.Duration
	ConfirmEnableWait        time.Duration
	ConfirmPoll              time.Duration
}

// DefaultMachineConfig returns the ceilings observed to work in practice.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		Destination:              "Google Photos",
		ContinueEnableAttempts:   10,
		ContinuePoll:             time.Second,
		PopupWait:                5 * time.Second,
		ConsentLoopMaxIterations: 3,
		MainReturnTimeout:        15 * time.Second,
		MainReturnPoll:           time.Second,
		ConfirmEnableWait:        25 * time.Second,
		ConfirmPoll:              time.Second,
	}
}

// NewMachineConfig builds a machine config from the application config.
func NewMachineConfig(cfg *config.Config) MachineConfig {
	mc := DefaultMachineConfig()
	mc.TransferURL = cfg.Apple.TransferURL
	mc.IncludeVideos = cfg.Transfer.IncludeVideos
	if v := cfg.Transfer.ContinueEnableAttempts; v > 0 {
		mc.ContinueEnableAttempts = v
	}
	if v := cfg.Transfer.PopupWaitSeconds; v > 0 {
		mc.PopupWait = time.Duration(v) * time.Second
	}
	if v := cfg.Transfer.ConsentLoopMaxIterations; v > 0 {
		mc.ConsentLoopMaxIterations = v
	}
	if v := cfg.Transfer.PopupCloseWaitSeconds; v > 0 {
		mc.MainReturnTimeout = time.Duration(v) * time.Second
	}
	if v := cfg.Transfer.ConfirmEnableWaitSeconds; v > 0 {
		mc.ConfirmEnableWait = time.Duration(v) * time.Second
	}
	return mc
}

// Machine executes the initiation workflow on a signed-in source page.
type Machine struct {
	cfg   MachineConfig
	clock clock.Clock
	log   *zap.Logger
}

// NewMachine creates a machine.
func NewMachine(cfg MachineConfig, clk clock.Clock, log *zap.Logger) *Machine {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Machine{cfg: cfg, clock: clk, log: log}
}

var errStillWaiting = errors.New("condition not met yet")

// Run executes the workflow on page, which must already be signed in to the
// source service. With confirm false the run stops at the confirmation page
// and reports OutcomeAwaitingConfirmation, leaving the irreversible commit to
// a later run.
func (m *Machine) Run(ctx context.Context, page browser.Page, confirm bool) (Outcome, error) {
	if m.cfg.TransferURL != "" {
		if err := page.Navigate(ctx, m.cfg.TransferURL); err != nil {
			return OutcomeUnknown, m.fail(ctx, page, StateSelectingDestination, err)
		}
		if err := page.WaitStable(ctx); err != nil {
			return OutcomeUnknown, m.fail(ctx, page, StateSelectingDestination, err)
		}
	}

	if err := m.selectDestination(ctx, page); err != nil {
		return OutcomeUnknown, err
	}
	if err := m.selectContentTypes(ctx, page); err != nil {
		return OutcomeUnknown, err
	}
	if err := m.clickContinueWhenEnabled(ctx, page); err != nil {
		return OutcomeUnknown, err
	}
	if err := m.passInformationPage(ctx, page); err != nil {
		return OutcomeUnknown, err
	}

	popup := m.awaitPopup(ctx, page)
	if popup != nil {
		m.runConsentLoop(ctx, popup)
	}
	if err := m.awaitMainWindowReturn(ctx, page, popup); err != nil {
		return OutcomeUnknown, err
	}

	return m.confirmOrDefer(ctx, page, confirm)
}

// selectDestination switches the transfer-target control. Selecting the
// already-active option is a no-op at the driver level, so re-entry is safe.
func (m *Machine) selectDestination(ctx context.Context, page browser.Page) error {
	if err := page.SelectOption(ctx, destinationSelect, m.cfg.Destination); err != nil {
		return m.fail(ctx, page, StateSelectingDestination, err)
	}
	m.log.Info("destination selected", zap.String("destination", m.cfg.Destination))
	return nil
}

// selectContentTypes ticks the media-type checkboxes by label pattern, with a
// positional fallback when the labels have been reworded: the photos box has
// always been first, videos second.
func (m *Machine) selectContentTypes(ctx context.Context, page browser.Page) error {
	labels, err := page.Texts(ctx, contentTypeLabel)
	if err != nil {
		return m.fail(ctx, page, StateSelectingContentTypes, err)
	}

	if err := m.tickContentType(ctx, page, labels, photoLabelPattern, 0); err != nil {
		return m.fail(ctx, page, StateSelectingContentTypes, err)
	}
	if m.cfg.IncludeVideos {
		if err := m.tickContentType(ctx, page, labels, videoLabelPattern, 1); err != nil {
			return m.fail(ctx, page, StateSelectingContentTypes, err)
		}
	}
	return nil
}

func (m *Machine) tickContentType(ctx context.Context, page browser.Page, labels []string, pattern *regexp.Regexp, fallback int) error {
	for i, label := range labels {
		if pattern.MatchString(strings.TrimSpace(label)) {
			return page.ClickNth(ctx, contentTypeLabel, i)
		}
	}
	m.log.Warn("content-type label did not match, using positional fallback",
		zap.String("pattern", pattern.String()),
		zap.Int("index", fallback))
	return page.ClickNth(ctx, contentTypeLabel, fallback)
}

// clickContinueWhenEnabled polls the primary action's enabled state, then
// clicks regardless of the final answer: the control is often interactable
// while still reporting disabled in markup.
func (m *Machine) clickContinueWhenEnabled(ctx context.Context, page browser.Page) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			enabled, err := page.Enabled(ctx, continueButton)
			if err != nil {
				return err
			}
			if !enabled {
				return errStillWaiting
			}
			return nil
		},
		Attempts: m.cfg.ContinueEnableAttempts,
		Delay:    m.cfg.ContinuePoll,
		Clock:    m.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.Warn("continue control never reported enabled, clicking anyway")
	}

	if err := page.Click(ctx, continueButton); err != nil {
		return m.fail(ctx, page, StateAwaitingContinueEnabled, err)
	}
	return nil
}

// passInformationPage acknowledges the summary page between selection and the
// OAuth handoff. Its primary action is the click that leaves the source page.
func (m *Machine) passInformationPage(ctx context.Context, page browser.Page) error {
	if err := page.WaitStable(ctx); err != nil {
		return m.fail(ctx, page, StateInformationPage, err)
	}
	if err := page.Click(ctx, continueButton); err != nil {
		return m.fail(ctx, page, StateInformationPage, err)
	}
	return nil
}

// awaitPopup waits for the OAuth window. Absence is not an error: accounts
// that have authorized the destination before skip the popup entirely, so the
// machine proceeds assuming implicit authorization.
func (m *Machine) awaitPopup(ctx context.Context, page browser.Page) browser.Page {
	popup, err := page.WaitPopup(ctx, m.cfg.PopupWait)
	if err != nil {
		if !errors.Is(err, browser.ErrNoPopup) {
			m.log.Warn("popup wait failed, assuming pre-authorized", zap.Error(err))
		} else {
			m.log.Info("no consent popup appeared, assuming pre-authorized account")
		}
		return nil
	}
	m.log.Info("consent popup opened")
	return popup
}

// runConsentLoop clicks through the destination's consent screens. The count
// varies with account history (zero, one, or several), so the loop runs until
// the popup closes, no actionable control remains, or the safety ceiling.
func (m *Machine) runConsentLoop(ctx context.Context, popup browser.Page) {
	for i := 0; i < m.cfg.ConsentLoopMaxIterations; i++ {
		if popup.Closed(ctx) {
			m.log.Info("consent popup closed", zap.Int("screens", i))
			return
		}
		has, err := popup.Exists(ctx, consentContinueBtn)
		if err != nil || !has {
			m.log.Info("no further consent action found", zap.Int("screens", i))
			return
		}
		if err := popup.Click(ctx, consentContinueBtn); err != nil {
			m.log.Warn("consent click failed, leaving loop", zap.Error(err))
			return
		}
		_ = popup.WaitStable(ctx)
	}
	m.log.Warn("consent loop ceiling reached",
		zap.Int("iterations", m.cfg.ConsentLoopMaxIterations))
}

// awaitMainWindowReturn waits for the popup to close and the main window to
// land back on the callback page, then lets its dynamic content settle.
// Acting on the confirmation page before it is ready clicks dead controls.
func (m *Machine) awaitMainWindowReturn(ctx context.Context, page browser.Page, popup browser.Page) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if popup != nil && !popup.Closed(ctx) {
				return errStillWaiting
			}
			loc, err := page.Location(ctx)
			if err != nil {
				return err
			}
			if !strings.Contains(loc.URL, callbackMarker) {
				return errStillWaiting
			}
			return nil
		},
		Attempts: attempts(m.cfg.MainReturnTimeout, m.cfg.MainReturnPoll),
		Delay:    m.cfg.MainReturnPoll,
		Clock:    m.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if popup != nil && !popup.Closed(ctx) {
			return m.fail(ctx, page, StateAwaitingMainWindowReturn,
				fmt.Errorf("consent popup still open after %s", m.cfg.MainReturnTimeout))
		}
		// Popup gone but no callback marker: some flows land straight on the
		// confirmation page. Tolerate and let the stability wait decide.
		m.log.Warn("main window did not show callback marker, proceeding")
	}

	if err := page.WaitStable(ctx); err != nil {
		return m.fail(ctx, page, StateAwaitingMainWindowReturn, err)
	}
	return nil
}

// confirmOrDefer handles the terminal commit. The confirm control becomes
// genuinely actionable roughly 20 s after the page stabilizes, so the machine
// polls up to its ceiling and then clicks regardless. Not reaching an
// acknowledgment is not an error: the run ends awaiting explicit confirmation.
func (m *Machine) confirmOrDefer(ctx context.Context, page browser.Page, confirm bool) (Outcome, error) {
	if !confirm {
		m.log.Info("confirmation deferred by caller")
		return OutcomeAwaitingConfirmation, nil
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			enabled, err := page.Enabled(ctx, confirmTransferBtn)
			if err != nil {
				return err
			}
			if !enabled {
				return errStillWaiting
			}
			return nil
		},
		Attempts: attempts(m.cfg.ConfirmEnableWait, m.cfg.ConfirmPoll),
		Delay:    m.cfg.ConfirmPoll,
		Clock:    m.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeUnknown, ctx.Err()
		}
		m.log.Warn("confirm control never reported enabled, clicking anyway")
	}

	if err := page.Click(ctx, confirmTransferBtn); err != nil {
		return OutcomeUnknown, m.fail(ctx, page, StateConfirmationReady, err)
	}
	if err := page.WaitStable(ctx); err != nil {
		return OutcomeUnknown, m.fail(ctx, page, StateConfirmationReady, err)
	}

	if m.acknowledged(ctx, page) {
		m.log.Info("transfer initiation acknowledged")
		return OutcomeInitiated, nil
	}
	m.log.Info("no acknowledgment observed, remaining at confirmation")
	return OutcomeAwaitingConfirmation, nil
}

// acknowledged checks for the post-confirmation acknowledgment: either a known
// phrase or the confirm control having navigated away.
func (m *Machine) acknowledged(ctx context.Context, page browser.Page) bool {
	text, err := page.Text(ctx)
	if err == nil {
		lower := strings.ToLower(text)
		for _, sig := range initiatedSignals {
			if strings.Contains(lower, sig) {
				return true
			}
		}
	}
	has, err := page.Exists(ctx, confirmTransferBtn)
	if err != nil {
		return false
	}
	return !has
}

// fail wraps a step failure with the last-known page signal.
func (m *Machine) fail(ctx context.Context, page browser.Page, state State, err error) error {
	signal := ""
	if loc, lerr := page.Location(ctx); lerr == nil {
		signal = loc.URL
	}
	return &StepError{State: state, Signal: signal, Err: err}
}

func attempts(ceiling, poll time.Duration) int {
	if poll <= 0 {
		return 1
	}
	n := int(ceiling / poll)
	if n < 1 {
		n = 1
	}
	return n
}
