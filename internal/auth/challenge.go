// Package auth handles primary credential submission and the step-up
// challenges interposed after it: time-limited one-time codes, push
// approvals, and "try another way" method choosers. Challenge resolution
// always involves a human; the engine's job is to detect which branch was
// presented, wait the right way, and know when the wait is over.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"

	"mediaferry/internal/browser"
)

// Challenge identifies a step-up authentication branch.
type Challenge int

const (
	ChallengeNone Challenge = iota
	ChallengeOneTimeCode
	ChallengePushApproval
	ChallengeAlternateMethod
)

// String returns the challenge name for logs and errors.
func (c Challenge) String() string {
	switch c {
	case ChallengeNone:
		return "none"
	case ChallengeOneTimeCode:
		return "one_time_code"
	case ChallengePushApproval:
		return "push_approval"
	case ChallengeAlternateMethod:
		return "alternate_method"
	default:
		return fmt.Sprintf("challenge(%d)", int(c))
	}
}

// Detection signals, matched case-insensitively against visible page text.
// Ordered most-specific first: the method chooser is only reported when no
// concrete challenge prompt is on the page.
var (
	oneTimeCodeSignals = []string{
		"verification code",
		"enter the code",
		"two-factor authentication",
	}
	pushApprovalSignals = []string{
		"tap yes",
		"approve this sign-in",
		"check your device",
	}
	alternateMethodSignals = []string{
		"try another way",
		"use a different method",
	}
)

// DetectChallenge classifies the challenge on a page and returns the signal
// phrase that matched. The signal's later disappearance is the only success
// indicator the one-time-code wait trusts.
func DetectChallenge(pageText string) (Challenge, string) {
	text := strings.ToLower(pageText)
	for _, sig := range oneTimeCodeSignals {
		if strings.Contains(text, sig) {
			return ChallengeOneTimeCode, sig
		}
	}
	for _, sig := range pushApprovalSignals {
		if strings.Contains(text, sig) {
			return ChallengePushApproval, sig
		}
	}
	for _, sig := range alternateMethodSignals {
		if strings.Contains(text, sig) {
			return ChallengeAlternateMethod, sig
		}
	}
	return ChallengeNone, ""
}

// Prompter is how the engine reaches the human operator.
type Prompter interface {
	// Notify tells the operator something without blocking.
	Notify(message string)
	// Await blocks until the operator acknowledges (or ctx is done).
	Await(ctx context.Context, message string) error
}

// TimeoutError reports a challenge wait that exhausted its ceiling. Callers
// may retry the whole operation; the account is left mid-challenge, which a
// fresh login attempt resets.
type TimeoutError struct {
	Challenge Challenge
	Ceiling   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("challenge %s not resolved within %s", e.Challenge, e.Ceiling)
}

// HandlerConfig carries the poll intervals and ceilings for each branch.
// These encode observed vendor timing, not algorithmic requirements.
type HandlerConfig struct {
	OneTimeCodeCeiling  time.Duration
	OneTimeCodePoll     time.Duration
	PushApprovalCeiling time.Duration
	PushApprovalPoll    time.Duration
}

// DefaultHandlerConfig returns the ceilings observed to work in practice.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		OneTimeCodeCeiling:  180 * time.Second,
		OneTimeCodePoll:     5 * time.Second,
		PushApprovalCeiling: 120 * time.Second,
		PushApprovalPoll:    2 * time.Second,
	}
}

// Handler resolves detected challenges.
type Handler struct {
	cfg      HandlerConfig
	prompter Prompter
	clock    clock.Clock
	log      *zap.Logger
}

// NewHandler creates a challenge handler.
func NewHandler(cfg HandlerConfig, prompter Prompter, clk clock.Clock, log *zap.Logger) *Handler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Handler{cfg: cfg, prompter: prompter, clock: clk, log: log}
}

var errStillPending = errors.New("challenge still pending")

// Resolve waits out a challenge on the given page. Success is only ever
// inferred from the page moving on; a false positive is benign because the
// next workflow step fails fast if authentication did not actually complete.
func (h *Handler) Resolve(ctx context.Context, page browser.Page, challenge Challenge, signal string) error {
	switch challenge {
	case ChallengeNone:
		return nil
	case ChallengeOneTimeCode:
		return h.resolveOneTimeCode(ctx, page, signal)
	case ChallengePushApproval:
		return h.resolvePushApproval(ctx, page)
	case ChallengeAlternateMethod:
		// Ambiguous by design: never auto-pick a 2FA method for the user.
		h.log.Info("alternate-method chooser presented, deferring to operator")
		return h.prompter.Await(ctx, "Authentication needs a method choice. Complete sign-in in the browser window, then press Enter.")
	default:
		return fmt.Errorf("unknown challenge: %s", challenge)
	}
}

// resolveOneTimeCode waits for the operator to type the code into the browser
// themselves, polling for the prompt's disappearance.
func (h *Handler) resolveOneTimeCode(ctx context.Context, page browser.Page, signal string) error {
	h.prompter.Notify("A one-time code was requested. Enter it in the browser window.")

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			text, err := page.Text(ctx)
			if err != nil {
				return err
			}
			if strings.Contains(strings.ToLower(text), signal) {
				return errStillPending
			}
			return nil
		},
		Attempts: h.attempts(h.cfg.OneTimeCodeCeiling, h.cfg.OneTimeCodePoll),
		Delay:    h.cfg.OneTimeCodePoll,
		Clock:    h.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{Challenge: ChallengeOneTimeCode, Ceiling: h.cfg.OneTimeCodeCeiling}
	}
	h.log.Info("one-time code prompt cleared")
	return nil
}

// resolvePushApproval polls for navigation away from the challenge page. When
// the ceiling passes it falls back to the operator instead of failing: slow
// push delivery is common and not an error.
func (h *Handler) resolvePushApproval(ctx context.Context, page browser.Page) error {
	start, err := page.Location(ctx)
	if err != nil {
		return fmt.Errorf("read challenge location: %w", err)
	}
	h.prompter.Notify("A sign-in approval was pushed to your device. Tap Yes to continue.")

	err = retry.Call(retry.CallArgs{
		Func: func() error {
			loc, err := page.Location(ctx)
			if err != nil {
				return err
			}
			if loc.URL == start.URL {
				return errStillPending
			}
			return nil
		},
		Attempts: h.attempts(h.cfg.PushApprovalCeiling, h.cfg.PushApprovalPoll),
		Delay:    h.cfg.PushApprovalPoll,
		Clock:    h.clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		h.log.Info("push approval completed", zap.String("from", start.URL))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	h.log.Info("push approval ceiling passed, deferring to operator",
		zap.Duration("ceiling", h.cfg.PushApprovalCeiling))
	return h.prompter.Await(ctx, "Still waiting on device approval. Finish sign-in in the browser window, then press Enter.")
}

func (h *Handler) attempts(ceiling, poll time.Duration) int {
	if poll <= 0 {
		return 1
	}
	n := int(ceiling / poll)
	if n < 1 {
		n = 1
	}
	return n
}
