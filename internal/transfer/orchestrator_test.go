package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mediaferry/internal/auth"
	"mediaferry/internal/browser"
	"mediaferry/internal/browser/browsertest"
	"mediaferry/internal/config"
	"mediaferry/internal/session"
	"mediaferry/internal/store"
	"mediaferry/internal/usage"
)

type silentPrompter struct{}

func (silentPrompter) Notify(string) {}

func (silentPrompter) Await(context.Context, string) error { return nil }

type harness struct {
	orch     *Orchestrator
	store    *store.Store
	sessions *session.Store
	meterClk *testclock.Clock
}

// newHarness wires an orchestrator over fakes. pages are handed out by the
// page factory in order; the last one repeats for any further calls.
func newHarness(t *testing.T, accounts auth.Accounts, pages ...*browsertest.FakePage) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	cfg := config.DefaultConfig()
	cfg.Apple.LoginURL = "https://source.example/login"
	cfg.Apple.DataURL = "https://source.example/account"
	cfg.Apple.TransferURL = "https://source.example/transfer"
	cfg.Google.LoginURL = "https://dest.example/login"
	cfg.Google.StorageURL = "https://dest.example/storage"
	cfg.Google.Account = "dest@example.com"

	st, err := store.New(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sessions := session.NewStore(t.TempDir(), cfg.SessionFreshness(), nil, log)
	handler := auth.NewHandler(auth.DefaultHandlerConfig(), silentPrompter{}, nil, log)
	authn := auth.NewAuthenticator(accounts, sessions, handler, silentPrompter{}, log)

	meterClk := testclock.NewClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	meter := usage.NewMeter(cfg.Google.StorageURL, meterClk, log)
	machine := NewMachine(fastMachineConfig(), nil, log)

	next := 0
	newPage := func(context.Context) (browser.Page, error) {
		p := pages[next]
		if next < len(pages)-1 {
			next++
		}
		return p, nil
	}

	orch := NewOrchestrator(Deps{
		Config:  cfg,
		Auth:    authn,
		Meter:   meter,
		Machine: machine,
		Store:   st,
		Clock:   clock.WallClock,
		Log:     log,
		NewPage: newPage,
	})
	return &harness{orch: orch, store: st, sessions: sessions, meterClk: meterClk}
}

func testAccounts() auth.Accounts {
	return auth.Accounts{
		AppleLoginURL:  "https://source.example/login",
		GoogleLoginURL: "https://dest.example/login",
	}
}

// sourcePage is a signed-in source page carrying both the account summary and
// the transfer flow.
func sourcePage() *browsertest.FakePage {
	page := transferPage()
	page.BodyText = "Your library: 12,053 photos and 418 videos, 383 GB in total."
	page.Existing = map[string]bool{
		// The login form being gone is the signed-in signal.
		`input#account_name_text_field`: false,
		destinationSelect:               true,
		continueButton:                  true,
		confirmTransferBtn:              true,
	}
	return page
}

func storagePage(photosGB string) *browsertest.FakePage {
	return &browsertest.FakePage{
		CurURL: "https://dest.example/storage",
		PageHTML: `<html><body>
			<h2>13.88 GB of 2 TB used</h2>
			<div>Google Photos ` + photosGB + ` GB</div>
		</body></html>`,
	}
}

func saveSessions(t *testing.T, h *harness, services ...string) {
	t.Helper()
	for _, svc := range services {
		require.NoError(t, h.sessions.Save(svc, []byte(`{"cookies":[]}`), "https://example.com", "example"))
	}
}

func TestCheckSourceStatus(t *testing.T) {
	h := newHarness(t, testAccounts(), sourcePage())
	saveSessions(t, h, auth.ServiceApple)

	counts, err := h.orch.CheckSourceStatus(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 12053, counts.Photos)
	assert.Equal(t, 418, counts.Videos)
	assert.InDelta(t, 383, counts.TotalSizeGB, 1e-9)
}

func TestCheckSourceStatusNeedsAuth(t *testing.T) {
	// No stored session and no credentials configured.
	h := newHarness(t, testAccounts(), sourcePage())

	_, err := h.orch.CheckSourceStatus(context.Background(), true)
	assert.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestStartTransferFullRun(t *testing.T) {
	src := sourcePage()
	dest := storagePage("13.88")
	h := newHarness(t, testAccounts(), src, dest)
	saveSessions(t, h, auth.ServiceApple, auth.ServiceGoogle)

	res, err := h.orch.StartTransfer(context.Background(), true, true)
	require.NoError(t, err)

	assert.Equal(t, OutcomeInitiated, res.Outcome)
	assert.Equal(t, 12053, res.Counts.Photos)
	assert.True(t, res.Baseline.IsBaseline)
	assert.InDelta(t, 13.88, res.Baseline.PhotosGB, 1e-9)

	record, err := h.store.GetTransfer(res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInitiated, record.Status)
	assert.Equal(t, "dest@example.com", record.DestinationAccount)

	baseline, err := h.store.Baseline(res.TransferID)
	require.NoError(t, err)
	assert.InDelta(t, 13.88, baseline.PhotosGB, 1e-9)
}

func TestStartTransferDeferredStaysPending(t *testing.T) {
	src := sourcePage()
	dest := storagePage("13.88")
	h := newHarness(t, testAccounts(), src, dest)
	saveSessions(t, h, auth.ServiceApple, auth.ServiceGoogle)

	res, err := h.orch.StartTransfer(context.Background(), true, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingConfirmation, res.Outcome)

	record, err := h.store.GetTransfer(res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, record.Status)
}

func TestStartTransferMachineFailureKeepsRecord(t *testing.T) {
	src := sourcePage()
	src.Existing[destinationSelect] = false // transfer page lost its select
	dest := storagePage("13.88")
	h := newHarness(t, testAccounts(), src, dest)
	saveSessions(t, h, auth.ServiceApple, auth.ServiceGoogle)

	res, err := h.orch.StartTransfer(context.Background(), true, true)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateSelectingDestination, stepErr.State)
	assert.Equal(t, OutcomeUnknown, res.Outcome)

	// The record and its baseline survive in the last reached status so the
	// failure is diagnosable; retries restart initiation.
	require.NotEmpty(t, res.TransferID)
	record, err := h.store.GetTransfer(res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, record.Status)
}

func TestCheckProgressUnknownTransfer(t *testing.T) {
	h := newHarness(t, testAccounts(), storagePage("13.88"))

	_, err := h.orch.CheckProgress(context.Background(), "transfer-nope", 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckProgressMidpoint(t *testing.T) {
	dest := storagePage("120.88")
	h := newHarness(t, testAccounts(), dest)
	saveSessions(t, h, auth.ServiceGoogle)

	t0 := h.meterClk.Now()
	require.NoError(t, h.store.CreateTransfer(store.Transfer{
		ID:            "transfer-1",
		SourcePhotos:  12053,
		SourceVideos:  418,
		SourceTotalGB: 383,
		Status:        store.StatusInitiated,
		InitiatedAt:   t0,
		CreatedAt:     t0,
	}))
	require.NoError(t, h.store.AppendSnapshot(store.Snapshot{
		TransferID: "transfer-1",
		PhotosGB:   13.88,
		IsBaseline: true,
		CapturedAt: t0,
	}))

	// Five days later the destination shows growth.
	h.meterClk.Advance(5 * 24 * time.Hour)

	est, err := h.orch.CheckProgress(context.Background(), "transfer-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 5, est.DayNumber)
	assert.InDelta(t, 27.94, est.PercentComplete, 0.1)
	assert.InDelta(t, 107, est.GrowthGB, 0.01)

	record, err := h.store.GetTransfer("transfer-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, record.Status)

	snaps, err := h.store.Snapshots("transfer-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestCheckProgressBeforeVisibilityWindow(t *testing.T) {
	dest := storagePage("63.88") // stray growth the policy must ignore
	h := newHarness(t, testAccounts(), dest)
	saveSessions(t, h, auth.ServiceGoogle)

	t0 := h.meterClk.Now()
	require.NoError(t, h.store.CreateTransfer(store.Transfer{
		ID:            "transfer-1",
		SourceTotalGB: 383,
		Status:        store.StatusInitiated,
		InitiatedAt:   t0,
		CreatedAt:     t0,
	}))
	require.NoError(t, h.store.AppendSnapshot(store.Snapshot{
		TransferID: "transfer-1",
		PhotosGB:   13.88,
		IsBaseline: true,
		CapturedAt: t0,
	}))

	h.meterClk.Advance(2 * 24 * time.Hour)

	est, err := h.orch.CheckProgress(context.Background(), "transfer-1", 0)
	require.NoError(t, err)
	assert.Zero(t, est.PercentComplete)
	assert.InDelta(t, 50, est.GrowthGB, 0.01)
}
