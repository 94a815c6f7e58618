package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"mediaferry/internal/auth"
	"mediaferry/internal/browser"
	"mediaferry/internal/config"
	"mediaferry/internal/progress"
	"mediaferry/internal/store"
	"mediaferry/internal/usage"
)

// PageFactory opens a fresh automation page. The production implementation is
// the browser driver; tests hand out fakes.
type PageFactory func(ctx context.Context) (browser.Page, error)

// StartResult is what a transfer initiation returns to the caller.
type StartResult struct {
	TransferID string
	Counts     progress.SourceCounts
	Baseline   store.Snapshot
	Outcome    Outcome
}

// Deps wires an orchestrator.
type Deps struct {
	Config  *config.Config
	Auth    *auth.Authenticator
	Meter   *usage.Meter
	Machine *Machine
	Store   *store.Store
	Clock   clock.Clock
	Log     *zap.Logger
	NewPage PageFactory
}

// Orchestrator exposes the three engine operations: source status, transfer
// initiation, and daily progress checks. Each call is stateless apart from
// the transfer id it threads through; one operation runs at a time.
type Orchestrator struct {
	cfg       *config.Config
	auth      *auth.Authenticator
	meter     *usage.Meter
	machine   *Machine
	store     *store.Store
	estimator *progress.Estimator
	clock     clock.Clock
	log       *zap.Logger
	newPage   PageFactory
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	clk := d.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Orchestrator{
		cfg:       d.Config,
		auth:      d.Auth,
		meter:     d.Meter,
		machine:   d.Machine,
		store:     d.Store,
		estimator: progress.NewEstimator(d.Config.Transfer.VisibilityDelayDays),
		clock:     clk,
		log:       d.Log,
		newPage:   d.NewPage,
	}
}

// CheckSourceStatus signs in to the source service and reads the library
// summary: item counts by media type plus aggregate size.
func (o *Orchestrator) CheckSourceStatus(ctx context.Context, reuseSession bool) (progress.SourceCounts, error) {
	page, err := o.newPage(ctx)
	if err != nil {
		return progress.SourceCounts{}, err
	}
	if err := o.auth.EnsureApple(ctx, page, reuseSession); err != nil {
		return progress.SourceCounts{}, err
	}
	counts, err := o.readSourceCounts(ctx, page)
	if err != nil {
		return progress.SourceCounts{}, err
	}

	o.log.Info("source library read",
		zap.Int("photos", counts.Photos),
		zap.Int("videos", counts.Videos),
		zap.Float64("total_gb", counts.TotalSizeGB))
	return counts, nil
}

// StartTransfer runs a full initiation: authenticate both services, capture
// the destination baseline, persist the record, then drive the workflow.
//
// The baseline is captured before the machine runs, so its timestamp precedes
// every later snapshot by construction. A machine failure leaves the record
// in its last reached status; retrying restarts initiation from the top.
func (o *Orchestrator) StartTransfer(ctx context.Context, reuseSession, confirm bool) (StartResult, error) {
	sourcePage, err := o.newPage(ctx)
	if err != nil {
		return StartResult{}, err
	}
	if err := o.auth.EnsureApple(ctx, sourcePage, reuseSession); err != nil {
		return StartResult{}, err
	}
	counts, err := o.readSourceCounts(ctx, sourcePage)
	if err != nil {
		return StartResult{}, err
	}

	destPage, err := o.newPage(ctx)
	if err != nil {
		return StartResult{}, err
	}
	if err := o.auth.EnsureGoogle(ctx, destPage, reuseSession); err != nil {
		return StartResult{}, err
	}
	reading, err := o.meter.Capture(ctx, destPage)
	if err != nil {
		return StartResult{}, fmt.Errorf("capture baseline: %w", err)
	}

	now := o.clock.Now()
	id := newTransferID(now)
	record := store.Transfer{
		ID:                 id,
		SourcePhotos:       counts.Photos,
		SourceVideos:       counts.Videos,
		SourceTotalGB:      counts.TotalSizeGB,
		DestinationAccount: o.cfg.Google.Account,
		Status:             store.StatusPending,
		InitiatedAt:        now,
		CreatedAt:          now,
	}
	if err := o.store.CreateTransfer(record); err != nil {
		return StartResult{}, err
	}

	baseline := snapshotFrom(id, 0, true, reading)
	if err := o.store.AppendSnapshot(baseline); err != nil {
		return StartResult{}, err
	}
	o.log.Info("baseline captured",
		zap.String("transfer_id", id),
		zap.Float64("photos_gb", baseline.PhotosGB))

	outcome, err := o.machine.Run(ctx, sourcePage, confirm)
	if err != nil {
		// The record stays in its last reached status; the caller retries by
		// starting initiation over.
		return StartResult{TransferID: id, Counts: counts, Baseline: baseline},
			fmt.Errorf("transfer %s: %w", id, err)
	}
	if outcome == OutcomeInitiated {
		if err := o.store.MarkTransferStatus(id, store.StatusInitiated); err != nil {
			return StartResult{}, err
		}
	}

	o.log.Info("transfer initiation finished",
		zap.String("transfer_id", id),
		zap.String("outcome", outcome.String()))
	return StartResult{TransferID: id, Counts: counts, Baseline: baseline, Outcome: outcome}, nil
}

// CheckProgress captures a fresh destination snapshot for the transfer,
// persists it, and computes the day's estimate. dayNumber overrides the day
// index when supplied; otherwise it is inferred from time since the baseline.
func (o *Orchestrator) CheckProgress(ctx context.Context, transferID string, dayNumber int) (progress.Estimate, error) {
	record, err := o.store.GetTransfer(transferID)
	if err != nil {
		return progress.Estimate{}, err
	}
	baseline, err := o.store.Baseline(transferID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.Estimate{}, fmt.Errorf("transfer %s has no baseline snapshot", transferID)
		}
		return progress.Estimate{}, err
	}

	page, err := o.newPage(ctx)
	if err != nil {
		return progress.Estimate{}, err
	}
	if err := o.auth.EnsureGoogle(ctx, page, true); err != nil {
		return progress.Estimate{}, err
	}
	reading, err := o.meter.Capture(ctx, page)
	if err != nil {
		return progress.Estimate{}, fmt.Errorf("capture snapshot: %w", err)
	}

	elapsedDays := int(reading.CapturedAt.Sub(baseline.CapturedAt).Hours() / 24)
	day := dayNumber
	if day <= 0 {
		day = elapsedDays
		if day < 1 {
			day = 1
		}
	}

	// Persist the observation before computing anything, so history is always
	// recomputable from stored snapshots alone.
	if err := o.store.AppendSnapshot(snapshotFrom(transferID, day, false, reading)); err != nil {
		return progress.Estimate{}, err
	}

	counts := progress.SourceCounts{
		Photos:      record.SourcePhotos,
		Videos:      record.SourceVideos,
		TotalSizeGB: record.SourceTotalGB,
	}
	est := o.estimator.Estimate(baseline.PhotosGB, reading.PhotosGB, counts, elapsedDays, dayNumber)

	if err := o.store.RecordDailyProgress(store.DailyProgress{
		TransferID:      transferID,
		DayNumber:       est.DayNumber,
		PercentComplete: est.PercentComplete,
		GrowthGB:        est.GrowthGB,
		Message:         est.Message,
		RecordedAt:      o.clock.Now(),
	}); err != nil {
		return progress.Estimate{}, err
	}

	target := store.StatusInProgress
	if est.PercentComplete >= 100 {
		target = store.StatusComplete
	}
	if record.Status.CanTransition(target) {
		if err := o.store.MarkTransferStatus(transferID, target); err != nil {
			return progress.Estimate{}, err
		}
	}

	o.log.Info("progress checked",
		zap.String("transfer_id", transferID),
		zap.Int("day", est.DayNumber),
		zap.Float64("percent", est.PercentComplete))
	return est, nil
}

// ListTransfers returns the known transfer records, newest first.
func (o *Orchestrator) ListTransfers() ([]store.Transfer, error) {
	return o.store.ListTransfers()
}

// readSourceCounts navigates the signed-in page to the account data summary
// and parses the library counts out of its visible text.
func (o *Orchestrator) readSourceCounts(ctx context.Context, page browser.Page) (progress.SourceCounts, error) {
	if err := page.Navigate(ctx, o.cfg.Apple.DataURL); err != nil {
		return progress.SourceCounts{}, fmt.Errorf("open account data page: %w", err)
	}
	if err := page.WaitStable(ctx); err != nil {
		return progress.SourceCounts{}, fmt.Errorf("account data page did not settle: %w", err)
	}
	text, err := page.Text(ctx)
	if err != nil {
		return progress.SourceCounts{}, fmt.Errorf("read account data page: %w", err)
	}
	return ParseSourceCounts(text), nil
}

// newTransferID derives an id from the wall clock plus a uuid suffix, so ids
// sort by initiation time but stay globally unique across runs.
func newTransferID(now time.Time) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("transfer-%s-%s", now.UTC().Format("20060102-150405"), suffix)
}

func snapshotFrom(transferID string, day int, baseline bool, reading usage.Reading) store.Snapshot {
	return store.Snapshot{
		TransferID:       transferID,
		DayNumber:        day,
		PhotosGB:         reading.PhotosGB,
		DriveGB:          reading.DriveGB,
		MailGB:           reading.MailGB,
		TotalUsedGB:      reading.TotalUsedGB,
		TotalAvailableGB: reading.TotalAvailableGB,
		IsBaseline:       baseline,
		CapturedAt:       reading.CapturedAt,
	}
}
