package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"mediaferry/internal/browser"
)

// Reading is one observation of destination storage usage.
type Reading struct {
	Summary
	CapturedAt time.Time
}

// Meter captures storage-usage readings from the destination service.
type Meter struct {
	storageURL string
	clock      clock.Clock
	log        *zap.Logger
}

// NewMeter creates a meter that reads the given storage summary page.
func NewMeter(storageURL string, clk clock.Clock, log *zap.Logger) *Meter {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Meter{storageURL: storageURL, clock: clk, log: log}
}

// Capture navigates to the storage summary and parses it. Navigation and read
// failures are errors; parse failures are not, missing or malformed rows
// yield zero-valued fields.
func (m *Meter) Capture(ctx context.Context, page browser.Page) (Reading, error) {
	if err := page.Navigate(ctx, m.storageURL); err != nil {
		return Reading{}, fmt.Errorf("open storage page: %w", err)
	}
	if err := page.WaitStable(ctx); err != nil {
		return Reading{}, fmt.Errorf("storage page did not settle: %w", err)
	}

	markup, err := page.HTML(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("read storage page: %w", err)
	}

	summary := ParseSummary(VisibleText(markup))
	reading := Reading{Summary: summary, CapturedAt: m.clock.Now()}

	m.log.Info("storage usage captured",
		zap.Float64("total_used_gb", summary.TotalUsedGB),
		zap.Float64("photos_gb", summary.PhotosGB),
		zap.Float64("drive_gb", summary.DriveGB))
	return reading, nil
}
