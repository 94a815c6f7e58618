package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var library = SourceCounts{Photos: 12000, Videos: 400, TotalSizeGB: 383}

func TestEstimateMidpoint(t *testing.T) {
	e := NewEstimator(4)

	est := e.Estimate(13.88, 120.88, library, 5, 0)

	assert.InDelta(t, 27.9, est.PercentComplete, 0.05)
	assert.InDelta(t, 107.0, est.GrowthGB, 1e-9)
	assert.Equal(t, 5, est.DayNumber)
	assert.InDelta(t, 21.4, est.RateGBPerDay, 0.1)
	assert.Equal(t, 13, est.DaysRemaining) // ceil((383-107)/21.4)
	assert.Equal(t, 18, est.ProjectedCompletionDay)
}

func TestEstimateClampsAtHundred(t *testing.T) {
	e := NewEstimator(4)

	est := e.Estimate(0, 500, library, 10, 0)

	assert.Equal(t, 100.0, est.PercentComplete)
	assert.Equal(t, 0, est.DaysRemaining)
	assert.Equal(t, library.Photos, est.EstimatedPhotos)
	assert.Equal(t, library.Videos, est.EstimatedVideos)
	assert.Contains(t, est.Message, "complete")
}

func TestEstimateClampsNegativeGrowth(t *testing.T) {
	e := NewEstimator(4)

	// Destination usage can shrink if the user deletes unrelated content.
	est := e.Estimate(100, 80, library, 6, 0)

	assert.Equal(t, 0.0, est.GrowthGB)
	assert.Equal(t, 0.0, est.PercentComplete)
	assert.Equal(t, -1, est.DaysRemaining)
}

func TestVisibilityDelayOverride(t *testing.T) {
	e := NewEstimator(4)

	// Growth of 50 GB on day 2 is still reported as 0%: the destination is
	// known not to surface transferred content this early, so any growth is
	// noise from unrelated uploads.
	est := e.Estimate(0, 50, library, 2, 0)

	assert.Equal(t, 0.0, est.PercentComplete)
	assert.Equal(t, 0, est.EstimatedPhotos)
	assert.Contains(t, est.Message, "day 4")
	// The raw growth observation is still surfaced for diagnostics.
	assert.InDelta(t, 50.0, est.GrowthGB, 1e-9)
}

func TestVisibilityDelayBoundary(t *testing.T) {
	e := NewEstimator(4)

	assert.Equal(t, 0.0, e.Estimate(0, 50, library, 3, 0).PercentComplete)
	assert.Greater(t, e.Estimate(0, 50, library, 4, 0).PercentComplete, 0.0)
}

func TestCallerSuppliedDayNumberWins(t *testing.T) {
	e := NewEstimator(4)

	est := e.Estimate(0, 50, library, 6, 9)
	assert.Equal(t, 9, est.DayNumber)
}

func TestProratedItemSplit(t *testing.T) {
	e := NewEstimator(4)
	counts := SourceCounts{Photos: 1000, Videos: 100, TotalSizeGB: 200}

	est := e.Estimate(0, 100, counts, 5, 0)

	// 50% of the source mix, photo/video split preserved.
	assert.Equal(t, 50.0, est.PercentComplete)
	assert.Equal(t, 500, est.EstimatedPhotos)
	assert.Equal(t, 50, est.EstimatedVideos)
}

func TestNoGrowthMessage(t *testing.T) {
	e := NewEstimator(4)

	est := e.Estimate(10, 10, library, 5, 0)

	assert.Equal(t, 0.0, est.PercentComplete)
	assert.Equal(t, -1, est.DaysRemaining)
	assert.Contains(t, est.Message, "unknown")
}

func TestZeroSourceSizeDoesNotDivideByZero(t *testing.T) {
	e := NewEstimator(4)

	est := e.Estimate(0, 10, SourceCounts{TotalSizeGB: 0}, 5, 0)
	assert.Equal(t, 0.0, est.PercentComplete)
}
