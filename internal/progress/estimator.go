// Package progress infers percent-complete for a transfer that has no status
// API. The signal is growth of the destination's photos bucket over a
// pre-transfer baseline; everything else is derived from that one number.
package progress

import (
	"fmt"
	"math"
)

// SourceCounts describes the library being transferred, as reported by the
// source service before initiation.
type SourceCounts struct {
	Photos      int
	Videos      int
	TotalSizeGB float64
}

// Estimate is one progress computation. It is derived, never persisted: the
// snapshot that produced it is the durable record, and history can always be
// recomputed from stored snapshots.
type Estimate struct {
	DayNumber              int
	PercentComplete        float64
	GrowthGB               float64
	EstimatedPhotos        int
	EstimatedVideos        int
	RateGBPerDay           float64
	DaysRemaining          int // -1 when no rate is measurable yet
	ProjectedCompletionDay int // -1 when unknown
	Message                string
}

// Estimator computes progress estimates.
type Estimator struct {
	// VisibilityDelayDays is how long the destination is known to sit on
	// transferred content before any of it shows in storage usage. Below this
	// threshold the estimator reports 0% as a policy override, regardless of
	// stray growth from unrelated uploads.
	VisibilityDelayDays int
}

// NewEstimator creates an estimator with the given visibility threshold.
func NewEstimator(visibilityDelayDays int) *Estimator {
	return &Estimator{VisibilityDelayDays: visibilityDelayDays}
}

// Estimate computes progress from the baseline and latest photos-bucket
// readings. dayNumber overrides the day index when the caller supplies one;
// otherwise it is inferred from elapsedDays.
//
// Item counts are pro-rated from size growth against the source photo/video
// mix. There is no independent per-item signal from the destination, so this
// assumes transferred bytes are distributed like the source library - an
// approximation, not a measurement.
func (e *Estimator) Estimate(baselinePhotosGB, latestPhotosGB float64, counts SourceCounts, elapsedDays, dayNumber int) Estimate {
	day := dayNumber
	if day <= 0 {
		day = elapsedDays
	}
	if day < 1 {
		day = 1
	}

	growth := latestPhotosGB - baselinePhotosGB
	if growth < 0 {
		growth = 0
	}

	if elapsedDays < e.VisibilityDelayDays {
		return Estimate{
			DayNumber:              day,
			PercentComplete:        0,
			GrowthGB:               growth,
			DaysRemaining:          -1,
			ProjectedCompletionDay: -1,
			Message: fmt.Sprintf(
				"Day %d: the destination has not started surfacing transferred content yet; estimates begin on day %d.",
				day, e.VisibilityDelayDays),
		}
	}

	percent := 0.0
	if counts.TotalSizeGB > 0 {
		percent = 100 * growth / counts.TotalSizeGB
		if percent > 100 {
			percent = 100
		}
	}

	divisor := elapsedDays
	if divisor < 1 {
		divisor = 1
	}
	rate := growth / float64(divisor)

	remaining := -1
	projected := -1
	switch {
	case percent >= 100:
		remaining = 0
		projected = day
	case rate > 0:
		remaining = int(math.Ceil((counts.TotalSizeGB - growth) / rate))
		projected = day + remaining
	}

	est := Estimate{
		DayNumber:              day,
		PercentComplete:        percent,
		GrowthGB:               growth,
		EstimatedPhotos:        prorate(counts.Photos, percent),
		EstimatedVideos:        prorate(counts.Videos, percent),
		RateGBPerDay:           rate,
		DaysRemaining:          remaining,
		ProjectedCompletionDay: projected,
	}
	est.Message = e.message(est, counts)
	return est
}

func (e *Estimator) message(est Estimate, counts SourceCounts) string {
	switch {
	case est.PercentComplete >= 100:
		return fmt.Sprintf("Day %d: transfer appears complete (%.1f GB moved of %.1f GB).",
			est.DayNumber, est.GrowthGB, counts.TotalSizeGB)
	case est.RateGBPerDay > 0:
		return fmt.Sprintf("Day %d: %.1f%% complete (%.1f GB of %.1f GB) at %.1f GB/day; roughly %d days remaining.",
			est.DayNumber, est.PercentComplete, est.GrowthGB, counts.TotalSizeGB,
			est.RateGBPerDay, est.DaysRemaining)
	default:
		return fmt.Sprintf("Day %d: no measurable growth at the destination yet; completion time unknown.",
			est.DayNumber)
	}
}

func prorate(count int, percent float64) int {
	return int(math.Round(float64(count) * percent / 100))
}
