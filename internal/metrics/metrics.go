// Package metrics normalizes engagement signals across sources: weighted
// per-source engagement, exponential recency decay, snapshot-to-snapshot
// velocity, and trailing percentile distributions that put sources with
// wildly different raw magnitudes on one scale.
package metrics

import (
	"math"
	"time"

	"github.com/noyau-news/noyau/internal/content"
)

// DefaultHalfLifeHours is the recency half-life when none is configured.
const DefaultHalfLifeHours = 18.0

// Recency scores how fresh an item is at the given instant:
// exp(-age_hours / half_life). 1.0 at age zero, e^-1 at one half-life.
// Future timestamps clamp to 1.0.
func Recency(now, publishedAt time.Time, halfLifeHours float64) float64 {
	if halfLifeHours <= 0 {
		halfLifeHours = DefaultHalfLifeHours
	}
	ageHours := now.Sub(publishedAt).Hours()
	if ageHours <= 0 {
		return 1.0
	}
	return math.Exp(-ageHours / halfLifeHours)
}

// Velocity is the engagement delta per hour between an item's two most
// recent snapshots. Items with fewer than two snapshots have velocity 0;
// they contribute recency and engagement only until the next capture.
// Negative deltas clamp to 0.
func Velocity(it *content.Item) float64 {
	latest, prev := it.LatestSample(), it.PreviousSample()
	if latest == nil || prev == nil {
		return 0
	}

	dt := latest.CapturedAt.Sub(prev.CapturedAt).Hours()
	if dt <= 0 {
		return 0
	}

	delta := Engagement(it.Source, latest.Metrics) - Engagement(it.Source, prev.Metrics)
	if delta < 0 {
		return 0
	}
	return delta / dt
}
