package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/noyau-news/noyau/internal/content"
)

func TestRecencyAtZeroAge(t *testing.T) {
	now := time.Now()
	if got := Recency(now, now, 18); got != 1.0 {
		t.Errorf("recency at age 0 = %v, want 1.0", got)
	}
}

func TestRecencyAtHalfLife(t *testing.T) {
	now := time.Now()
	published := now.Add(-18 * time.Hour)
	got := Recency(now, published, 18)
	want := math.Exp(-1)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("recency at half-life = %v, want %v", got, want)
	}
}

func TestRecencyMonotonicallyDecreasing(t *testing.T) {
	now := time.Now()
	prev := 2.0
	for hours := 0; hours <= 72; hours += 6 {
		r := Recency(now, now.Add(-time.Duration(hours)*time.Hour), 18)
		if r >= prev {
			t.Fatalf("recency not decreasing at %dh: %v >= %v", hours, r, prev)
		}
		prev = r
	}
}

func TestRecencyFutureClamped(t *testing.T) {
	now := time.Now()
	if got := Recency(now, now.Add(2*time.Hour), 18); got != 1.0 {
		t.Errorf("future publish recency = %v, want 1.0", got)
	}
}

func sampleAt(captured time.Time, m map[string]float64) content.MetricsSample {
	return content.MetricsSample{CapturedAt: captured, Metrics: m}
}

func TestVelocityRequiresTwoSamples(t *testing.T) {
	it := &content.Item{Source: content.SourceGitHub}
	if got := Velocity(it); got != 0 {
		t.Errorf("velocity with 0 samples = %v, want 0", got)
	}

	it.Samples = []content.MetricsSample{
		sampleAt(time.Now(), map[string]float64{"stars": 100}),
	}
	if got := Velocity(it); got != 0 {
		t.Errorf("velocity with 1 sample = %v, want 0", got)
	}
}

func TestVelocityDeltaPerHour(t *testing.T) {
	base := time.Now()
	it := &content.Item{
		Source: content.SourceGitHub,
		Samples: []content.MetricsSample{
			sampleAt(base, map[string]float64{"stars": 100, "forks": 10}),
			sampleAt(base.Add(2*time.Hour), map[string]float64{"stars": 160, "forks": 10}),
		},
	}
	if got := Velocity(it); got != 30 {
		t.Errorf("velocity = %v, want 30", got)
	}
}

func TestVelocityNegativeClamped(t *testing.T) {
	base := time.Now()
	it := &content.Item{
		Source: content.SourceReddit,
		Samples: []content.MetricsSample{
			sampleAt(base, map[string]float64{"upvotes": 500}),
			sampleAt(base.Add(time.Hour), map[string]float64{"upvotes": 400}),
		},
	}
	if got := Velocity(it); got != 0 {
		t.Errorf("negative velocity = %v, want 0", got)
	}
}

func TestEngagementPerSource(t *testing.T) {
	cases := []struct {
		source  content.Source
		metrics map[string]float64
		want    float64
	}{
		{content.SourceX, map[string]float64{"likes": 10, "retweets": 5, "replies": 3}, 23},
		{content.SourceBluesky, map[string]float64{"likes": 10, "reposts": 5, "replies": 3}, 23},
		{content.SourceReddit, map[string]float64{"upvotes": 100, "comments": 20}, 140},
		{content.SourceYouTube, map[string]float64{"views": 10000, "comments": 5}, 20},
		{content.SourceGitHub, map[string]float64{"stars": 300, "forks": 40}, 340},
		{content.SourceDevto, map[string]float64{"reactions": 50, "comments": 10}, 70},
		{content.SourceRSS, map[string]float64{"whatever": 999}, 0},
	}
	for _, tc := range cases {
		if got := Engagement(tc.source, tc.metrics); got != tc.want {
			t.Errorf("Engagement(%s) = %v, want %v", tc.source, got, tc.want)
		}
	}
}

func TestPercentileEmptyHistoryDefaultsToMedian(t *testing.T) {
	h := NewHistory()
	if got := h.Percentile(content.SourceGitHub, KindEngagement, 42); got != 50.0 {
		t.Errorf("percentile with empty history = %v, want 50", got)
	}
}

func TestPercentileRanking(t *testing.T) {
	h := NewHistory()
	h.Add(content.SourceGitHub, KindEngagement, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	if got := h.Percentile(content.SourceGitHub, KindEngagement, 10); got != 100 {
		t.Errorf("max value percentile = %v, want 100", got)
	}
	if got := h.Percentile(content.SourceGitHub, KindEngagement, 0.5); got != 0 {
		t.Errorf("below-min percentile = %v, want 0", got)
	}
	if got := h.Percentile(content.SourceGitHub, KindEngagement, 5); got != 50 {
		t.Errorf("median percentile = %v, want 50", got)
	}
}

// Scaling a source's values by a constant must not change percentile ranks:
// that is the whole point of per-source normalization.
func TestPercentileScaleInvariance(t *testing.T) {
	raw := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	scaled := make([]float64, len(raw))
	for i, v := range raw {
		scaled[i] = v * 1000
	}

	h := NewHistory()
	h.Add(content.SourceGitHub, KindEngagement, raw)
	h.Add(content.SourceYouTube, KindEngagement, scaled)

	for _, v := range raw {
		small := h.Percentile(content.SourceGitHub, KindEngagement, v)
		big := h.Percentile(content.SourceYouTube, KindEngagement, v*1000)
		if math.Abs(small-big) > 1e-9 {
			t.Errorf("scale changed percentile for %v: %v vs %v", v, small, big)
		}
	}
}

func TestBuildHistorySkipsSamplelessItems(t *testing.T) {
	now := time.Now()
	items := []*content.Item{
		{Source: content.SourceGitHub, Samples: []content.MetricsSample{
			sampleAt(now, map[string]float64{"stars": 10}),
		}},
		{Source: content.SourceGitHub}, // no samples, excluded
	}

	h := BuildHistory(items)
	if got := h.Percentile(content.SourceGitHub, KindEngagement, 10); got != 100 {
		t.Errorf("percentile = %v, want 100 (single-value distribution)", got)
	}
}
