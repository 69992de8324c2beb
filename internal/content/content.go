// Package content defines the domain types shared across the pipeline:
// content items produced by ingestion and the metrics snapshots captured
// for them over time. Items are read-only once ingested; every derived
// value (clusters, scores, distillations) is recomputed per run.
package content

import "time"

// Source identifies where an item was ingested from.
type Source string

const (
	SourceRSS     Source = "rss"
	SourceGitHub  Source = "github"
	SourceReddit  Source = "reddit"
	SourceYouTube Source = "youtube"
	SourceDevto   Source = "devto"
	SourceX       Source = "x"
	SourceBluesky Source = "bluesky"
)

// SocialSources are the curated social sources counted for echo.
var SocialSources = []Source{SourceX, SourceBluesky}

// IsSocial reports whether the source is a curated social feed.
func (s Source) IsSocial() bool {
	for _, social := range SocialSources {
		if s == social {
			return true
		}
	}
	return false
}

// MetricsSample is one point-in-time snapshot of an item's source-native
// counters (likes, stars, upvotes, ...). Velocity needs at least two.
type MetricsSample struct {
	CapturedAt time.Time
	Metrics    map[string]float64
}

// Item is a normalized content item from any source. The pipeline never
// mutates an Item; clusters reference items by pointer into the loaded
// window.
type Item struct {
	ID           int64
	Source       Source
	SourceItemID string
	URL          string
	Title        string
	Author       string
	PublishedAt  time.Time
	FetchedAt    time.Time
	Text         string

	// Samples are ordered by CapturedAt ascending.
	Samples []MetricsSample
}

// LatestSample returns the most recent metrics snapshot, or nil.
func (it *Item) LatestSample() *MetricsSample {
	if len(it.Samples) == 0 {
		return nil
	}
	return &it.Samples[len(it.Samples)-1]
}

// PreviousSample returns the second most recent snapshot, or nil.
func (it *Item) PreviousSample() *MetricsSample {
	if len(it.Samples) < 2 {
		return nil
	}
	return &it.Samples[len(it.Samples)-2]
}
