package metrics

import (
	"github.com/noyau-news/noyau/internal/content"
)

// Extractor converts a source-native metrics snapshot into a single
// engagement number. Each source registers its own weighting so the open
// key->number payloads never need reflective access.
type Extractor func(metrics map[string]float64) float64

// extractors is the per-source registry, populated at init. Sources
// without meaningful counters (plain RSS) stay unregistered and score 0.
var extractors = map[content.Source]Extractor{
	content.SourceX: func(m map[string]float64) float64 {
		return m["likes"] + 2*m["retweets"] + m["replies"]
	},
	content.SourceBluesky: func(m map[string]float64) float64 {
		return m["likes"] + 2*m["reposts"] + m["replies"]
	},
	content.SourceReddit: func(m map[string]float64) float64 {
		return m["upvotes"] + 2*m["comments"]
	},
	content.SourceYouTube: func(m map[string]float64) float64 {
		return m["views"]/1000 + 2*m["comments"]
	},
	content.SourceGitHub: func(m map[string]float64) float64 {
		return m["stars"] + m["forks"]
	},
	content.SourceDevto: func(m map[string]float64) float64 {
		return m["reactions"] + 2*m["comments"]
	},
}

// Register installs or replaces the extractor for a source. Intended for
// wiring new sources at startup, not for concurrent use.
func Register(source content.Source, fn Extractor) {
	extractors[source] = fn
}

// Engagement computes the weighted engagement for one snapshot.
func Engagement(source content.Source, metrics map[string]float64) float64 {
	fn, ok := extractors[source]
	if !ok || metrics == nil {
		return 0
	}
	return fn(metrics)
}

// ItemEngagement computes engagement from an item's latest snapshot.
func ItemEngagement(it *content.Item) float64 {
	latest := it.LatestSample()
	if latest == nil {
		return 0
	}
	return Engagement(it.Source, latest.Metrics)
}
