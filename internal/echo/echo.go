// Package echo counts how many distinct curated social accounts referenced
// a story within a time window. The index is built once per pipeline run
// from the curated social items and queried per cluster.
package echo

import (
	"time"

	"github.com/noyau-news/noyau/internal/content"
	"github.com/noyau-news/noyau/internal/identity"
)

// DefaultWindowHours is the echo lookback when none is configured.
const DefaultWindowHours = 12

// Index maps canonical identities to the set of distinct authors whose
// posts resolved to that identity.
type Index struct {
	authors map[string]map[string]struct{}
}

// BuildIndex indexes curated social items posted within windowHours of now.
// Authorless posts are skipped: echo counts accounts, not posts.
func BuildIndex(canon *identity.Canonicalizer, items []*content.Item, now time.Time, windowHours int) *Index {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	cutoff := now.Add(-time.Duration(windowHours) * time.Hour)

	idx := &Index{authors: make(map[string]map[string]struct{})}
	for _, it := range items {
		if !it.Source.IsSocial() || it.Author == "" {
			continue
		}
		if it.PublishedAt.Before(cutoff) {
			continue
		}

		id := canon.Identity(it.URL, it.Text)
		set, ok := idx.authors[id]
		if !ok {
			set = make(map[string]struct{})
			idx.authors[id] = set
		}
		set[it.Author] = struct{}{}
	}
	return idx
}

// Count returns the number of distinct authors referencing the identity.
func (idx *Index) Count(canonicalIdentity string) int {
	return len(idx.authors[canonicalIdentity])
}
