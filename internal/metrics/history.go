package metrics

import (
	"sort"

	"github.com/noyau-news/noyau/internal/content"
)

// Kind selects which distribution a percentile lookup is against.
type Kind string

const (
	KindEngagement Kind = "engagement"
	KindVelocity   Kind = "velocity"
)

type distKey struct {
	source content.Source
	kind   Kind
}

// History holds per-source engagement and velocity distributions observed
// over the trailing window (7 days by default). It is built once per
// pipeline run from the storage collaborator and discarded afterwards;
// it is never shared mutable state.
type History struct {
	distributions map[distKey][]float64
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{distributions: make(map[distKey][]float64)}
}

// Add records the observed values for one source and kind. Values are
// copied and kept sorted for percentile lookups.
func (h *History) Add(source content.Source, kind Kind, values []float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	h.distributions[distKey{source, kind}] = sorted
}

// Percentile returns the fraction of the source's historical distribution
// at or below value, scaled to [0, 100]. A source with no history defaults
// to the median so unknown sources neither dominate nor vanish.
func (h *History) Percentile(source content.Source, kind Kind, value float64) float64 {
	dist := h.distributions[distKey{source, kind}]
	if len(dist) == 0 {
		return 50.0
	}

	// Count values <= value.
	pos := sort.Search(len(dist), func(i int) bool { return dist[i] > value })
	pctl := float64(pos) / float64(len(dist)) * 100
	if pctl > 100 {
		pctl = 100
	}
	return pctl
}

// BuildHistory computes engagement and velocity distributions per source
// from the trailing items loaded by the caller.
func BuildHistory(items []*content.Item) *History {
	engagements := make(map[content.Source][]float64)
	velocities := make(map[content.Source][]float64)

	for _, it := range items {
		if it.LatestSample() == nil {
			continue
		}
		engagements[it.Source] = append(engagements[it.Source], ItemEngagement(it))
		velocities[it.Source] = append(velocities[it.Source], Velocity(it))
	}

	h := NewHistory()
	for source, values := range engagements {
		h.Add(source, KindEngagement, values)
	}
	for source, values := range velocities {
		h.Add(source, KindVelocity, values)
	}
	return h
}
