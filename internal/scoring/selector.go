package scoring

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// DefaultMaxIssueItems caps how many clusters make an issue.
const DefaultMaxIssueItems = 10

// Less orders scored clusters for selection: score descending, then echo
// count descending, then best item publish time descending, then identity
// ascending. The identity tie-break makes the order total, so selection
// is deterministic for identical inputs.
func Less(a, b ClusterScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.EchoCount != b.EchoCount {
		return a.EchoCount > b.EchoCount
	}
	at := a.Cluster.BestItem().PublishedAt
	bt := b.Cluster.BestItem().PublishedAt
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.Cluster.Identity < b.Cluster.Identity
}

// Select returns up to max scored clusters in rank order, skipping any
// identity in exclude. It is re-entrant: when a selected cluster later
// fails distillation, call it again with that identity added to exclude
// to promote the next-ranked cluster.
func Select(scored []ClusterScore, exclude map[string]struct{}, max int) []ClusterScore {
	if max <= 0 {
		max = DefaultMaxIssueItems
	}

	ranked := make([]ClusterScore, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool { return Less(ranked[i], ranked[j]) })

	selected := make([]ClusterScore, 0, max)
	for _, cs := range ranked {
		if _, skip := exclude[cs.Cluster.Identity]; skip {
			continue
		}
		selected = append(selected, cs)
		if len(selected) == max {
			break
		}
	}

	log.Debug().
		Int("candidates", len(scored)).
		Int("excluded", len(exclude)).
		Int("selected", len(selected)).
		Msg("selected clusters")
	return selected
}
