// Package cluster groups content items into candidate stories by canonical
// identity. Grouping is a single hash-based pass: two distinct identities
// are never merged, even when conceptually related (embedding-based merging
// is deferred). Clusters are rebuilt from scratch on every pipeline run.
package cluster

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/content"
	"github.com/noyau-news/noyau/internal/identity"
	"github.com/noyau-news/noyau/internal/metrics"
)

const (
	// DefaultMaxContextItems is how many items per cluster feed the LLM
	// context payload. Items beyond it still count toward engagement and
	// echo aggregates.
	DefaultMaxContextItems = 5
	minContextItems        = 3
	maxContextItems        = 10
)

// Cluster is a canonical identity plus every window item sharing it,
// ordered best-first by an engagement/recency composite.
type Cluster struct {
	Identity string
	Items    []*content.Item
}

// BestItem is the highest-ranked contributing item. Clusters are never
// empty: one item creates its cluster.
func (c *Cluster) BestItem() *content.Item {
	return c.Items[0]
}

// Top returns up to n best items for the LLM context payload. n is clamped
// to [3, 10]; zero or negative selects the default.
func (c *Cluster) Top(n int) []*content.Item {
	if n <= 0 {
		n = DefaultMaxContextItems
	}
	if n < minContextItems {
		n = minContextItems
	}
	if n > maxContextItems {
		n = maxContextItems
	}
	if n > len(c.Items) {
		n = len(c.Items)
	}
	return c.Items[:n]
}

// Build partitions items by canonical identity in one pass. Every input
// item lands in exactly one cluster. Within a cluster items are ordered by
// latest engagement descending, then by published time descending so the
// freshest item wins ties.
func Build(canon *identity.Canonicalizer, items []*content.Item) []*Cluster {
	groups := make(map[string][]*content.Item)
	order := make([]string, 0, len(items))

	for _, it := range items {
		id := canon.Identity(it.URL, it.Text)
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], it)
	}

	clusters := make([]*Cluster, 0, len(order))
	for _, id := range order {
		members := groups[id]
		sort.SliceStable(members, func(i, j int) bool {
			ei, ej := metrics.ItemEngagement(members[i]), metrics.ItemEngagement(members[j])
			if ei != ej {
				return ei > ej
			}
			return members[i].PublishedAt.After(members[j].PublishedAt)
		})
		clusters = append(clusters, &Cluster{Identity: id, Items: members})
	}

	log.Info().
		Int("items", len(items)).
		Int("clusters", len(clusters)).
		Msg("clusters built")

	return clusters
}
