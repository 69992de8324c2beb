package cluster

import (
	"fmt"
	"testing"
	"time"

	"github.com/noyau-news/noyau/internal/content"
	"github.com/noyau-news/noyau/internal/identity"
)

func itemWithEngagement(url string, stars float64, published time.Time) *content.Item {
	return &content.Item{
		Source:      content.SourceGitHub,
		URL:         url,
		Title:       url,
		PublishedAt: published,
		Samples: []content.MetricsSample{
			{CapturedAt: published, Metrics: map[string]float64{"stars": stars}},
		},
	}
}

func TestBuildPartitionsWithoutLoss(t *testing.T) {
	now := time.Now()
	canon := identity.New(nil)

	var items []*content.Item
	for i := 0; i < 6; i++ {
		items = append(items, itemWithEngagement(
			fmt.Sprintf("https://example.com/post-%d", i%3), float64(i), now))
	}

	clusters := Build(canon, items)
	if len(clusters) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(clusters))
	}

	total := 0
	seen := make(map[*content.Item]bool)
	for _, c := range clusters {
		total += len(c.Items)
		for _, it := range c.Items {
			if seen[it] {
				t.Errorf("item %s appears in two clusters", it.URL)
			}
			seen[it] = true
		}
	}
	if total != len(items) {
		t.Errorf("clusters hold %d items, want %d (no item dropped)", total, len(items))
	}
}

func TestGitHubReleaseAndTweetShareCluster(t *testing.T) {
	now := time.Now()
	canon := identity.New(nil)

	release := itemWithEngagement(
		"https://github.com/kubernetes/kubernetes/releases/tag/v1.30.0?utm_source=x", 500, now)
	tweet := &content.Item{
		Source:      content.SourceX,
		Author:      "kelseyhightower",
		URL:         "https://github.com/kubernetes/kubernetes/releases/tag/v1.30.0",
		Title:       "k8s 1.30 is out",
		PublishedAt: now,
	}

	clusters := Build(canon, []*content.Item{release, tweet})
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].Identity != "github:kubernetes/kubernetes" {
		t.Errorf("identity = %q", clusters[0].Identity)
	}
	if clusters[0].BestItem() != release {
		t.Error("expected the release (higher engagement) as best item")
	}
}

func TestBestItemOrdering(t *testing.T) {
	now := time.Now()
	canon := identity.New(nil)
	url := "https://example.com/story"

	low := itemWithEngagement(url, 10, now.Add(-5*time.Hour))
	high := itemWithEngagement(url, 100, now.Add(-8*time.Hour))
	tiedOld := itemWithEngagement(url, 50, now.Add(-10*time.Hour))
	tiedNew := itemWithEngagement(url, 50, now.Add(-1*time.Hour))

	clusters := Build(canon, []*content.Item{low, tiedOld, high, tiedNew})
	c := clusters[0]

	if c.BestItem() != high {
		t.Error("highest engagement should rank first")
	}
	if c.Items[1] != tiedNew || c.Items[2] != tiedOld {
		t.Error("engagement ties should break by recency")
	}
	if c.Items[3] != low {
		t.Error("lowest engagement should rank last")
	}
}

func TestTopClampsBounds(t *testing.T) {
	now := time.Now()
	canon := identity.New(nil)

	var items []*content.Item
	for i := 0; i < 12; i++ {
		items = append(items, itemWithEngagement("https://example.com/story", float64(i), now))
	}
	c := Build(canon, items)[0]

	if got := len(c.Top(0)); got != DefaultMaxContextItems {
		t.Errorf("Top(0) = %d items, want default %d", got, DefaultMaxContextItems)
	}
	if got := len(c.Top(1)); got != 3 {
		t.Errorf("Top(1) = %d items, want clamp to 3", got)
	}
	if got := len(c.Top(50)); got != 10 {
		t.Errorf("Top(50) = %d items, want clamp to 10", got)
	}

	small := &Cluster{Identity: "x", Items: items[:2]}
	if got := len(small.Top(5)); got != 2 {
		t.Errorf("Top on small cluster = %d, want 2", got)
	}
}

func TestBuildDeterministicOrder(t *testing.T) {
	now := time.Now()
	canon := identity.New(nil)
	items := []*content.Item{
		itemWithEngagement("https://b.com/x", 1, now),
		itemWithEngagement("https://a.com/y", 2, now),
		itemWithEngagement("https://b.com/x", 3, now),
	}

	first := Build(canon, items)
	second := Build(canon, items)
	if len(first) != len(second) {
		t.Fatal("non-deterministic cluster count")
	}
	for i := range first {
		if first[i].Identity != second[i].Identity {
			t.Errorf("cluster order differs at %d: %q vs %q", i, first[i].Identity, second[i].Identity)
		}
	}
}
