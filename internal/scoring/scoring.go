// Package scoring ranks clusters for issue selection. The score blends
// recency, normalized engagement and velocity, cross-source echo, and a
// small set of editorial boosts. A viral multiplier is applied last so a
// spiking story can leapfrog the steady performers.
package scoring

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/cluster"
	"github.com/noyau-news/noyau/internal/echo"
	"github.com/noyau-news/noyau/internal/metrics"
)

// Config holds the ranking weights and thresholds. Zero values are not
// meaningful; use DefaultConfig and override from the YAML config.
type Config struct {
	HalfLifeHours    float64
	RecencyWeight    float64
	EngagementWeight float64
	VelocityWeight   float64
	EchoWeight       float64

	PracticalBoost     float64
	PracticalKeywords  []string
	PracticalDomains   []string
	AlreadySeenPenalty float64

	ViralEngagementPercentile float64
	ViralVelocityPercentile   float64
	ViralEchoCount            int
	ViralMultiplier           float64
}

// DefaultConfig returns the standard ranking parameters.
func DefaultConfig() Config {
	return Config{
		HalfLifeHours:    metrics.DefaultHalfLifeHours,
		RecencyWeight:    0.30,
		EngagementWeight: 0.20,
		VelocityWeight:   0.25,
		EchoWeight:       0.25,

		PracticalBoost: 0.15,
		PracticalKeywords: []string{
			"release", "changelog", "benchmark", "postmortem", "incident",
			"outage", "cve", "exploit", "patch", "migration", "performance",
		},
		PracticalDomains:   []string{"github.com", "docs."},
		AlreadySeenPenalty: 0.30,

		ViralEngagementPercentile: 90,
		ViralVelocityPercentile:   90,
		ViralEchoCount:            3,
		ViralMultiplier:           1.35,
	}
}

// ClusterScore is the scored form of a cluster, carrying every component
// so the breakdown can be logged and inspected after the fact.
type ClusterScore struct {
	Cluster *cluster.Cluster

	Recency              float64
	EngagementPercentile float64
	VelocityPercentile   float64
	EchoCount            int
	Practical            bool
	AlreadySeen          bool
	IsViral              bool

	Score float64
}

// Scorer scores clusters against a trailing metrics history and an echo
// index built for the same run.
type Scorer struct {
	cfg     Config
	history *metrics.History
	echoes  *echo.Index

	// alreadySeen holds identities featured in the previous issue. They
	// are penalized, not excluded; hard exclusion of older identities
	// happens upstream in selection.
	alreadySeen map[string]struct{}
}

// NewScorer builds a Scorer. history and echoes may not be nil;
// alreadySeen may be nil when no previous issue exists.
func NewScorer(cfg Config, history *metrics.History, echoes *echo.Index, alreadySeen map[string]struct{}) *Scorer {
	if alreadySeen == nil {
		alreadySeen = make(map[string]struct{})
	}
	return &Scorer{cfg: cfg, history: history, echoes: echoes, alreadySeen: alreadySeen}
}

// Score computes the full breakdown for one cluster at the given time.
// The components come from the cluster's best item; the multiplier for
// viral clusters is applied after every additive term.
func (s *Scorer) Score(c *cluster.Cluster, now time.Time) ClusterScore {
	best := c.BestItem()

	cs := ClusterScore{
		Cluster:   c,
		Recency:   metrics.Recency(now, best.PublishedAt, s.cfg.HalfLifeHours),
		EchoCount: s.echoes.Count(c.Identity),
	}

	engagement := metrics.ItemEngagement(best)
	velocity := metrics.Velocity(best)
	cs.EngagementPercentile = s.history.Percentile(best.Source, metrics.KindEngagement, engagement)
	cs.VelocityPercentile = s.history.Percentile(best.Source, metrics.KindVelocity, velocity)

	cs.Score = s.cfg.RecencyWeight*cs.Recency +
		s.cfg.EngagementWeight*(cs.EngagementPercentile/100) +
		s.cfg.VelocityWeight*(cs.VelocityPercentile/100) +
		s.cfg.EchoWeight*math.Log1p(float64(cs.EchoCount))

	if s.isPractical(c) {
		cs.Practical = true
		cs.Score += s.cfg.PracticalBoost
	}
	if _, seen := s.alreadySeen[c.Identity]; seen {
		cs.AlreadySeen = true
		cs.Score -= s.cfg.AlreadySeenPenalty
	}

	if cs.EngagementPercentile >= s.cfg.ViralEngagementPercentile ||
		cs.VelocityPercentile >= s.cfg.ViralVelocityPercentile ||
		cs.EchoCount >= s.cfg.ViralEchoCount {
		cs.IsViral = true
		cs.Score *= s.cfg.ViralMultiplier
	}

	return cs
}

// ScoreAll scores every cluster and logs a short summary.
func (s *Scorer) ScoreAll(clusters []*cluster.Cluster, now time.Time) []ClusterScore {
	scored := make([]ClusterScore, 0, len(clusters))
	viral := 0
	for _, c := range clusters {
		cs := s.Score(c, now)
		if cs.IsViral {
			viral++
		}
		scored = append(scored, cs)
	}
	log.Info().
		Int("clusters", len(scored)).
		Int("viral", viral).
		Msg("scored clusters")
	return scored
}

// isPractical reports whether any contributing item mentions a
// practical-engineering keyword or links a known release-notes domain.
func (s *Scorer) isPractical(c *cluster.Cluster) bool {
	for _, it := range c.Items {
		text := strings.ToLower(it.Title + " " + it.Text)
		for _, kw := range s.cfg.PracticalKeywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		u, err := url.Parse(it.URL)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		for _, d := range s.cfg.PracticalDomains {
			if host == d || strings.HasPrefix(host, d) || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
	}
	return false
}
