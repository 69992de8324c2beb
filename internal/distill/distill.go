// Package distill turns selected clusters into reader-facing summaries
// via an LLM, enforcing the output contract with a JSON schema. Clusters
// are distilled concurrently under a fixed limit; a failing cluster never
// takes down the run, it is dropped and reported so the pipeline can
// promote the next-ranked candidate.
package distill

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/cluster"
	"github.com/noyau-news/noyau/internal/content"
	"github.com/noyau-news/noyau/internal/llm"
	"github.com/noyau-news/noyau/internal/metrics"
)

const (
	// DefaultMaxConcurrent bounds in-flight LLM calls.
	DefaultMaxConcurrent = 3
	// DefaultMaxAttempts is the per-cluster generation budget.
	DefaultMaxAttempts = 3
	// DefaultRetryBase is the first backoff delay; it doubles per attempt.
	DefaultRetryBase = 2 * time.Second

	maxExcerptChars = 500
)

// Config controls the distillation run.
type Config struct {
	MaxContextItems int
	MaxConcurrent   int
	MaxAttempts     int
	RetryBase       time.Duration
	MaxTokens       int
}

// DefaultDistillConfig returns the standard distillation parameters.
func DefaultDistillConfig() Config {
	return Config{
		MaxContextItems: cluster.DefaultMaxContextItems,
		MaxConcurrent:   DefaultMaxConcurrent,
		MaxAttempts:     DefaultMaxAttempts,
		RetryBase:       DefaultRetryBase,
		MaxTokens:       800,
	}
}

// Distiller drives LLM summarization for a set of clusters.
type Distiller struct {
	provider llm.Provider
	cfg      Config
}

// New builds a Distiller. Zero config fields fall back to defaults.
func New(provider llm.Provider, cfg Config) *Distiller {
	def := DefaultDistillConfig()
	if cfg.MaxContextItems <= 0 {
		cfg.MaxContextItems = def.MaxContextItems
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Distiller{provider: provider, cfg: cfg}
}

// DistillAll distills every cluster concurrently and returns the results
// keyed by identity, with a parallel map of per-cluster failures. Every
// cluster ends up in exactly one of the two maps.
func (d *Distiller) DistillAll(ctx context.Context, clusters []*cluster.Cluster) (map[string]*Distillation, map[string]error) {
	results := make(map[string]*Distillation, len(clusters))
	failures := make(map[string]error)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.cfg.MaxConcurrent)
	)

	for _, c := range clusters {
		wg.Add(1)
		go func(c *cluster.Cluster) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			dist, err := d.Distill(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[c.Identity] = err
				return
			}
			results[c.Identity] = dist
		}(c)
	}
	wg.Wait()

	log.Info().
		Int("distilled", len(results)).
		Int("failed", len(failures)).
		Msg("distillation complete")
	return results, failures
}

// Distill summarizes one cluster, retrying transient provider errors and
// malformed outputs up to the attempt budget with exponential backoff.
func (d *Distiller) Distill(ctx context.Context, c *cluster.Cluster) (*Distillation, error) {
	if d.provider == nil {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	prompt := d.buildPrompt(c)

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.cfg.RetryBase << (attempt - 2)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := d.provider.Generate(ctx, prompt, d.cfg.MaxTokens)
		if err != nil {
			if !llm.IsTransient(err) {
				return nil, fmt.Errorf("distilling %s: %w", c.Identity, err)
			}
			lastErr = err
			log.Warn().
				Str("identity", c.Identity).
				Int("attempt", attempt).
				Err(err).
				Msg("transient distillation error")
			continue
		}

		dist, err := ParseDistillation(llm.ExtractJSON(raw))
		if err != nil {
			// Malformed output is retried like a transient error;
			// regeneration usually fixes it.
			lastErr = err
			log.Warn().
				Str("identity", c.Identity).
				Int("attempt", attempt).
				Err(err).
				Msg("invalid distillation output")
			continue
		}
		return dist, nil
	}
	return nil, fmt.Errorf("distilling %s after %d attempts: %w", c.Identity, d.cfg.MaxAttempts, lastErr)
}

// topics are broad labels used to steer the summary's angle.
var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{"security", []string{"cve-", "vulnerability", "exploit", "security", "breach", "patch"}},
	{"ai", []string{"llm", "model", "gpt", " ai ", "machine learning", "inference"}},
	{"oss", []string{"github.com", "release", "open source", "library", "framework"}},
	{"dev", []string{"guide", "tutorial", "how to", "debugging", "benchmark"}},
}

func detectTopic(c *cluster.Cluster) string {
	best := c.BestItem()
	haystack := strings.ToLower(" " + best.Title + " " + best.URL + " ")
	for _, t := range topicKeywords {
		for _, kw := range t.keywords {
			if strings.Contains(haystack, kw) {
				return t.topic
			}
		}
	}
	return "sauce"
}

func (d *Distiller) buildPrompt(c *cluster.Cluster) string {
	var b strings.Builder
	b.WriteString("You are writing one entry of a daily tech digest.\n")
	fmt.Fprintf(&b, "Topic angle: %s\n", detectTopic(c))
	b.WriteString("Summarize the story below from its sources.\n\nSOURCES:\n")

	for i, it := range c.Top(d.cfg.MaxContextItems) {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, it.Title)
		fmt.Fprintf(&b, "url: %s\n", it.URL)
		fmt.Fprintf(&b, "source: %s", it.Source)
		if it.Author != "" {
			fmt.Fprintf(&b, " by %s", it.Author)
		}
		fmt.Fprintf(&b, "\npublished: %s\n", it.PublishedAt.Format(time.RFC3339))
		if summary := metricsSummary(it); summary != "" {
			fmt.Fprintf(&b, "metrics: %s\n", summary)
		}
		if excerpt := truncate(it.Text, maxExcerptChars); excerpt != "" {
			fmt.Fprintf(&b, "excerpt: %s\n", excerpt)
		}
	}

	b.WriteString(`
Respond with ONLY a JSON object, no markdown fences, matching:
{
  "headline": "<= 90 characters, no clickbait",
  "teaser": "one sentence hook",
  "takeaway": "the single thing a reader should remember",
  "why_care": "optional: why this matters to a working developer",
  "bullets": ["exactly two supporting facts", "from the sources only"],
  "citations": [{"url": "a source url from above", "label": "short label"}],
  "confidence": "low" | "medium" | "high"
}
Use 1 to 3 citations, only URLs listed in SOURCES. Never invent facts.
`)
	return b.String()
}

func metricsSummary(it *content.Item) string {
	latest := it.LatestSample()
	if latest == nil {
		return ""
	}
	parts := make([]string, 0, len(latest.Metrics))
	for _, key := range sortedKeys(latest.Metrics) {
		parts = append(parts, fmt.Sprintf("%s=%.0f", key, latest.Metrics[key]))
	}
	if v := metrics.Velocity(it); v > 0 {
		parts = append(parts, fmt.Sprintf("velocity=%.1f/h", v))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate cuts s to at most max bytes, backing off to a rune boundary
// so excerpts stay valid UTF-8.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
