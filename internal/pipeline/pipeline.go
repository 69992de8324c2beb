// Package pipeline builds daily issues. A build walks a fixed sequence
// of stages; when one fails the run stops there and the job record keeps
// the stage and reason, so a failed build is diagnosable after the fact.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/cluster"
	"github.com/noyau-news/noyau/internal/config"
	"github.com/noyau-news/noyau/internal/database"
	"github.com/noyau-news/noyau/internal/distill"
	"github.com/noyau-news/noyau/internal/echo"
	"github.com/noyau-news/noyau/internal/filter"
	"github.com/noyau-news/noyau/internal/identity"
	"github.com/noyau-news/noyau/internal/llm"
	"github.com/noyau-news/noyau/internal/metrics"
	"github.com/noyau-news/noyau/internal/scoring"
)

// Stage names the steps of an issue build, in order.
type Stage string

// historyDays is how far back the per-source percentile distributions
// look. The item window is much shorter; percentiles need the longer
// baseline or every item would rank against its own quiet day.
const historyDays = 7

const (
	StageLoading    Stage = "loading"
	StageFiltering  Stage = "filtering"
	StageClustering Stage = "clustering"
	StageScoring    Stage = "scoring"
	StageSelecting  Stage = "selecting"
	StageDistilling Stage = "distilling"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Options controls one build.
type Options struct {
	Date   string // YYYY-MM-DD; empty means today
	DryRun bool
}

// Result reports what a build did, stage by stage.
type Result struct {
	Date     string
	Stage    Stage // done or failed
	Reason   string
	Loaded   int
	Rejected int
	Clusters int
	Selected int
	Promoted int
	Issue    *database.Issue
}

// Builder assembles one issue per run from the ingested items.
type Builder struct {
	cfg      *config.Config
	db       *database.DB
	provider llm.Provider
	now      func() time.Time
}

// New creates a Builder with the configured LLM provider.
func New(cfg *config.Config, db *database.DB) *Builder {
	summ := cfg.Summarization
	provider := llm.CreateProvider(
		summ.Provider,
		summ.Model,
		summ.OllamaURL,
		summ.OpenAIModel,
		summ.APIKeyEnv,
	)
	return NewWithProvider(cfg, db, provider)
}

// NewWithProvider creates a Builder with an explicit provider.
func NewWithProvider(cfg *config.Config, db *database.DB, provider llm.Provider) *Builder {
	return &Builder{cfg: cfg, db: db, provider: provider, now: time.Now}
}

// Run executes the build. Rebuilding a date replaces that date's issue;
// identities featured on earlier dates are never selected again.
func (b *Builder) Run(ctx context.Context, opts Options) *Result {
	now := b.now().UTC()
	date := opts.Date
	if date == "" {
		date = now.Format("2006-01-02")
	}
	r := &Result{Date: date}

	runID, err := b.db.StartJobRun(date, "build", opts.DryRun)
	if err != nil {
		return b.fail(r, nil, StageLoading, fmt.Errorf("recording job run: %w", err))
	}

	// loading
	window := time.Duration(b.cfg.Ranking.WindowHours) * time.Hour
	if window <= 0 {
		window = 36 * time.Hour
	}
	items, err := b.db.GetItemsInWindow(now.Add(-window))
	if err != nil {
		return b.fail(r, &runID, StageLoading, err)
	}
	r.Loaded = len(items)
	if len(items) == 0 {
		return b.fail(r, &runID, StageLoading, fmt.Errorf("no items in the last %s", window))
	}
	log.Info().Str("date", date).Int("items", len(items)).Msg("loaded window")

	if err := ctx.Err(); err != nil {
		return b.fail(r, &runID, StageLoading, err)
	}

	// filtering
	if b.cfg.Filters.ExcludePolitics {
		var classifier filter.Classifier
		if b.provider != nil {
			classifier = filter.NewLLMClassifier(b.provider)
		}
		f := filter.New(b.cfg.Filters.Keywords, classifier)
		var rejections []filter.Rejection
		items, rejections = f.Apply(ctx, items)
		r.Rejected = len(rejections)
		if !opts.DryRun {
			for _, rej := range rejections {
				err := b.db.InsertRejection(database.Rejection{
					RunDate:   date,
					ItemURL:   rej.Item.URL,
					ItemTitle: rej.Item.Title,
					Verdict:   rej.Verdict.String(),
					Reason:    rej.Reason,
				})
				if err != nil {
					log.Warn().Err(err).Msg("recording rejection failed")
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return b.fail(r, &runID, StageFiltering, err)
	}

	// clustering
	canon := identity.New(identity.DefaultTrackingParams)
	clusters := cluster.Build(canon, items)
	r.Clusters = len(clusters)
	if len(clusters) == 0 {
		return b.fail(r, &runID, StageClustering, fmt.Errorf("no clusters after filtering"))
	}

	if err := ctx.Err(); err != nil {
		return b.fail(r, &runID, StageClustering, err)
	}

	// scoring
	historyItems, err := b.db.GetItemsInWindow(now.AddDate(0, 0, -historyDays))
	if err != nil {
		return b.fail(r, &runID, StageScoring, err)
	}
	history := metrics.BuildHistory(historyItems)
	echoWindow := b.cfg.Ranking.EchoWindowHours
	if echoWindow <= 0 {
		echoWindow = echo.DefaultWindowHours
	}
	echoes := echo.BuildIndex(canon, items, now, echoWindow)

	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	alreadySeen, err := b.db.GetIdentitiesForDate(yesterday)
	if err != nil {
		return b.fail(r, &runID, StageScoring, err)
	}
	scorer := scoring.NewScorer(b.scoringConfig(), history, echoes, alreadySeen)
	scored := scorer.ScoreAll(clusters, now)

	if err := ctx.Err(); err != nil {
		return b.fail(r, &runID, StageScoring, err)
	}

	// selecting
	exclude, err := b.db.GetPublishedIdentitiesBefore(date)
	if err != nil {
		return b.fail(r, &runID, StageSelecting, err)
	}
	maxItems := b.cfg.Digest.MaxItems
	if maxItems <= 0 {
		maxItems = scoring.DefaultMaxIssueItems
	}
	selected := scoring.Select(scored, exclude, maxItems)
	r.Selected = len(selected)
	if len(selected) == 0 {
		return b.fail(r, &runID, StageSelecting, fmt.Errorf("no clusters eligible for selection"))
	}

	if err := ctx.Err(); err != nil {
		return b.fail(r, &runID, StageSelecting, err)
	}

	// distilling
	selected, distilled, promoted, err := b.distillWithPromotion(ctx, scored, exclude, maxItems)
	if err != nil {
		return b.fail(r, &runID, StageDistilling, err)
	}
	r.Selected = len(selected)
	r.Promoted = promoted

	// finalizing
	issue := b.buildIssue(date, now, selected, distilled)
	if opts.DryRun {
		r.Issue = issue
		r.Stage = StageDone
		b.finishRun(runID, "done", StageDone, "dry run")
		log.Info().Str("date", date).Int("items", len(issue.Items)).Msg("dry run, skipping commit")
		return r
	}
	if err := b.db.ReplaceIssue(issue); err != nil {
		return b.fail(r, &runID, StageFinalizing, err)
	}
	if err := b.writePublicJSON(issue); err != nil {
		return b.fail(r, &runID, StageFinalizing, err)
	}

	r.Issue = issue
	r.Stage = StageDone
	b.finishRun(runID, "done", StageDone, "")
	log.Info().Str("date", date).Int("items", len(issue.Items)).Msg("issue built")
	return r
}

// distillWithPromotion distills the current selection and, when clusters
// fail, excludes them and re-selects so the next-ranked clusters are
// promoted into the freed slots.
func (b *Builder) distillWithPromotion(
	ctx context.Context,
	scored []scoring.ClusterScore,
	exclude map[string]struct{},
	maxItems int,
) ([]scoring.ClusterScore, map[string]*distill.Distillation, int, error) {
	distiller := distill.New(b.provider, distill.Config{
		MaxContextItems: b.cfg.Digest.MaxContextItems,
		MaxConcurrent:   b.cfg.Summarization.MaxConcurrent,
		MaxTokens:       b.cfg.Summarization.MaxTokens,
	})

	failed := make(map[string]struct{})
	distilled := make(map[string]*distill.Distillation)
	var initial map[string]struct{}

	for {
		selected := scoring.Select(scored, union(exclude, failed), maxItems)
		if initial == nil {
			initial = make(map[string]struct{}, len(selected))
			for _, cs := range selected {
				initial[cs.Cluster.Identity] = struct{}{}
			}
		}

		var pending []*cluster.Cluster
		for _, cs := range selected {
			if _, done := distilled[cs.Cluster.Identity]; !done {
				pending = append(pending, cs.Cluster)
			}
		}
		if len(pending) == 0 {
			if len(selected) == 0 {
				return nil, nil, 0, fmt.Errorf("every selected cluster failed distillation")
			}
			// Promotions are the clusters that entered the selection
			// after a failure freed a slot; a failure with no eligible
			// replacement just shrinks the issue.
			promoted := 0
			for _, cs := range selected {
				if _, ok := initial[cs.Cluster.Identity]; !ok {
					promoted++
				}
			}
			return selected, distilled, promoted, nil
		}

		results, failures := distiller.DistillAll(ctx, pending)
		for id, d := range results {
			distilled[id] = d
		}
		if len(failures) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}
		for id, ferr := range failures {
			log.Warn().Str("identity", id).Err(ferr).Msg("dropping cluster, reselecting")
			failed[id] = struct{}{}
		}
	}
}

func (b *Builder) buildIssue(date string, now time.Time, selected []scoring.ClusterScore, distilled map[string]*distill.Distillation) *database.Issue {
	issue := &database.Issue{Date: date, GeneratedAt: now}
	for i, cs := range selected {
		d := distilled[cs.Cluster.Identity]
		if d == nil {
			continue
		}
		issue.Items = append(issue.Items, database.IssueItem{
			Rank:       i + 1,
			Identity:   cs.Cluster.Identity,
			Headline:   d.Headline,
			Teaser:     d.Teaser,
			Takeaway:   d.Takeaway,
			WhyCare:    d.WhyCare,
			Bullets:    d.Bullets,
			Citations:  d.Citations,
			Confidence: d.Confidence,
			Score:      cs.Score,
			EchoCount:  cs.EchoCount,
			IsViral:    cs.IsViral,
		})
	}
	return issue
}

// publicIssue is the reader-facing JSON shape. Items ranked past the free
// tier are marked locked; the viewer hides their body.
type publicIssue struct {
	Date  string       `json:"date"`
	Items []publicItem `json:"items"`
}

type publicItem struct {
	Rank      int                `json:"rank"`
	Headline  string             `json:"headline"`
	Teaser    string             `json:"teaser"`
	Bullets   []string           `json:"bullets"`
	Citations []distill.Citation `json:"citations"`
	Locked    bool               `json:"locked"`
}

func (b *Builder) writePublicJSON(issue *database.Issue) error {
	freeItems := b.cfg.Digest.FreeItems
	if freeItems <= 0 {
		freeItems = 5
	}

	pub := publicIssue{Date: issue.Date, Items: []publicItem{}}
	for _, item := range issue.Items {
		pub.Items = append(pub.Items, publicItem{
			Rank:      item.Rank,
			Headline:  item.Headline,
			Teaser:    item.Teaser,
			Bullets:   item.Bullets,
			Citations: item.Citations,
			Locked:    item.Rank > freeItems,
		})
	}

	data, err := json.MarshalIndent(pub, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling issue: %w", err)
	}

	dir := filepath.Join(b.cfg.GetDataDir(), "issues")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating issues directory: %w", err)
	}
	path := filepath.Join(dir, issue.Date+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing issue file: %w", err)
	}
	log.Info().Str("path", path).Msg("wrote public issue")
	return nil
}

func (b *Builder) scoringConfig() scoring.Config {
	rk := b.cfg.Ranking
	cfg := scoring.DefaultConfig()
	if rk.HalfLifeHours > 0 {
		cfg.HalfLifeHours = rk.HalfLifeHours
	}
	if rk.RecencyWeight > 0 {
		cfg.RecencyWeight = rk.RecencyWeight
	}
	if rk.EngagementWeight > 0 {
		cfg.EngagementWeight = rk.EngagementWeight
	}
	if rk.VelocityWeight > 0 {
		cfg.VelocityWeight = rk.VelocityWeight
	}
	if rk.EchoWeight > 0 {
		cfg.EchoWeight = rk.EchoWeight
	}
	if rk.PracticalBoost > 0 {
		cfg.PracticalBoost = rk.PracticalBoost
	}
	if len(rk.PracticalKeywords) > 0 {
		cfg.PracticalKeywords = rk.PracticalKeywords
	}
	if len(rk.PracticalDomains) > 0 {
		cfg.PracticalDomains = rk.PracticalDomains
	}
	if rk.AlreadySeenPenalty > 0 {
		cfg.AlreadySeenPenalty = rk.AlreadySeenPenalty
	}
	if rk.ViralEngagementPercentile > 0 {
		cfg.ViralEngagementPercentile = rk.ViralEngagementPercentile
	}
	if rk.ViralVelocityPercentile > 0 {
		cfg.ViralVelocityPercentile = rk.ViralVelocityPercentile
	}
	if rk.ViralEchoCount > 0 {
		cfg.ViralEchoCount = rk.ViralEchoCount
	}
	if rk.ViralMultiplier > 0 {
		cfg.ViralMultiplier = rk.ViralMultiplier
	}
	return cfg
}

func (b *Builder) fail(r *Result, runID *int64, stage Stage, err error) *Result {
	r.Stage = StageFailed
	r.Reason = err.Error()
	log.Error().Str("stage", string(stage)).Err(err).Msg("issue build failed")
	if runID != nil {
		b.finishRun(*runID, "failed", stage, err.Error())
	}
	return r
}

func (b *Builder) finishRun(runID int64, status string, stage Stage, reason string) {
	if err := b.db.FinishJobRun(runID, status, string(stage), reason); err != nil {
		log.Warn().Err(err).Msg("recording job completion failed")
	}
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
