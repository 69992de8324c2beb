// Package ingest pulls items from the configured sources into the
// database. Each run appends a fresh metrics snapshot for items it sees
// again, which is what velocity is computed from.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/config"
	"github.com/noyau-news/noyau/internal/content"
	"github.com/noyau-news/noyau/internal/database"
)

// Result summarizes one ingestion run.
type Result struct {
	TotalFound int
	NewItems   int
	Refreshed  int
	Samples    int
	Sources    map[content.Source]int
}

// Collector pulls from feeds and Bluesky accounts into the database.
type Collector struct {
	db          *database.DB
	feedParser  *FeedParser
	bluesky     *BlueskyClient
	accounts    []string
	windowHours int
}

// NewCollector builds a Collector from configuration.
func NewCollector(cfg *config.Config, db *database.DB) *Collector {
	c := &Collector{
		db:          db,
		windowHours: cfg.Ranking.WindowHours,
	}
	if c.windowHours <= 0 {
		c.windowHours = 36
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name, Kind: content.Source(f.Kind)}
		}
		c.feedParser = NewFeedParser(feeds)
	}

	if cfg.Sources.Bluesky.Enabled && len(cfg.Sources.Bluesky.Accounts) > 0 {
		c.bluesky = NewBlueskyClient(cfg.Sources.Bluesky.APIBase)
		c.accounts = cfg.Sources.Bluesky.Accounts
	}

	return c
}

// Collect runs one ingestion pass over every configured source.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	r := &Result{Sources: make(map[content.Source]int)}
	cutoff := time.Now().UTC().Add(-time.Duration(c.windowHours) * time.Hour)

	if c.feedParser != nil {
		log.Info().Msg("collecting from feeds")
		c.store(r, c.feedParser.ParseAll(cutoff))
	}

	if c.bluesky != nil {
		log.Info().Int("accounts", len(c.accounts)).Msg("collecting from bluesky")
		for _, actor := range c.accounts {
			if err := ctx.Err(); err != nil {
				return r, err
			}
			posts, err := c.bluesky.AuthorFeed(ctx, actor, 50)
			if err != nil {
				log.Warn().Str("actor", actor).Err(err).Msg("failed to fetch bluesky feed")
				continue
			}
			var recent []*content.Item
			for _, p := range posts {
				if !p.PublishedAt.Before(cutoff) {
					recent = append(recent, p)
				}
			}
			c.store(r, recent)
		}
	}

	log.Info().
		Int("found", r.TotalFound).
		Int("new", r.NewItems).
		Int("refreshed", r.Refreshed).
		Int("samples", r.Samples).
		Msg("ingestion complete")
	return r, nil
}

func (c *Collector) store(r *Result, items []*content.Item) {
	for _, it := range items {
		r.TotalFound++

		existing, err := c.db.GetItemByURL(it.Source, it.URL)
		if err != nil {
			log.Warn().Str("url", it.URL).Err(err).Msg("lookup failed")
			continue
		}

		id, err := c.db.UpsertItem(it)
		if err != nil {
			log.Warn().Str("url", it.URL).Err(err).Msg("upsert failed")
			continue
		}

		if existing == nil {
			r.NewItems++
		} else {
			r.Refreshed++
		}
		r.Sources[it.Source]++

		for _, s := range it.Samples {
			if err := c.db.InsertSample(id, s); err != nil {
				log.Warn().Str("url", it.URL).Err(err).Msg("sample insert failed")
				continue
			}
			r.Samples++
		}
	}
}
