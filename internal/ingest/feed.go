package ingest

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/content"
)

const maxPerFeed = 50

// FeedConfig is a single feed to poll. Kind maps the feed onto a source
// family so the right engagement counters are read later.
type FeedConfig struct {
	URL  string
	Name string
	Kind content.Source
}

// FeedParser polls RSS/Atom feeds and normalizes their entries.
type FeedParser struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
}

// NewFeedParser creates a FeedParser for the given feeds.
func NewFeedParser(feeds []FeedConfig) *FeedParser {
	return &FeedParser{feeds: feeds, parser: gofeed.NewParser()}
}

// ParseAll polls every feed and returns entries published after cutoff.
// A failing feed is logged and skipped; one broken source never blocks
// the rest of the run.
func (fp *FeedParser) ParseAll(cutoff time.Time) []*content.Item {
	var all []*content.Item
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		items, err := fp.parseFeed(fc, cutoff)
		if err != nil {
			log.Warn().Str("feed", fc.URL).Err(err).Msg("failed to parse feed")
			continue
		}
		all = append(all, items...)
		log.Info().Str("feed", name).Int("entries", len(items)).Msg("parsed feed")
	}
	return all
}

func (fp *FeedParser) parseFeed(fc FeedConfig, cutoff time.Time) ([]*content.Item, error) {
	feed, err := fp.parser.ParseURL(fc.URL)
	if err != nil {
		return nil, err
	}
	return normalizeFeed(feed, fc, cutoff), nil
}

// normalizeFeed converts parsed feed entries into content items.
func normalizeFeed(feed *gofeed.Feed, fc FeedConfig, cutoff time.Time) []*content.Item {
	kind := fc.Kind
	if kind == "" {
		kind = content.SourceRSS
	}
	now := time.Now().UTC()

	var items []*content.Item
	for _, entry := range feed.Items {
		if len(items) >= maxPerFeed {
			break
		}

		it := normalizeEntry(entry, kind, now)
		if it == nil {
			continue
		}
		if !it.PublishedAt.IsZero() && it.PublishedAt.Before(cutoff) {
			continue
		}
		items = append(items, it)
	}
	return items
}

func normalizeEntry(entry *gofeed.Item, kind content.Source, now time.Time) *content.Item {
	link := entry.Link
	if link == "" {
		link = entry.GUID
	}
	if link == "" {
		return nil
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil
	}

	var published time.Time
	if entry.PublishedParsed != nil {
		published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		published = entry.UpdatedParsed.UTC()
	}
	if published.IsZero() {
		published = now
	}

	var author string
	if len(entry.Authors) > 0 {
		author = entry.Authors[0].Name
	}

	var body string
	if entry.Content != "" {
		body = stripHTML(entry.Content)
	} else if entry.Description != "" {
		body = stripHTML(entry.Description)
	}

	it := &content.Item{
		Source:       kind,
		SourceItemID: entry.GUID,
		URL:          link,
		Title:        title,
		Author:       author,
		PublishedAt:  published,
		FetchedAt:    now,
		Text:         body,
	}

	if metrics := entryMetrics(entry, kind); len(metrics) > 0 {
		it.Samples = []content.MetricsSample{{CapturedAt: now, Metrics: metrics}}
	}
	return it
}

// entryMetrics pulls whatever counters the feed format exposes. Most RSS
// feeds carry none; YouTube embeds view counts in a media extension.
func entryMetrics(entry *gofeed.Item, kind content.Source) map[string]float64 {
	if kind != content.SourceYouTube {
		return nil
	}
	views, ok := youtubeViews(entry)
	if !ok {
		return nil
	}
	return map[string]float64{"views": views, "comments": 0}
}

func youtubeViews(entry *gofeed.Item) (float64, bool) {
	groups, ok := entry.Extensions["media"]["group"]
	if !ok {
		return 0, false
	}
	for _, g := range groups {
		for _, community := range g.Children["community"] {
			for _, stats := range community.Children["statistics"] {
				if raw, ok := stats.Attrs["views"]; ok {
					if v, err := strconv.ParseFloat(raw, 64); err == nil {
						return v, true
					}
				}
			}
		}
	}
	return 0, false
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
