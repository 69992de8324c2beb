package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/content"
)

const defaultBlueskyBase = "https://public.api.bsky.app"

// BlueskyClient reads posts from the public Bluesky AppView. No
// authentication is needed for author feeds.
type BlueskyClient struct {
	baseURL string
	client  *http.Client
}

// NewBlueskyClient creates a client against the given API base, or the
// public AppView when empty.
func NewBlueskyClient(baseURL string) *BlueskyClient {
	if baseURL == "" {
		baseURL = defaultBlueskyBase
	}
	return &BlueskyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type blueskyFeedResponse struct {
	Feed []struct {
		Post struct {
			URI    string `json:"uri"`
			Author struct {
				Handle string `json:"handle"`
			} `json:"author"`
			Record struct {
				Text      string `json:"text"`
				CreatedAt string `json:"createdAt"`
			} `json:"record"`
			Embed struct {
				External struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"external"`
			} `json:"embed"`
			LikeCount   int `json:"likeCount"`
			RepostCount int `json:"repostCount"`
			ReplyCount  int `json:"replyCount"`
		} `json:"post"`
	} `json:"feed"`
}

// AuthorFeed returns the recent posts of one account as content items.
// Posts linking an external page use that page as their URL so they land
// in the same cluster as the page itself.
func (c *BlueskyClient) AuthorFeed(ctx context.Context, actor string, limit int) ([]*content.Item, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	params := url.Values{
		"actor": {actor},
		"limit": {fmt.Sprintf("%d", limit)},
	}
	endpoint := c.baseURL + "/xrpc/app.bsky.feed.getAuthorFeed?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bluesky API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bluesky API returned %d: %s", resp.StatusCode, body)
	}

	var result blueskyFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding bluesky response: %w", err)
	}

	now := time.Now().UTC()
	var items []*content.Item
	for _, entry := range result.Feed {
		post := entry.Post
		if post.URI == "" || post.Record.Text == "" {
			continue
		}

		link := post.Embed.External.URI
		if link == "" {
			link = postWebURL(post.Author.Handle, post.URI)
		}
		if link == "" {
			continue
		}

		published := now
		if t, err := time.Parse(time.RFC3339, post.Record.CreatedAt); err == nil {
			published = t.UTC()
		}

		title := post.Embed.External.Title
		if title == "" {
			title = firstLine(post.Record.Text)
		}

		items = append(items, &content.Item{
			Source:       content.SourceBluesky,
			SourceItemID: post.URI,
			URL:          link,
			Title:        title,
			Author:       post.Author.Handle,
			PublishedAt:  published,
			FetchedAt:    now,
			Text:         post.Record.Text,
			Samples: []content.MetricsSample{{
				CapturedAt: now,
				Metrics: map[string]float64{
					"likes":   float64(post.LikeCount),
					"reposts": float64(post.RepostCount),
					"replies": float64(post.ReplyCount),
				},
			}},
		})
	}

	log.Debug().Str("actor", actor).Int("posts", len(items)).Msg("fetched bluesky author feed")
	return items, nil
}

// postWebURL converts an AT URI into the public web URL of the post.
// at://did:plc:abc/app.bsky.feed.post/rkey -> https://bsky.app/profile/<handle>/post/<rkey>
func postWebURL(handle, atURI string) string {
	if handle == "" {
		return ""
	}
	i := strings.LastIndex(atURI, "/")
	if i < 0 || i == len(atURI)-1 {
		return ""
	}
	return "https://bsky.app/profile/" + handle + "/post/" + atURI[i+1:]
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
