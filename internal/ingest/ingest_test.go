package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/noyau-news/noyau/internal/content"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test Blog</title>
  <item>
    <title>Profiling Go services in production</title>
    <link>https://example.com/profiling</link>
    <guid>https://example.com/profiling</guid>
    <pubDate>Tue, 25 Aug 2026 10:00:00 GMT</pubDate>
    <description>&lt;p&gt;A &lt;b&gt;deep dive&lt;/b&gt; into pprof.&lt;/p&gt;</description>
  </item>
  <item>
    <title>Ancient news</title>
    <link>https://example.com/old</link>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://example.com/untitled</link>
  </item>
</channel>
</rss>`

const sampleYouTubeFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015"
      xmlns:media="http://search.yahoo.com/mrss/"
      xmlns="http://www.w3.org/2005/Atom">
  <title>Channel</title>
  <entry>
    <id>yt:video:abc123</id>
    <title>Writing a database from scratch</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=abc123"/>
    <published>2026-08-25T12:00:00+00:00</published>
    <media:group>
      <media:title>Writing a database from scratch</media:title>
      <media:community>
        <media:statistics views="48210"/>
      </media:community>
    </media:group>
  </entry>
</feed>`

func parseTestFeed(t *testing.T, raw string) *gofeed.Feed {
	t.Helper()
	feed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		t.Fatalf("parsing test feed: %v", err)
	}
	return feed
}

func TestNormalizeFeedFiltersAndCleans(t *testing.T) {
	feed := parseTestFeed(t, sampleRSS)
	cutoff := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	items := normalizeFeed(feed, FeedConfig{URL: "https://example.com/rss"}, cutoff)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (old and untitled entries dropped)", len(items))
	}

	it := items[0]
	if it.Source != content.SourceRSS {
		t.Errorf("source = %s, want rss default", it.Source)
	}
	if it.URL != "https://example.com/profiling" {
		t.Errorf("url = %s", it.URL)
	}
	if it.Text != "A deep dive into pprof." {
		t.Errorf("text = %q, want HTML stripped", it.Text)
	}
	if len(it.Samples) != 0 {
		t.Error("plain RSS entries should carry no metrics sample")
	}
}

func TestNormalizeFeedYouTubeViews(t *testing.T) {
	feed := parseTestFeed(t, sampleYouTubeFeed)
	cutoff := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	items := normalizeFeed(feed, FeedConfig{Kind: content.SourceYouTube}, cutoff)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if len(items[0].Samples) != 1 {
		t.Fatal("expected a metrics sample from the media extension")
	}
	if views := items[0].Samples[0].Metrics["views"]; views != 48210 {
		t.Errorf("views = %f, want 48210", views)
	}
}

func TestBlueskyAuthorFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/app.bsky.feed.getAuthorFeed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if actor := r.URL.Query().Get("actor"); actor != "alice.example" {
			t.Errorf("actor = %q", actor)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"feed": [
				{
					"post": {
						"uri": "at://did:plc:abc/app.bsky.feed.post/3k1",
						"author": {"handle": "alice.example"},
						"record": {"text": "this release is wild", "createdAt": "2026-08-26T08:00:00Z"},
						"embed": {"external": {"uri": "https://github.com/acme/tool/releases/tag/v2.0.0", "title": "acme/tool v2.0.0"}},
						"likeCount": 42,
						"repostCount": 7,
						"replyCount": 3
					}
				},
				{
					"post": {
						"uri": "at://did:plc:abc/app.bsky.feed.post/3k2",
						"author": {"handle": "alice.example"},
						"record": {"text": "just a thought", "createdAt": "2026-08-26T09:00:00Z"},
						"likeCount": 1,
						"repostCount": 0,
						"replyCount": 0
					}
				}
			]
		}`))
	}))
	defer srv.Close()

	client := NewBlueskyClient(srv.URL)
	items, err := client.AuthorFeed(context.Background(), "alice.example", 50)
	if err != nil {
		t.Fatalf("AuthorFeed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	linked := items[0]
	if linked.URL != "https://github.com/acme/tool/releases/tag/v2.0.0" {
		t.Errorf("linked post url = %s, want the external link", linked.URL)
	}
	if linked.Author != "alice.example" {
		t.Errorf("author = %s", linked.Author)
	}
	if linked.Source != content.SourceBluesky {
		t.Errorf("source = %s", linked.Source)
	}
	if len(linked.Samples) != 1 {
		t.Fatal("expected metrics sample")
	}
	m := linked.Samples[0].Metrics
	if m["likes"] != 42 || m["reposts"] != 7 || m["replies"] != 3 {
		t.Errorf("metrics = %v", m)
	}

	plain := items[1]
	if plain.URL != "https://bsky.app/profile/alice.example/post/3k2" {
		t.Errorf("plain post url = %s, want the post web URL", plain.URL)
	}
	if plain.Title != "just a thought" {
		t.Errorf("plain post title = %q", plain.Title)
	}
}

func TestBlueskyAuthorFeedHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such actor", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewBlueskyClient(srv.URL)
	if _, err := client.AuthorFeed(context.Background(), "ghost.example", 50); err == nil {
		t.Fatal("expected error on 400")
	}
}

func TestExtractSourceName(t *testing.T) {
	cases := map[string]string{
		"https://blog.cloudflare.com/rss/":   "Cloudflare",
		"https://www.reddit.com/r/golang":    "Reddit",
		"https://hnrss.org/frontpage":        "Hnrss",
	}
	for in, want := range cases {
		if got := extractSourceName(in); got != want {
			t.Errorf("extractSourceName(%q) = %q, want %q", in, got, want)
		}
	}
}
