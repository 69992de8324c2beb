// Package fetch fills in item bodies via HTTP + readability extraction.
// Feed entries often carry only a teaser; the full text makes distillation
// excerpts and the political filter meaningfully better.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/database"
)

// Result holds the results of a content fetch run.
type Result struct {
	Fetched int
	Failed  int
}

// ContentFetcher fetches full page text for items missing a body.
type ContentFetcher struct {
	db     *database.DB
	client *http.Client
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(db *database.DB, timeout time.Duration) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFetcher{
		db: db,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissingBodies fetches page text for items in the window that have
// none. A domain that errors once is skipped for the rest of the run.
func (f *ContentFetcher) FetchMissingBodies(ctx context.Context, cutoff time.Time) *Result {
	items, err := f.db.GetItemsNeedingBody(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("getting items needing body")
		return &Result{}
	}

	if len(items) == 0 {
		log.Info().Msg("no items need body fetching")
		return &Result{}
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}

		u, _ := url.Parse(it.URL)
		domain := ""
		if u != nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			result.Failed++
			continue
		}

		body, httpErr := f.fetchBody(ctx, it.URL)
		if httpErr != nil {
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Warn().Str("url", it.URL).Str("domain", domain).Msg("HTTP error, skipping remaining from domain")
			continue
		}

		if body != "" {
			if err := f.db.UpdateItemBody(it.ID, body); err != nil {
				log.Warn().Str("url", it.URL).Err(err).Msg("storing body failed")
				result.Failed++
				continue
			}
			result.Fetched++
			log.Debug().Str("title", it.Title).Msg("fetched body")
		} else {
			result.Failed++
			log.Debug().Str("url", it.URL).Msg("no extractable content")
		}
	}

	log.Info().Int("fetched", result.Fetched).Int("failed", result.Failed).Msg("body fetch complete")
	return result
}

func (f *ContentFetcher) fetchBody(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "noyau/1.0 (tech digest)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
