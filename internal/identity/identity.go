// Package identity maps content items to canonical story keys. Two items
// with the same canonical identity are the same story regardless of which
// source surfaced them.
package identity

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// DefaultTrackingParams are query parameters stripped during URL
// canonicalization. Any parameter with a "utm_" prefix is stripped
// regardless of this list.
var DefaultTrackingParams = []string{
	"ref",
	"source",
	"src",
	"fbclid",
	"gclid",
	"mc_cid",
	"mc_eid",
}

var (
	githubRepoRe = regexp.MustCompile(`(?i)^https?://(?:www\.)?github\.com/([^/?#]+)/([^/?#]+)`)
	cveRe        = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,}`)
)

// Canonicalizer extracts canonical identities. It is stateless apart from
// the configured tracking-parameter deny-list; all methods are pure and
// never fail.
type Canonicalizer struct {
	tracking map[string]struct{}
}

// New creates a Canonicalizer with the given tracking-parameter deny-list.
// A nil or empty list falls back to DefaultTrackingParams.
func New(trackingParams []string) *Canonicalizer {
	if len(trackingParams) == 0 {
		trackingParams = DefaultTrackingParams
	}
	tracking := make(map[string]struct{}, len(trackingParams))
	for _, p := range trackingParams {
		tracking[strings.ToLower(p)] = struct{}{}
	}
	return &Canonicalizer{tracking: tracking}
}

// Identity extracts the canonical identity for an item, in priority order:
//
//  1. github:<owner>/<repo> for any GitHub repository URL (releases, tags,
//     issues included)
//  2. cve:<CVE-ID> when the URL or text mentions a CVE
//  3. the canonicalized URL
//  4. domain_absent:<hash> when no usable URL exists
func (c *Canonicalizer) Identity(rawURL, text string) string {
	if repo := extractGitHubRepo(rawURL); repo != "" {
		return "github:" + repo
	}

	if cve := extractCVE(rawURL + " " + text); cve != "" {
		return "cve:" + cve
	}

	if canonical, ok := c.CanonicalURL(rawURL); ok {
		return canonical
	}

	return fallbackIdentity(text)
}

// CanonicalURL canonicalizes a URL for clustering: scheme forced to https,
// host lowercased, default ports stripped, tracking parameters removed,
// remaining query sorted, trailing slash and fragment dropped. The second
// return value is false when the URL is unusable.
func (c *Canonicalizer) CanonicalURL(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")

	path := strings.TrimRight(parsed.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}

	query := ""
	if parsed.RawQuery != "" {
		query = c.cleanQuery(parsed.Query())
	}

	canonical := "https://" + host + path
	if query != "" {
		canonical += "?" + query
	}
	return canonical, true
}

// cleanQuery drops tracking parameters and re-encodes the remainder in
// sorted key order so equivalent URLs compare equal.
func (c *Canonicalizer) cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, denied := c.tracking[lower]; denied {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func extractGitHubRepo(rawURL string) string {
	m := githubRepoRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	owner := strings.ToLower(m[1])
	repo := strings.ToLower(strings.TrimSuffix(m[2], ".git"))
	if owner == "" || repo == "" {
		return ""
	}
	return owner + "/" + repo
}

func extractCVE(text string) string {
	m := cveRe.FindString(text)
	if m == "" {
		return ""
	}
	return strings.ToUpper(m)
}

// fallbackIdentity builds a single-item identity from the normalized title
// text, so URL-less items still cluster deterministically with themselves.
func fallbackIdentity(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	h := fnv.New64a()
	h.Write([]byte(normalized))
	return fmt.Sprintf("domain_absent:%016x", h.Sum64())
}
