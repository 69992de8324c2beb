// Package filter excludes disallowed (political) content before clustering
// finalizes. Stage one is a cheap local keyword match; stage two submits
// keyword hits to an external classification capability that clears false
// positives ("leader election" in a distributed-systems post is not
// politics). When stage two cannot decide, the item is excluded: failing
// closed keeps prohibited content out of the digest at the cost of recall.
package filter

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/noyau-news/noyau/internal/content"
)

// Verdict is the tri-state outcome of filtering one item.
type Verdict int

const (
	// VerdictPass means the item is clean and proceeds.
	VerdictPass Verdict = iota
	// VerdictReject means the item is confirmed disallowed.
	VerdictReject
	// VerdictInconclusive means the contextual stage could not decide;
	// policy is to exclude and log for manual review.
	VerdictInconclusive
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictReject:
		return "reject"
	default:
		return "inconclusive"
	}
}

// DefaultKeywords is the stage-one deny-list when none is configured.
var DefaultKeywords = []string{
	"election",
	"senate",
	"parliament",
	"candidate",
	"congress",
	"white house",
	"presidential",
}

// Classifier is the external contextual-validation capability. Classify
// returns true when the text is genuinely political.
type Classifier interface {
	Classify(ctx context.Context, text string) (political bool, err error)
}

// Rejection records an excluded item for the manual-review log.
type Rejection struct {
	Item    *content.Item
	Verdict Verdict
	Reason  string
}

// Filter applies the two-stage exclusion.
type Filter struct {
	keywords   []string
	classifier Classifier
}

// New creates a Filter. A nil classifier skips stage two: every keyword hit
// is then excluded (still fail-closed). Empty keywords fall back to
// DefaultKeywords.
func New(keywords []string, classifier Classifier) *Filter {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Filter{keywords: lowered, classifier: classifier}
}

// Check runs both stages for one item.
func (f *Filter) Check(ctx context.Context, it *content.Item) (Verdict, string) {
	text := it.Title + " " + it.Text

	keyword := f.matchKeyword(text)
	if keyword == "" {
		return VerdictPass, ""
	}

	if f.classifier == nil {
		return VerdictInconclusive, "keyword " + keyword + " matched and no classifier available"
	}

	political, err := f.classifier.Classify(ctx, text)
	if err != nil {
		return VerdictInconclusive, "classifier error: " + err.Error()
	}
	if political {
		return VerdictReject, "confirmed political (keyword " + keyword + ")"
	}
	return VerdictPass, ""
}

// Apply filters a batch of items, returning the survivors and the
// rejections. Rejected and inconclusive items are both excluded; the
// caller persists rejections for manual review.
func (f *Filter) Apply(ctx context.Context, items []*content.Item) ([]*content.Item, []Rejection) {
	kept := make([]*content.Item, 0, len(items))
	var rejections []Rejection

	for _, it := range items {
		verdict, reason := f.Check(ctx, it)
		if verdict == VerdictPass {
			kept = append(kept, it)
			continue
		}
		rejections = append(rejections, Rejection{Item: it, Verdict: verdict, Reason: reason})
		log.Debug().
			Str("verdict", verdict.String()).
			Str("url", it.URL).
			Str("title", truncate(it.Title, 50)).
			Msg("item excluded by content filter")
	}

	log.Info().
		Int("input", len(items)).
		Int("kept", len(kept)).
		Int("excluded", len(rejections)).
		Msg("content filter applied")

	return kept, rejections
}

func (f *Filter) matchKeyword(text string) string {
	lowered := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(lowered, kw) {
			return kw
		}
	}
	return ""
}

// truncate cuts s to at most n bytes, backing off to a rune boundary so
// the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
