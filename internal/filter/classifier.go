package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/noyau-news/noyau/internal/llm"
)

const classifyPrompt = `You are a content classifier. Determine if the content is about politics, elections, government policy, or political figures.

Technical terms like "leader election" in distributed systems or "election algorithm" are NOT political.

Respond ONLY with "political" or "not_political".

Content:
%s`

const maxClassifyChars = 1000

// LLMClassifier validates keyword hits against an LLM provider.
type LLMClassifier struct {
	provider llm.Provider
}

// NewLLMClassifier creates a classifier backed by the given provider.
func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{provider: provider}
}

// Classify returns true when the text is genuinely political. Any error,
// including an unparseable response, propagates so the filter can fail
// closed.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (bool, error) {
	text = truncate(text, maxClassifyChars)

	response, err := c.provider.Generate(ctx, fmt.Sprintf(classifyPrompt, text), 10)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "political":
		return true, nil
	case "not_political":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected classifier response: %q", truncate(response, 40))
	}
}
