package distill

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/noyau-news/noyau/internal/cluster"
	"github.com/noyau-news/noyau/internal/content"
	"github.com/noyau-news/noyau/internal/llm"
)

const validOutput = `{
	"headline": "Kubernetes 1.30 lands with in-place pod resizing",
	"teaser": "The release every platform team was waiting for.",
	"takeaway": "Pods can now be resized without a restart.",
	"bullets": ["In-place resize graduates to beta.", "Sidecar containers are now stable."],
	"citations": [{"url": "https://github.com/kubernetes/kubernetes", "label": "release notes"}],
	"confidence": "high"
}`

// scriptedProvider returns queued responses and errors in order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return p.responses[len(p.responses)-1], nil
}

func (p *scriptedProvider) IsConfigured() bool { return true }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testCluster(id string) *cluster.Cluster {
	return &cluster.Cluster{
		Identity: id,
		Items: []*content.Item{{
			Source:      content.SourceGitHub,
			URL:         "https://github.com/kubernetes/kubernetes",
			Title:       "kubernetes v1.30.0",
			PublishedAt: time.Now(),
			Text:        "Release notes for Kubernetes 1.30.",
			Samples: []content.MetricsSample{
				{CapturedAt: time.Now(), Metrics: map[string]float64{"stars": 100000}},
			},
		}},
	}
}

func fastConfig() Config {
	return Config{MaxAttempts: 3, RetryBase: time.Millisecond, MaxConcurrent: 2}
}

func TestParseDistillationValid(t *testing.T) {
	d, err := ParseDistillation(validOutput)
	if err != nil {
		t.Fatalf("ParseDistillation: %v", err)
	}
	if d.Headline == "" || d.Teaser == "" || d.Takeaway == "" {
		t.Error("required fields empty after parse")
	}
	if len(d.Bullets) != 2 {
		t.Errorf("bullets = %d, want 2", len(d.Bullets))
	}
	if d.Confidence != "high" {
		t.Errorf("confidence = %q", d.Confidence)
	}
}

func TestParseDistillationRejectsContractViolations(t *testing.T) {
	cases := map[string]string{
		"headline over 90 chars": strings.Replace(validOutput,
			"Kubernetes 1.30 lands with in-place pod resizing",
			strings.Repeat("x", 91), 1),
		"one bullet": strings.Replace(validOutput,
			`["In-place resize graduates to beta.", "Sidecar containers are now stable."]`,
			`["only one"]`, 1),
		"three bullets": strings.Replace(validOutput,
			`["In-place resize graduates to beta.", "Sidecar containers are now stable."]`,
			`["a", "b", "c"]`, 1),
		"no citations": strings.Replace(validOutput,
			`[{"url": "https://github.com/kubernetes/kubernetes", "label": "release notes"}]`,
			`[]`, 1),
		"bad confidence": strings.Replace(validOutput, `"high"`, `"certain"`, 1),
		"missing takeaway": strings.Replace(validOutput,
			`"takeaway": "Pods can now be resized without a restart.",`, ``, 1),
		"not json": "Sure! Here's a summary of the story.",
	}
	for name, raw := range cases {
		_, err := ParseDistillation(raw)
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		if name != "not json" && !errors.Is(err, ErrSchema) {
			t.Errorf("%s: error %v is not ErrSchema", name, err)
		}
	}
}

func TestParseDistillationAllowsOptionalWhyCare(t *testing.T) {
	withWhyCare := strings.Replace(validOutput,
		`"takeaway":`, `"why_care": "you run clusters", "takeaway":`, 1)
	d, err := ParseDistillation(withWhyCare)
	if err != nil {
		t.Fatalf("ParseDistillation: %v", err)
	}
	if d.WhyCare != "you run clusters" {
		t.Errorf("why_care = %q", d.WhyCare)
	}
}

func TestDistillStripsMarkdownFences(t *testing.T) {
	p := &scriptedProvider{responses: []string{"```json\n" + validOutput + "\n```"}}
	d := New(p, fastConfig())

	dist, err := d.Distill(context.Background(), testCluster("github:kubernetes/kubernetes"))
	if err != nil {
		t.Fatalf("Distill: %v", err)
	}
	if dist.Headline == "" {
		t.Error("empty headline")
	}
}

func TestDistillRetriesTransientErrors(t *testing.T) {
	p := &scriptedProvider{
		errs:      []error{&llm.APIError{Provider: "openai", Status: http.StatusTooManyRequests}, nil},
		responses: []string{"", validOutput},
	}
	d := New(p, fastConfig())

	dist, err := d.Distill(context.Background(), testCluster("github:kubernetes/kubernetes"))
	if err != nil {
		t.Fatalf("Distill: %v", err)
	}
	if dist == nil {
		t.Fatal("nil distillation after successful retry")
	}
	if p.callCount() != 2 {
		t.Errorf("calls = %d, want 2", p.callCount())
	}
}

func TestDistillRetriesMalformedOutput(t *testing.T) {
	p := &scriptedProvider{responses: []string{"not json at all", validOutput}}
	d := New(p, fastConfig())

	if _, err := d.Distill(context.Background(), testCluster("x")); err != nil {
		t.Fatalf("Distill: %v", err)
	}
	if p.callCount() != 2 {
		t.Errorf("calls = %d, want 2", p.callCount())
	}
}

func TestDistillFailsFastOnPermanentError(t *testing.T) {
	p := &scriptedProvider{
		errs:      []error{&llm.APIError{Provider: "openai", Status: http.StatusUnauthorized}},
		responses: []string{""},
	}
	d := New(p, fastConfig())

	if _, err := d.Distill(context.Background(), testCluster("x")); err == nil {
		t.Fatal("expected error")
	}
	if p.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on auth failure)", p.callCount())
	}
}

func TestDistillExhaustsAttemptBudget(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{
			&llm.APIError{Provider: "ollama", Status: 500},
			&llm.APIError{Provider: "ollama", Status: 500},
			&llm.APIError{Provider: "ollama", Status: 500},
		},
		responses: []string{"", "", ""},
	}
	d := New(p, fastConfig())

	if _, err := d.Distill(context.Background(), testCluster("x")); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if p.callCount() != 3 {
		t.Errorf("calls = %d, want 3", p.callCount())
	}
}

func TestDistillAllIsolatesFailures(t *testing.T) {
	p := &failByIdentityProvider{bad: "github:acme/broken"}
	d := New(p, fastConfig())

	clusters := []*cluster.Cluster{
		testCluster("github:kubernetes/kubernetes"),
		testCluster("github:acme/broken"),
	}
	results, failures := d.DistillAll(context.Background(), clusters)

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if _, ok := results["github:kubernetes/kubernetes"]; !ok {
		t.Error("healthy cluster missing from results")
	}
	if _, ok := failures["github:acme/broken"]; !ok {
		t.Error("broken cluster missing from failures")
	}
}

// failByIdentityProvider fails permanently for prompts mentioning bad.
type failByIdentityProvider struct {
	bad string
}

func (p *failByIdentityProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if strings.Contains(prompt, "acme/broken") {
		return "", &llm.APIError{Provider: "openai", Status: http.StatusBadRequest}
	}
	return validOutput, nil
}

func (p *failByIdentityProvider) IsConfigured() bool { return true }

func TestBuildPromptIncludesSourcesAndMetrics(t *testing.T) {
	d := New(&scriptedProvider{responses: []string{validOutput}}, fastConfig())
	prompt := d.buildPrompt(testCluster("github:kubernetes/kubernetes"))

	for _, want := range []string{
		"kubernetes v1.30.0",
		"https://github.com/kubernetes/kubernetes",
		"stars=100000",
		"JSON object",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDetectTopic(t *testing.T) {
	mk := func(title, url string) *cluster.Cluster {
		return &cluster.Cluster{Identity: url, Items: []*content.Item{{
			Title: title, URL: url, PublishedAt: time.Now(),
		}}}
	}
	cases := []struct {
		title, url, want string
	}{
		{"Critical vulnerability in OpenSSL", "https://example.com/a", "security"},
		{"New LLM inference tricks", "https://example.com/b", "ai"},
		{"v2.0.0 release", "https://github.com/acme/tool", "oss"},
		{"Weekend reading", "https://example.com/c", "sauce"},
	}
	for _, tc := range cases {
		if got := detectTopic(mk(tc.title, tc.url)); got != tc.want {
			t.Errorf("%s: topic = %s, want %s", tc.title, got, tc.want)
		}
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// Three-byte runes; maxExcerptChars-style cuts rarely land on a
	// boundary, so every cut point must back off cleanly.
	s := strings.Repeat("語", 10)
	for max := 1; max <= len(s); max++ {
		got := truncate(s, max)
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(s, %d) = %q is invalid UTF-8", max, got)
		}
	}
	if got := truncate("short", 500); got != "short" {
		t.Errorf("short input altered: %q", got)
	}
}
