package database

import (
	"time"

	"github.com/noyau-news/noyau/internal/distill"
)

// Issue is one published daily issue.
type Issue struct {
	Date        string // YYYY-MM-DD
	GeneratedAt time.Time
	DryRun      bool
	Items       []IssueItem
}

// IssueItem is one ranked, distilled entry of an issue.
type IssueItem struct {
	Rank       int
	Identity   string
	Headline   string
	Teaser     string
	Takeaway   string
	WhyCare    string
	Bullets    []string
	Citations  []distill.Citation
	Confidence string
	Score      float64
	EchoCount  int
	IsViral    bool
}

// Rejection records an item the political filter kept out of a run.
type Rejection struct {
	ID        int64
	RunDate   string
	ItemURL   string
	ItemTitle string
	Verdict   string
	Reason    string
	CreatedAt string
}

// JobRun is the audit record of one pipeline execution.
type JobRun struct {
	ID         int64
	RunDate    string
	Kind       string // "ingest" or "build"
	Status     string // "running", "done", "failed"
	Stage      string // last stage reached
	Reason     string // failure reason, if any
	DryRun     bool
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Stats contains aggregate database statistics for the status command.
type Stats struct {
	TotalItems   int
	TotalSamples int
	Issues       int
	Rejections   int
}
