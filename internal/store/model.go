package store

import (
	"strings"
	"time"
)

// Run statuses. A run is terminal once completed or failed.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord is the persisted state of one pipeline run.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	Subreddit   string    `json:"subreddit"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	NumPosts    int       `json:"num_posts"`
	NumInsights int       `json:"num_insights"`
	OutputDir   string    `json:"output_dir,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

func normalizeRun(r RunRecord) RunRecord {
	r.RunID = strings.TrimSpace(r.RunID)
	r.Subreddit = strings.TrimSpace(r.Subreddit)
	if strings.TrimSpace(r.Status) == "" {
		r.Status = StatusQueued
	}
	return r
}
