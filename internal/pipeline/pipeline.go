package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	llmclient "insightpipe/internal/llmClient"
	t "insightpipe/internal/types"
)

// Defaults match the calibrated batch and sampling sizes of the original
// analysis runs.
const (
	defaultBatchSize       = 10
	defaultSampleSize      = 100
	defaultAssignBatchSize = 30
	defaultMinClusterSize  = 2
)

var (
	// ErrNoPosts is returned when a run is started with an empty input set.
	ErrNoPosts = errors.New("pipeline: no posts to analyze")
	// ErrNoInsights is returned when every category that had posts failed
	// to produce any insight; the run must not look complete.
	ErrNoInsights = errors.New("pipeline: no insights produced for any category")
)

// Config carries the tunable knobs of one pipeline run. Zero values fall
// back to the package defaults; Categories is the fixed label set and must
// be non-empty.
type Config struct {
	BatchSize       int
	SampleSize      int
	AssignBatchSize int
	MinClusterSize  int
	Categories      []string
}

// Result is the aggregated output handed to persistence/presentation:
// the fully enriched post list and the per-category insight lists.
type Result struct {
	Posts    []t.Post     `json:"posts"`
	Insights t.InsightSet `json:"insights"`
}

// Pipeline is the blocking "run everything" entry point: summarize,
// categorize, then cluster and synthesize per category. All oracle traffic
// flows through the single configured client, so retry, pacing, and
// logging policy are whatever middleware the caller wrapped it in.
type Pipeline struct {
	Oracle llmclient.Client
	Config Config
}

func (p *Pipeline) Run(ctx context.Context, posts []t.Post) (*Result, error) {
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}
	if len(p.Config.Categories) == 0 {
		return nil, errors.New("pipeline: no categories configured")
	}

	start := time.Now()
	log.Printf("pipeline: summarizing %d posts", len(posts))
	summarizer := &Summarizer{Oracle: p.Oracle, BatchSize: p.Config.BatchSize}
	enriched := summarizer.Run(ctx, posts)

	log.Printf("pipeline: categorizing %d posts", len(enriched))
	categorizer := &Categorizer{Oracle: p.Oracle, BatchSize: p.Config.BatchSize, Categories: p.Config.Categories}
	enriched = categorizer.Run(ctx, enriched)

	log.Printf("pipeline: generating insights")
	synth := &Synthesizer{
		Oracle: p.Oracle,
		Clusterer: &Clusterer{
			Oracle:          p.Oracle,
			SampleSize:      p.Config.SampleSize,
			AssignBatchSize: p.Config.AssignBatchSize,
			MinClusterSize:  p.Config.MinClusterSize,
		},
		MinClusterSize: p.Config.MinClusterSize,
	}
	insights := synth.Run(ctx, enriched, p.Config.Categories)

	if insights.Total() == 0 {
		return nil, ErrNoInsights
	}

	log.Printf("pipeline: done in %s (%d insights)", time.Since(start).Round(time.Millisecond), insights.Total())
	return &Result{Posts: enriched, Insights: insights}, nil
}
