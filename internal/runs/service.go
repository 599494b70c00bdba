package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"insightpipe/internal/artifact"
	"insightpipe/internal/output"
	"insightpipe/internal/pipeline"
	"insightpipe/internal/reddit"
	"insightpipe/internal/store"
	t "insightpipe/internal/types"
)

// Params selects what one run fetches and how it is clustered.
type Params struct {
	Subreddit    string `json:"subreddit"`
	MaxPosts     int    `json:"max_posts,omitempty"`
	LookbackDays int    `json:"lookback_days,omitempty"`
	MinCluster   int    `json:"min_cluster_size,omitempty"`

	// Timesliced selects the top-listing fetch path instead of newest-first.
	Timesliced  bool   `json:"timesliced,omitempty"`
	SliceDays   int    `json:"slice_days,omitempty"`
	TopPerSlice int    `json:"top_per_slice,omitempty"`
	BeforeDate  string `json:"before_date,omitempty"` // YYYY-MM-DD, window end
}

// Event is one progress update delivered to run watchers.
type Event struct {
	RunID   string `json:"run_id"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// Service owns run lifecycle: it starts background run goroutines,
// persists their state, and fans progress events out to subscribers.
// Each run is independent of the request that started it.
type Service struct {
	Fetcher  *reddit.Client
	Pipeline *pipeline.Pipeline
	Writer   *output.Writer
	Store    *store.Store
	Artifact *artifact.S3Store

	runCounter atomic.Int64

	mu       sync.Mutex
	watchers map[string][]chan Event
}

func (s *Service) newRunID() string {
	n := s.runCounter.Add(1)
	return fmt.Sprintf("run-%d-%d", time.Now().Unix(), n)
}

// Start validates params, records the queued run, and launches the run
// goroutine. It returns immediately with the run id.
func (s *Service) Start(params Params) (string, error) {
	params.Subreddit = strings.TrimSpace(params.Subreddit)
	if params.Subreddit == "" {
		return "", fmt.Errorf("subreddit is required")
	}

	runID := s.newRunID()
	s.Store.PutRun(store.RunRecord{
		RunID:     runID,
		Subreddit: params.Subreddit,
		Status:    store.StatusQueued,
		StartedAt: time.Now(),
	})

	go s.executeRun(context.Background(), runID, params)
	return runID, nil
}

func (s *Service) executeRun(ctx context.Context, runID string, params Params) {
	s.setStatus(runID, store.StatusRunning, "")
	s.publish(runID, Event{RunID: runID, Stage: "fetch", Message: "fetching r/" + params.Subreddit, Status: store.StatusRunning})

	posts, err := s.fetch(ctx, params)
	if err != nil {
		s.fail(runID, fmt.Errorf("fetch: %w", err))
		return
	}
	if len(posts) == 0 {
		s.fail(runID, pipeline.ErrNoPosts)
		return
	}
	s.publish(runID, Event{RunID: runID, Stage: "fetch", Message: fmt.Sprintf("fetched %d posts", len(posts))})

	p := *s.Pipeline
	if params.MinCluster > 0 {
		p.Config.MinClusterSize = params.MinCluster
	}

	s.publish(runID, Event{RunID: runID, Stage: "analyze", Message: "running analysis"})
	result, err := p.Run(ctx, posts)
	if err != nil {
		s.fail(runID, err)
		return
	}

	subdir, err := s.Writer.Write(params.Subreddit, result.Posts, result.Insights)
	if err != nil {
		s.fail(runID, fmt.Errorf("save outputs: %w", err))
		return
	}

	dash := output.BuildDashboard(params.Subreddit, result.Posts, result.Insights, time.Now())
	if data, err := json.Marshal(dash); err == nil {
		if err := s.Store.PutDashboard(params.Subreddit, data); err != nil {
			log.Printf("run %s: persist dashboard failed: %v", runID, err)
		}
	}

	s.Store.PutRun(store.RunRecord{
		RunID:       runID,
		Subreddit:   params.Subreddit,
		Status:      store.StatusCompleted,
		NumPosts:    len(result.Posts),
		NumInsights: result.Insights.Total(),
		OutputDir:   subdir,
		StartedAt:   s.startedAt(runID),
		FinishedAt:  time.Now(),
	})
	s.publish(runID, Event{RunID: runID, Stage: "done", Message: fmt.Sprintf("%d insights", result.Insights.Total()), Status: store.StatusCompleted})

	if s.Artifact != nil {
		go func() {
			if err := s.Artifact.SyncDir(context.Background(), runID, subdir); err != nil {
				log.Printf("run %s: artifact sync failed: %v", runID, err)
			}
		}()
	}
}

func (s *Service) fetch(ctx context.Context, params Params) ([]t.Post, error) {
	lookback := params.LookbackDays
	if lookback <= 0 {
		lookback = 365
	}
	if params.Timesliced {
		end := time.Now()
		if params.BeforeDate != "" {
			parsed, err := time.Parse("2006-01-02", params.BeforeDate)
			if err != nil {
				return nil, fmt.Errorf("invalid before_date %q: %w", params.BeforeDate, err)
			}
			end = parsed
		}
		sliceDays := params.SliceDays
		if sliceDays <= 0 {
			sliceDays = 14
		}
		perSlice := params.TopPerSlice
		if perSlice <= 0 {
			perSlice = 30
		}
		return s.Fetcher.FetchTopTimesliced(ctx, params.Subreddit, end, lookback, sliceDays, perSlice)
	}
	cutoff := time.Now().AddDate(0, 0, -lookback)
	return s.Fetcher.FetchNew(ctx, params.Subreddit, cutoff, params.MaxPosts)
}

func (s *Service) setStatus(runID, status, errMsg string) {
	if run, ok := s.Store.GetRun(runID); ok {
		run.Status = status
		run.Error = errMsg
		if status == store.StatusCompleted || status == store.StatusFailed {
			run.FinishedAt = time.Now()
		}
		s.Store.PutRun(run)
	}
}

func (s *Service) startedAt(runID string) time.Time {
	if run, ok := s.Store.GetRun(runID); ok {
		return run.StartedAt
	}
	return time.Now()
}

func (s *Service) fail(runID string, err error) {
	log.Printf("run %s failed: %v", runID, err)
	s.setStatus(runID, store.StatusFailed, err.Error())
	s.publish(runID, Event{RunID: runID, Stage: "error", Message: err.Error(), Status: store.StatusFailed})
}

// Subscribe registers a watcher for a run's progress events. The channel
// closes when ctx is canceled.
func (s *Service) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}

	ch := make(chan Event, 16)
	s.mu.Lock()
	if s.watchers == nil {
		s.watchers = make(map[string][]chan Event)
	}
	s.watchers[runID] = append(s.watchers[runID], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		list := s.watchers[runID]
		for i, w := range list {
			if w == ch {
				s.watchers[runID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *Service) publish(runID string, evt Event) {
	// Sends and channel close happen under the same lock.
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers[runID] {
		select {
		case ch <- evt:
		default:
			// slow watcher, drop the event
		}
	}
}
