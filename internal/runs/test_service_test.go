package runs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"insightpipe/internal/llm"
	llmclient "insightpipe/internal/llmClient"
	"insightpipe/internal/output"
	"insightpipe/internal/pipeline"
	"insightpipe/internal/reddit"
	"insightpipe/internal/store"
	"insightpipe/internal/tester"
)

func listingServer(t *testing.T, numPosts int) *httptest.Server {
	now := time.Now()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		children := make([]map[string]any, numPosts)
		for i := range children {
			children[i] = map[string]any{
				"data": map[string]any{
					"id":          "id" + string(rune('a'+i)),
					"title":       "Post title",
					"score":       10,
					"created_utc": float64(now.Add(-time.Duration(i) * time.Hour).Unix()),
					"permalink":   "/r/test/x",
				},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"after": "", "children": children},
		})
	}))
}

func scriptedOracle() *llm.FakeClient {
	fake := llm.NewFakeClient()
	fake.Reply = func(req llmclient.Request) (string, error) {
		switch {
		case strings.Contains(req.User, "Summarize each Reddit post"):
			return "POST_1: s1 || SENTIMENT: neutral\nPOST_2: s2 || SENTIMENT: neutral\nPOST_3: s3 || SENTIMENT: neutral", nil
		case strings.Contains(req.User, "Categorize each post summary"):
			return "POST_1: 1\nPOST_2: 1\nPOST_3: 1", nil
		case strings.Contains(req.User, "JSON array"):
			return `[[0,1,2]]`, nil
		default:
			return "An insight narrative.", nil
		}
	}
	return fake
}

func newService(t *testing.T, oracle llmclient.Client, srvURL string) *Service {
	fetcher := reddit.New("test-agent")
	fetcher.BaseURL = srvURL
	return &Service{
		Fetcher: fetcher,
		Pipeline: &pipeline.Pipeline{
			Oracle: oracle,
			Config: pipeline.Config{Categories: []string{"Alpha", "Beta"}},
		},
		Writer: &output.Writer{Dir: t.TempDir(), Categories: []string{"Alpha", "Beta"}},
		Store:  store.New(filepath.Join(t.TempDir(), "runs.json")),
	}
}

func waitStatus(t *testing.T, s *Service, runID string, want string) store.RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if run, ok := s.Store.GetRun(runID); ok && run.Status == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	run, _ := s.Store.GetRun(runID)
	t.Fatalf("run %s never reached %s (last: %s, err: %s)", runID, want, run.Status, run.Error)
	return store.RunRecord{}
}

func TestService_StartRequiresSubreddit(t *testing.T) {
	s := newService(t, llm.NewFakeClient(), "http://127.0.0.1:0")
	_, err := s.Start(Params{Subreddit: "  "})
	tester.Err(t, err)
}

func TestService_RunCompletes(t *testing.T) {
	srv := listingServer(t, 3)
	defer srv.Close()
	s := newService(t, scriptedOracle(), srv.URL)

	runID, err := s.Start(Params{Subreddit: "test"})
	tester.NoErr(t, err)

	run := waitStatus(t, s, runID, store.StatusCompleted)
	tester.Eq(t, run.NumPosts, 3)
	tester.Eq(t, run.NumInsights, 1)
	tester.True(t, run.OutputDir != "", "output dir recorded")
	tester.True(t, !run.FinishedAt.IsZero(), "finished_at set")

	data, ok := s.Store.LatestDashboard("test")
	tester.True(t, ok, "dashboard persisted")
	var dash output.Dashboard
	tester.NoErr(t, json.Unmarshal(data, &dash))
	tester.Eq(t, dash.Metadata.NumPosts, 3)
}

func TestService_RunFailsOnOracleOutage(t *testing.T) {
	srv := listingServer(t, 3)
	defer srv.Close()
	fake := llm.NewFakeClient()
	fake.Reply = func(llmclient.Request) (string, error) { return "", errors.New("oracle down") }
	s := newService(t, fake, srv.URL)

	runID, err := s.Start(Params{Subreddit: "test"})
	tester.NoErr(t, err)

	run := waitStatus(t, s, runID, store.StatusFailed)
	tester.True(t, strings.Contains(run.Error, "no insights"), "error recorded")
}

func TestService_SubscribeReceivesEvents(t *testing.T) {
	// Gate the listing fetch so the watcher is registered before any
	// post-fetch event fires.
	gate := make(chan struct{})
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"after": "", "children": []map[string]any{
				{"data": map[string]any{"id": "a", "title": "Post", "score": 10, "created_utc": float64(now.Unix()), "permalink": "/r/test/a"}},
				{"data": map[string]any{"id": "b", "title": "Post", "score": 10, "created_utc": float64(now.Unix()), "permalink": "/r/test/b"}},
				{"data": map[string]any{"id": "c", "title": "Post", "score": 10, "created_utc": float64(now.Unix()), "permalink": "/r/test/c"}},
			}},
		})
	}))
	defer srv.Close()
	s := newService(t, scriptedOracle(), srv.URL)

	sub, cancel := context.WithCancel(context.Background())
	defer cancel()

	runID, err := s.Start(Params{Subreddit: "test"})
	tester.NoErr(t, err)
	ch, err := s.Subscribe(sub, runID)
	tester.NoErr(t, err)
	close(gate)

	waitStatus(t, s, runID, store.StatusCompleted)

	var stages []string
	for {
		select {
		case evt := <-ch:
			stages = append(stages, evt.Stage)
			if evt.Status == store.StatusCompleted {
				tester.True(t, len(stages) >= 2, "multiple progress events delivered")
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no completion event; got stages %v", stages)
		}
	}
}

func TestService_InvalidBeforeDate(t *testing.T) {
	srv := listingServer(t, 3)
	defer srv.Close()
	s := newService(t, scriptedOracle(), srv.URL)

	runID, err := s.Start(Params{Subreddit: "test", Timesliced: true, BeforeDate: "June 1"})
	tester.NoErr(t, err)

	run := waitStatus(t, s, runID, store.StatusFailed)
	tester.True(t, strings.Contains(run.Error, "before_date"), "error names the bad field")
}
