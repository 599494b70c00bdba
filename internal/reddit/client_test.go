package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"insightpipe/internal/tester"
)

type fakeChild struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
}

func writeListing(w http.ResponseWriter, after string, children ...fakeChild) {
	type wrapped struct {
		Data fakeChild `json:"data"`
	}
	wrappedChildren := make([]wrapped, len(children))
	for i, c := range children {
		wrappedChildren[i] = wrapped{Data: c}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"after":    after,
			"children": wrappedChildren,
		},
	})
}

func child(id string, score int, created time.Time) fakeChild {
	return fakeChild{
		ID:         id,
		Title:      "Title " + id,
		Score:      score,
		CreatedUTC: float64(created.Unix()),
		Permalink:  "/r/test/comments/" + id,
	}
}

func TestFetchNew_StopsAtCutoff(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -30)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tester.True(t, strings.HasPrefix(r.URL.Path, "/r/test/new.json"), "path %s", r.URL.Path)
		writeListing(w, "",
			child("a", 10, now.AddDate(0, 0, -1)),
			child("b", 5, now.AddDate(0, 0, -2)),
			child("old", 900, now.AddDate(0, 0, -60)), // past cutoff, must stop here
			child("never", 900, now.AddDate(0, 0, -1)),
		)
	}))
	defer srv.Close()

	c := New("test-agent")
	c.BaseURL = srv.URL

	posts, err := c.FetchNew(context.Background(), "test", cutoff, 0)
	tester.NoErr(t, err)
	tester.Eq(t, len(posts), 2)
	tester.Eq(t, posts[0].ID, "a")
	tester.Eq(t, posts[1].ID, "b")
	tester.Eq(t, posts[0].Permalink, "https://reddit.com/r/test/comments/a")
}

func TestFetchNew_FiltersAndCap(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeListing(w, "",
			child("lowscore", 1, now),
			child("a", 50, now),
			child("b", 60, now),
			child("c", 70, now),
		)
	}))
	defer srv.Close()

	c := New("test-agent")
	c.BaseURL = srv.URL
	c.MinScore = 10

	posts, err := c.FetchNew(context.Background(), "test", now.AddDate(0, 0, -7), 2)
	tester.NoErr(t, err)
	tester.Eq(t, len(posts), 2)
	tester.Eq(t, posts[0].ID, "a")
	tester.Eq(t, posts[1].ID, "b")
}

func TestFetchNew_Paginates(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("after") == "" {
			writeListing(w, "t3_page2", child("p1", 10, now))
			return
		}
		tester.Eq(t, r.URL.Query().Get("after"), "t3_page2")
		writeListing(w, "", child("p2", 10, now))
	}))
	defer srv.Close()

	c := New("test-agent")
	c.BaseURL = srv.URL

	posts, err := c.FetchNew(context.Background(), "test", now.AddDate(0, 0, -7), 0)
	tester.NoErr(t, err)
	tester.Eq(t, calls, 2)
	tester.Eq(t, len(posts), 2)
}

func TestFetchNew_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("test-agent")
	c.BaseURL = srv.URL

	_, err := c.FetchNew(context.Background(), "test", time.Now().AddDate(0, 0, -7), 0)
	tester.Err(t, err)
}

func TestFetchTopTimesliced_TopPerSliceAndDedup(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Two 14-day slices in a 28-day window; three posts in each slice.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tester.True(t, strings.HasPrefix(r.URL.Path, "/r/test/top.json"), "path %s", r.URL.Path)
		tester.Eq(t, r.URL.Query().Get("t"), "year")
		writeListing(w, "",
			child("s1a", 100, end.AddDate(0, 0, -1)),
			child("s1b", 300, end.AddDate(0, 0, -2)),
			child("s1c", 200, end.AddDate(0, 0, -3)),
			child("s2a", 50, end.AddDate(0, 0, -20)),
			child("s2b", 80, end.AddDate(0, 0, -21)),
			child("s2c", 20, end.AddDate(0, 0, -22)),
			child("outside", 999, end.AddDate(0, 0, -90)),
		)
	}))
	defer srv.Close()

	c := New("test-agent")
	c.BaseURL = srv.URL

	posts, err := c.FetchTopTimesliced(context.Background(), "test", end, 28, 14, 2)
	tester.NoErr(t, err)

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	// Top 2 by score per slice, newest slice first.
	tester.Eq(t, ids, []string{"s1b", "s1c", "s2b", "s2a"})
}

func TestFetchTopTimesliced_EmptyWindow(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeListing(w, "", child("ancient", 10, end.AddDate(-2, 0, 0)))
	}))
	defer srv.Close()

	c := New("test-agent")
	c.BaseURL = srv.URL

	posts, err := c.FetchTopTimesliced(context.Background(), "test", end, 28, 14, 5)
	tester.NoErr(t, err)
	tester.Eq(t, len(posts), 0)
}
