package pipeline

import (
	"fmt"
	"time"

	t "insightpipe/internal/types"
)

// makePosts builds n minimal posts with stable ids and ascending dates.
func makePosts(n int) []t.Post {
	posts := make([]t.Post, n)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range posts {
		created := base.AddDate(0, 0, i)
		posts[i] = t.Post{
			ID:          fmt.Sprintf("id%d", i+1),
			Title:       fmt.Sprintf("Title %d", i+1),
			Score:       10 + i,
			NumComments: i,
			CreatedUTC:  created.Unix(),
			CreatedISO:  created.Format(time.RFC3339),
			Permalink:   fmt.Sprintf("https://reddit.com/p/%d", i+1),
		}
	}
	return posts
}

// summarized attaches summaries/sentiments without an oracle round-trip.
func summarized(posts []t.Post) []t.Post {
	out := make([]t.Post, len(posts))
	copy(out, posts)
	for i := range out {
		out[i].Summary = "Summary of " + out[i].Title
		out[i].Sentiment = t.SentimentNeutral
	}
	return out
}

// assertPartition checks that the cluster set is a strict partition of
// {0..m-1}: every index appears in exactly one cluster.
func assertPartition(cs *ClusterSet, m int) error {
	seen := make(map[int]int)
	for id := 0; id < cs.Len(); id++ {
		for _, idx := range cs.Members(id) {
			if idx < 0 || idx >= m {
				return fmt.Errorf("index %d out of range 0..%d", idx, m-1)
			}
			seen[idx]++
		}
	}
	for i := 0; i < m; i++ {
		if seen[i] != 1 {
			return fmt.Errorf("index %d appears %d times", i, seen[i])
		}
	}
	if len(seen) != m {
		return fmt.Errorf("partition covers %d of %d indices", len(seen), m)
	}
	return nil
}
