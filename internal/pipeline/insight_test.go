package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"insightpipe/internal/llm"
	llmclient "insightpipe/internal/llmClient"
	"insightpipe/internal/tester"
	t2 "insightpipe/internal/types"
)

func newSynthesizer(fake *llm.FakeClient) *Synthesizer {
	return &Synthesizer{
		Oracle:         fake,
		Clusterer:      &Clusterer{Oracle: fake, SampleSize: 100, AssignBatchSize: 30, MinClusterSize: 2},
		MinClusterSize: 2,
		Now:            func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func categorize(posts []t2.Post, cat string) []t2.Post {
	out := make([]t2.Post, len(posts))
	copy(out, posts)
	for i := range out {
		out[i].Category = cat
	}
	return out
}

func TestSynthesizer_SingleRecordPath(t *testing.T) {
	// One post in the category: the single-record prompt is used and the
	// clustering engine is never invoked.
	fake := llm.NewFakeClient(llm.FakeReply{Text: "A focused analysis."})
	s := newSynthesizer(fake)
	posts := categorize(summarized(makePosts(1)), "Experience Friction")

	db := s.Run(context.Background(), posts, []string{"Experience Friction"})

	tester.Eq(t, fake.CallCount(), 1)
	tester.True(t, strings.Contains(fake.Calls()[0].User, "single Reddit post"), "single-record prompt used")

	list := db["Experience Friction"]
	tester.Eq(t, len(list), 1)
	tester.Eq(t, list[0].ID, "expe_01")
	tester.Eq(t, list[0].ClusterSize, 1)
	tester.Eq(t, list[0].LinkedPosts, []string{"id1"})
}

func TestSynthesizer_ClusteringFailureStillYieldsOneInsight(t *testing.T) {
	// Direct clustering returns malformed JSON; the category must still
	// produce exactly one insight via the synthetic-cluster fallback.
	fake := llm.NewFakeClient(
		llm.FakeReply{Text: "i refuse to emit json"},     // direct clustering
		llm.FakeReply{Text: "**Theme:**\nEverything..."}, // insight over synthetic cluster
	)
	s := newSynthesizer(fake)
	posts := categorize(summarized(makePosts(4)), "Product Efficacy & Usage")

	db := s.Run(context.Background(), posts, []string{"Product Efficacy & Usage"})

	list := db["Product Efficacy & Usage"]
	tester.Eq(t, len(list), 1)
	tester.Eq(t, list[0].ClusterSize, 4)
	tester.Eq(t, len(list[0].LinkedPosts), 4)
}

func TestSynthesizer_OneInsightPerRetainedCluster(t *testing.T) {
	fake := llm.NewFakeClient(
		llm.FakeReply{Text: `[[0,1],[2,3,4]]`},
		llm.FakeReply{Text: "Insight for cluster 0"},
		llm.FakeReply{Text: "Insight for cluster 1"},
	)
	s := newSynthesizer(fake)
	posts := categorize(summarized(makePosts(5)), "Purchase Drivers & Intent")

	db := s.Run(context.Background(), posts, []string{"Purchase Drivers & Intent"})

	list := db["Purchase Drivers & Intent"]
	tester.Eq(t, len(list), 2)
	tester.Eq(t, list[0].ID, "purc_01")
	tester.Eq(t, list[1].ID, "purc_02")
	tester.Eq(t, list[0].ClusterSize, 2)
	tester.Eq(t, list[1].ClusterSize, 3)
	tester.Eq(t, list[1].LinkedPosts, []string{"id3", "id4", "id5"})
}

func TestSynthesizer_NoRetainedClusters_CategoryWideInsight(t *testing.T) {
	// The size floor at insight time is higher than at formation, so both
	// clusters are dropped and the category falls back to one synthesis
	// over all posts, with aggregate stats in the prompt.
	fake := llm.NewFakeClient(
		llm.FakeReply{Text: `[[0,1],[2,3]]`},
		llm.FakeReply{Text: "Whole-category reading"},
	)
	s := newSynthesizer(fake)
	s.MinClusterSize = 3
	s.Clusterer.MinClusterSize = 2
	posts := categorize(summarized(makePosts(4)), "Experience Friction")

	db := s.Run(context.Background(), posts, []string{"Experience Friction"})

	list := db["Experience Friction"]
	tester.Eq(t, len(list), 1)
	tester.Eq(t, list[0].ID, "expe_all")
	tester.Eq(t, list[0].ClusterSize, 4)
	tester.True(t, strings.Contains(fake.Calls()[1].User, "Sentiment Distribution"), "aggregate stats included")
}

func TestSynthesizer_InsightFailure_FallbackInsight(t *testing.T) {
	// The per-cluster synthesis fails; the category degrades to a single
	// fallback insight covering every post, and the sibling category is
	// unaffected.
	fake := llm.NewFakeClient()
	fake.Reply = func(req llmclient.Request) (string, error) {
		switch {
		case strings.Contains(req.User, "JSON array"):
			return `[[0,1,2]]`, nil
		case strings.Contains(req.User, "analyzing a cluster"):
			return "", errors.New("persistent failure")
		default:
			return "Fallback narrative", nil
		}
	}
	s := newSynthesizer(fake)
	a := categorize(summarized(makePosts(3)), "A")
	b := categorize(summarized(makePosts(3)), "B")
	posts := append(a, b...)

	db := s.Run(context.Background(), posts, []string{"A", "B"})

	for _, cat := range []string{"A", "B"} {
		list := db[cat]
		tester.Eq(t, len(list), 1, cat)
		tester.Eq(t, list[0].ID, strings.ToLower(cat)+"_fallback", cat)
		tester.Eq(t, list[0].ClusterSize, 3, cat)
	}
}

func TestSynthesizer_DoubleFailure_EmptyInsightList(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Reply = func(req llmclient.Request) (string, error) {
		if strings.Contains(req.User, "JSON array") {
			return `[[0,1,2]]`, nil
		}
		return "", errors.New("everything is down")
	}
	s := newSynthesizer(fake)
	posts := categorize(summarized(makePosts(3)), "A")

	db := s.Run(context.Background(), posts, []string{"A"})

	list, ok := db["A"]
	tester.True(t, ok, "failed category still present in output")
	tester.Eq(t, len(list), 0)
}

func TestSynthesizer_EmptyCategorySkipped(t *testing.T) {
	fake := llm.NewFakeClient(llm.FakeReply{Text: "unused"})
	s := newSynthesizer(fake)

	db := s.Run(context.Background(), nil, []string{"A", "B"})

	tester.Eq(t, len(db), 0)
	tester.Eq(t, fake.CallCount(), 0)
}

func TestInsightID(t *testing.T) {
	tester.Eq(t, insightID("Product Efficacy & Usage", "01"), "prod_01")
	tester.Eq(t, insightID("Art", "all"), "art_all")
}
