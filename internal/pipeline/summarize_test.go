package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"insightpipe/internal/llm"
	"insightpipe/internal/tester"
	t2 "insightpipe/internal/types"
)

func TestSummarize_PartialReply(t *testing.T) {
	// Only record 2 gets a well-formed line; records 1 and 3 must fall
	// back to title/neutral without failing or dropping anything.
	fake := llm.NewFakeClient(llm.FakeReply{
		Text: "POST_2: Users report cracked packaging on arrival || SENTIMENT: negative",
	})
	s := &Summarizer{Oracle: fake, BatchSize: 10}
	out := s.Run(context.Background(), makePosts(3))

	tester.Eq(t, len(out), 3)
	tester.Eq(t, out[0].Summary, "Title 1")
	tester.Eq(t, out[0].Sentiment, t2.SentimentNeutral)
	tester.Eq(t, out[1].Summary, "Users report cracked packaging on arrival")
	tester.Eq(t, out[1].Sentiment, t2.SentimentNegative)
	tester.Eq(t, out[2].Summary, "Title 3")
	tester.Eq(t, out[2].Sentiment, t2.SentimentNeutral)
}

func TestSummarize_FullReply(t *testing.T) {
	fake := llm.NewFakeClient(llm.FakeReply{Text: strings.Join([]string{
		"POST_1: Loving the new formula || SENTIMENT: positive",
		"POST_2: Asking for shade advice || SENTIMENT: neutral",
	}, "\n")})
	s := &Summarizer{Oracle: fake, BatchSize: 10}
	out := s.Run(context.Background(), makePosts(2))

	tester.Eq(t, out[0].Sentiment, t2.SentimentPositive)
	tester.Eq(t, out[1].Summary, "Asking for shade advice")
}

func TestSummarize_BatchFailureFallsBackToTitles(t *testing.T) {
	fake := llm.NewFakeClient(
		llm.FakeReply{Err: errors.New("service unavailable")},
	)
	s := &Summarizer{Oracle: fake, BatchSize: 10}
	out := s.Run(context.Background(), makePosts(3))

	tester.Eq(t, len(out), 3)
	for i, p := range out {
		tester.Eq(t, p.Summary, out[i].Title)
		tester.Eq(t, p.Sentiment, t2.SentimentNeutral)
	}
}

func TestSummarize_LineWithoutSeparator(t *testing.T) {
	fake := llm.NewFakeClient(llm.FakeReply{Text: "POST_1: just a summary with no label"})
	s := &Summarizer{Oracle: fake, BatchSize: 10}
	out := s.Run(context.Background(), makePosts(1))

	tester.Eq(t, out[0].Summary, "just a summary with no label")
	tester.Eq(t, out[0].Sentiment, t2.SentimentNeutral)
}

func TestSummarize_MultipleBatches(t *testing.T) {
	fake := llm.NewFakeClient(
		llm.FakeReply{Text: "POST_1: a || SENTIMENT: positive\nPOST_2: b || SENTIMENT: neutral"},
		llm.FakeReply{Text: "POST_1: c || SENTIMENT: negative"},
	)
	s := &Summarizer{Oracle: fake, BatchSize: 2}
	out := s.Run(context.Background(), makePosts(3))

	tester.Eq(t, fake.CallCount(), 2)
	// Indexing restarts per batch: the third post is POST_1 of batch 2.
	tester.Eq(t, out[2].Summary, "c")
	tester.Eq(t, out[2].Sentiment, t2.SentimentNegative)
}

func TestParseSentiment(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"SENTIMENT: positive", t2.SentimentPositive},
		{"SENTIMENT: Positive", t2.SentimentPositive},
		{"SENTIMENT: negative", t2.SentimentNegative},
		{"SENTIMENT: neg", t2.SentimentNegative},
		{"SENTIMENT: neutral", t2.SentimentNeutral},
		{"SENTIMENT: mixed", t2.SentimentNeutral},
		{"no label at all", t2.SentimentNeutral},
	} {
		tester.Eq(t, parseSentiment(tc.in), tc.want, tc.in)
	}
}
