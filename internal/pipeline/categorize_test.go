package pipeline

import (
	"context"
	"errors"
	"testing"

	"insightpipe/internal/llm"
	"insightpipe/internal/tester"
	t2 "insightpipe/internal/types"
)

var testCategories = []string{"Product Efficacy & Usage", "Purchase Drivers & Intent", "Experience Friction"}

func TestCategorize_ValidAssignments(t *testing.T) {
	fake := llm.NewFakeClient(llm.FakeReply{Text: "POST_1: 1\nPOST_2: 3\nPOST_3: 2"})
	c := &Categorizer{Oracle: fake, BatchSize: 10, Categories: testCategories}
	out := c.Run(context.Background(), summarized(makePosts(3)))

	tester.Eq(t, out[0].Category, testCategories[0])
	tester.Eq(t, out[1].Category, testCategories[2])
	tester.Eq(t, out[2].Category, testCategories[1])
}

func TestCategorize_OutOfRangeIsUncategorized(t *testing.T) {
	// 0 and len+1 are both out of the 1-based range and must never hit a
	// real category by an off-by-one.
	fake := llm.NewFakeClient(llm.FakeReply{Text: "POST_1: 0\nPOST_2: 4\nPOST_3: 2"})
	c := &Categorizer{Oracle: fake, BatchSize: 10, Categories: testCategories}
	out := c.Run(context.Background(), summarized(makePosts(3)))

	tester.Eq(t, out[0].Category, t2.Uncategorized)
	tester.Eq(t, out[1].Category, t2.Uncategorized)
	tester.Eq(t, out[2].Category, testCategories[1])
}

func TestCategorize_UnparseableOrMissingIsUncategorized(t *testing.T) {
	fake := llm.NewFakeClient(llm.FakeReply{Text: "POST_1: banana\nsomething unrelated"})
	c := &Categorizer{Oracle: fake, BatchSize: 10, Categories: testCategories}
	out := c.Run(context.Background(), summarized(makePosts(2)))

	tester.Eq(t, out[0].Category, t2.Uncategorized)
	tester.Eq(t, out[1].Category, t2.Uncategorized)
}

func TestCategorize_BatchFailureMapsAllToUncategorized(t *testing.T) {
	fake := llm.NewFakeClient(llm.FakeReply{Err: errors.New("timeout")})
	c := &Categorizer{Oracle: fake, BatchSize: 10, Categories: testCategories}
	out := c.Run(context.Background(), summarized(makePosts(3)))

	tester.Eq(t, len(out), 3)
	for _, p := range out {
		tester.Eq(t, p.Category, t2.Uncategorized)
	}
}
