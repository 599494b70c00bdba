package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"insightpipe/internal/llm"
	llmclient "insightpipe/internal/llmClient"
	t "insightpipe/internal/types"
)

const insightSystem = "You are an expert market insights analyst who transforms Reddit discussions into actionable business intelligence. You focus on patterns, sentiment, and practical recommendations."

// Synthesizer turns each category's cluster partition into narrative
// insights. Three synthesis paths share the oracle contract: one insight
// per retained cluster, a category-wide synthesis when no cluster survived
// the size floor, and a dedicated single-post path that bypasses
// clustering entirely. A category that fails outright degrades to a
// fallback insight (or an empty list) without touching its siblings.
type Synthesizer struct {
	Oracle         llmclient.Client
	Clusterer      *Clusterer
	MinClusterSize int
	Now            func() time.Time
}

func (s *Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Synthesizer) minClusterSize() int {
	if s.MinClusterSize > 0 {
		return s.MinClusterSize
	}
	return defaultMinClusterSize
}

// Run produces the per-category insight lists for every configured
// category that has posts. Categories without posts are absent from the
// result.
func (s *Synthesizer) Run(ctx context.Context, posts []t.Post, categories []string) t.InsightSet {
	db := t.InsightSet{}
	for _, cat := range categories {
		var catPosts []t.Post
		for _, p := range posts {
			if p.Category == cat {
				catPosts = append(catPosts, p)
			}
		}
		if len(catPosts) == 0 {
			continue
		}
		db[cat] = s.categoryInsights(ctx, cat, catPosts)
	}
	return db
}

// categoryInsights is the category loop boundary of the error design:
// whatever goes wrong inside, the sibling categories never see it.
func (s *Synthesizer) categoryInsights(ctx context.Context, cat string, catPosts []t.Post) []t.Insight {
	if len(catPosts) == 1 {
		text, err := s.singleInsight(ctx, cat, catPosts[0])
		if err != nil {
			log.Printf("insight %q: single-post synthesis failed: %v", cat, err)
			return []t.Insight{}
		}
		return []t.Insight{{
			ID:          insightID(cat, "01"),
			Category:    cat,
			Summary:     text,
			LinkedPosts: []string{catPosts[0].ID},
			ClusterSize: 1,
			LastUpdated: s.now().Format(time.RFC3339),
		}}
	}

	insights, err := s.clusteredInsights(ctx, cat, catPosts)
	if err == nil {
		return insights
	}
	log.Printf("insight %q: clustered synthesis failed, category fallback: %v", cat, err)

	text, err := s.categoryInsight(ctx, cat, catPosts)
	if err != nil {
		log.Printf("insight %q: fallback synthesis also failed: %v", cat, err)
		return []t.Insight{}
	}
	return []t.Insight{{
		ID:          insightID(cat, "fallback"),
		Category:    cat,
		Summary:     text,
		LinkedPosts: postIDs(catPosts),
		ClusterSize: len(catPosts),
		LastUpdated: s.now().Format(time.RFC3339),
	}}
}

func (s *Synthesizer) clusteredInsights(ctx context.Context, cat string, catPosts []t.Post) ([]t.Insight, error) {
	cs := s.Clusterer.Cluster(ctx, cat, catPosts)

	var insights []t.Insight
	for id := 0; id < cs.Len(); id++ {
		members := cs.Members(id)
		if len(members) < s.minClusterSize() {
			log.Printf("insight %q: cluster %d has %d posts, skipped (below size floor)", cat, id, len(members))
			continue
		}
		clusterPosts := make([]t.Post, 0, len(members))
		for _, idx := range members {
			if idx < len(catPosts) {
				clusterPosts = append(clusterPosts, catPosts[idx])
			}
		}
		text, err := s.clusterInsight(ctx, cat, clusterPosts)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", id, err)
		}
		insights = append(insights, t.Insight{
			ID:          insightID(cat, fmt.Sprintf("%02d", id+1)),
			Category:    cat,
			Summary:     text,
			LinkedPosts: postIDs(clusterPosts),
			ClusterSize: len(clusterPosts),
			LastUpdated: s.now().Format(time.RFC3339),
		})
	}

	// Every cluster fell below the size floor: one synthesis over the
	// whole category instead of zero output.
	if len(insights) == 0 {
		text, err := s.categoryInsight(ctx, cat, catPosts)
		if err != nil {
			return nil, err
		}
		insights = append(insights, t.Insight{
			ID:          insightID(cat, "all"),
			Category:    cat,
			Summary:     text,
			LinkedPosts: postIDs(catPosts),
			ClusterSize: len(catPosts),
			LastUpdated: s.now().Format(time.RFC3339),
		})
	}
	return insights, nil
}

// clusterInsight narrates one retained cluster from up to 25 of its posts
// in chronological order, each annotated with date, engagement, and
// sentiment.
func (s *Synthesizer) clusterInsight(ctx context.Context, cat string, clusterPosts []t.Post) (string, error) {
	ctx = llm.WithStage(ctx, "insight")
	sorted := make([]t.Post, len(clusterPosts))
	copy(sorted, clusterPosts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedISO < sorted[j].CreatedISO })
	if len(sorted) > 25 {
		sorted = sorted[:25]
	}

	var combined strings.Builder
	for _, p := range sorted {
		fmt.Fprintf(&combined, "- [%s] (+%d upvotes, %d comments) [%s] %s\n",
			isoDate(p.CreatedISO), p.Score, p.NumComments, sentimentOrNeutral(p.Sentiment), p.Summary)
	}

	prompt := fmt.Sprintf(`You are a market insights analyst evaluating Reddit discussions in the "%s" category.

Context: You are analyzing a cluster of %d thematically similar posts. Each post shows its date, upvotes (+), comment count, sentiment label in brackets [positive|neutral|negative], and summary.

Your task:
1. Identify the single main theme connecting these posts.
2. Provide exactly ONE key insight summarizing the most important pattern, sentiment, or takeaway found across the posts.
3. Include supporting evidence from 1-2 posts (dates, upvotes, or quotes) that justify this insight.
4. Do NOT provide business or marketing recommendations.

Structure your analysis exactly in this format:

**Theme:**
[One concise sentence describing the unifying topic]

**Key Insight:**
[One concise paragraph (3-4 sentences) explaining the single most important finding across these posts]

**Supporting Evidence:**
[List 1-2 posts with brief notes, e.g. "Post from 2024-05-10 (+250): users frustrated with shade mismatch"]

Posts (chronologically ordered, %d total, showing top 25):
%s`, cat, len(clusterPosts), len(clusterPosts), combined.String())

	return s.Oracle.Complete(ctx, llmclient.Request{
		System:      insightSystem,
		User:        prompt,
		Temperature: 0.6,
		MaxTokens:   4096,
	})
}

// singleInsight handles a one-post category without invoking clustering.
func (s *Synthesizer) singleInsight(ctx context.Context, cat string, p t.Post) (string, error) {
	ctx = llm.WithStage(ctx, "insight")
	prompt := fmt.Sprintf(`Analyze this single Reddit post from the "%s" category and extract meaningful insights.

Post Details:
- Title: %s
- Date: %s
- Engagement: %d upvotes, %d comments
- Summary: %s

Provide a brief analysis (100-150 words) covering:
1. What this post reveals about user needs or pain points
2. The significance of its engagement level
`, cat, p.Title, isoDate(p.CreatedISO), p.Score, p.NumComments, p.Summary)

	return s.Oracle.Complete(ctx, llmclient.Request{
		System:      "You are an expert market insights analyst. Extract valuable insights even from single data points.",
		User:        prompt,
		Temperature: 0.6,
		MaxTokens:   300,
	})
}

// categoryInsight synthesizes the whole category (up to 50 posts) plus
// aggregate engagement and sentiment statistics. Used when no cluster
// survived the size floor and as the category-level fallback.
func (s *Synthesizer) categoryInsight(ctx context.Context, cat string, catPosts []t.Post) (string, error) {
	ctx = llm.WithStage(ctx, "insight")
	sorted := make([]t.Post, len(catPosts))
	copy(sorted, catPosts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedISO < sorted[j].CreatedISO })

	var totalScore, totalComments, pos, neg int
	for _, p := range catPosts {
		totalScore += p.Score
		totalComments += p.NumComments
		switch sentimentOrNeutral(p.Sentiment) {
		case t.SentimentPositive:
			pos++
		case t.SentimentNegative:
			neg++
		}
	}
	n := len(catPosts)
	neu := n - pos - neg
	pct := func(c int) float64 { return float64(c) / float64(n) * 100 }

	shown := sorted
	if len(shown) > 50 {
		shown = shown[:50]
	}
	var combined strings.Builder
	for _, p := range shown {
		fmt.Fprintf(&combined, "- [%s] (+%d, %d comments) [%s] %s\n",
			isoDate(p.CreatedISO), p.Score, p.NumComments, sentimentOrNeutral(p.Sentiment), p.Summary)
	}

	prompt := fmt.Sprintf(`Analyze these %d Reddit posts in the "%s" category.

Engagement Stats:
- Average Score: %.1f upvotes
- Average Comments: %.1f
Sentiment Distribution:
- Positive: %d (%.1f%%)
- Neutral: %d (%.1f%%)
- Negative: %d (%.1f%%)

Your task:
1. Identify 2-3 main themes across all posts
2. Detect any temporal patterns or trends
3. Assess overall user sentiment
4. Provide 2-3 actionable recommendations

Structure:

**Main Themes:**
- [Theme 1]
- [Theme 2]

**User Sentiment & Trends:**
[Analysis of sentiment and any patterns over time]

**Actionable Recommendations:**
1. [Specific recommendation]
2. [Specific recommendation]

Posts (chronologically ordered, showing up to 50):
%s`, n, cat,
		float64(totalScore)/float64(n), float64(totalComments)/float64(n),
		pos, pct(pos), neu, pct(neu), neg, pct(neg), combined.String())

	return s.Oracle.Complete(ctx, llmclient.Request{
		System:      "You are an expert market insights analyst who identifies patterns and provides actionable recommendations.",
		User:        prompt,
		Temperature: 0.6,
		MaxTokens:   800,
	})
}

// insightID derives a stable id from the category name and cluster
// ordinal, e.g. "prod_01".
func insightID(cat, suffix string) string {
	prefix := strings.ToLower(cat)
	if r := []rune(prefix); len(r) > 4 {
		prefix = string(r[:4])
	}
	return prefix + "_" + suffix
}

func postIDs(posts []t.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func sentimentOrNeutral(s string) string {
	if s == "" {
		return t.SentimentNeutral
	}
	return s
}

func isoDate(iso string) string {
	if len(iso) >= 10 {
		return iso[:10]
	}
	return iso
}
