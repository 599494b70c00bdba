package output

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	t "insightpipe/internal/types"
)

// Dashboard is the unified JSON document the front end renders: run
// metadata, per-category aggregates, structured insights, and the posts
// themselves.
type Dashboard struct {
	Metadata   Metadata           `json:"metadata"`
	Categories []CategoryAgg      `json:"categories"`
	Insights   []DashboardInsight `json:"insights"`
	Posts      []t.Post           `json:"posts"`
}

type Metadata struct {
	Subreddit   string `json:"subreddit"`
	GeneratedAt string `json:"generated_at"`
	NumPosts    int    `json:"num_posts"`
	NumInsights int    `json:"num_insights"`
}

type CategoryAgg struct {
	Name         string  `json:"name"`
	NumPosts     int     `json:"num_posts"`
	NumClusters  int     `json:"num_clusters"`
	AvgSentiment float64 `json:"avg_sentiment"`
	AvgScore     float64 `json:"avg_score"`
	AvgComments  float64 `json:"avg_comments"`
}

type DashboardInsight struct {
	ID                 string    `json:"id"`
	Category           string    `json:"category"`
	Theme              string    `json:"theme"`
	KeyInsight         string    `json:"key_insight"`
	SupportingEvidence []string  `json:"supporting_evidence"`
	ClusterSize        int       `json:"cluster_size"`
	AvgSentiment       float64   `json:"avg_sentiment"`
	TotalEngagement    int       `json:"total_engagement"`
	TimeRange          []string  `json:"time_range"`
	LinkedPosts        []string  `json:"linked_posts"`
	LinkedPostsFull    []PostRef `json:"linked_posts_full"`
	LastUpdated        string    `json:"last_updated"`
}

type PostRef struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
	Sentiment   string `json:"sentiment"`
	CreatedISO  string `json:"created_iso"`
	CreatedUTC  int64  `json:"created_utc"`
	Permalink   string `json:"permalink"`
}

var (
	themeRe    = regexp.MustCompile(`(?s)\*\*Theme:\*\*\s*(.*?)\n`)
	keyRe      = regexp.MustCompile(`(?s)\*\*Key Insight:\*\*\s*(.*?)\n`)
	evidenceRe = regexp.MustCompile(`(?s)\*\*Supporting Evidence:\*\*\s*(.*)`)
)

// BuildDashboard flattens the insight set into visualization-ready rows.
// Theme / Key Insight / Supporting Evidence are extracted from the
// structured narrative text; insights whose text lacks those markers keep
// empty fields.
func BuildDashboard(subreddit string, posts []t.Post, insights t.InsightSet, now time.Time) *Dashboard {
	lookup := make(map[string]t.Post, len(posts))
	for _, p := range posts {
		lookup[p.ID] = p
	}

	var flat []DashboardInsight
	for _, cat := range sortedKeys(insights) {
		for _, ins := range insights[cat] {
			flat = append(flat, flattenInsight(cat, ins, lookup))
		}
	}

	var aggs []CategoryAgg
	for _, cat := range categoriesUsed(posts) {
		var catPosts []t.Post
		for _, p := range posts {
			name := p.Category
			if name == "" {
				name = t.Uncategorized
			}
			if name == cat {
				catPosts = append(catPosts, p)
			}
		}
		if len(catPosts) == 0 {
			continue
		}
		clusters := 0
		for _, ins := range flat {
			if ins.Category == cat {
				clusters++
			}
		}
		var sent, score, comments float64
		for _, p := range catPosts {
			sent += float64(sentimentToNum(p.Sentiment))
			score += float64(p.Score)
			comments += float64(p.NumComments)
		}
		n := float64(len(catPosts))
		aggs = append(aggs, CategoryAgg{
			Name:         cat,
			NumPosts:     len(catPosts),
			NumClusters:  clusters,
			AvgSentiment: round3(sent / n),
			AvgScore:     round1(score / n),
			AvgComments:  round1(comments / n),
		})
	}

	return &Dashboard{
		Metadata: Metadata{
			Subreddit:   subreddit,
			GeneratedAt: now.Format(time.RFC3339),
			NumPosts:    len(posts),
			NumInsights: len(flat),
		},
		Categories: aggs,
		Insights:   flat,
		Posts:      posts,
	}
}

func flattenInsight(cat string, ins t.Insight, lookup map[string]t.Post) DashboardInsight {
	text := ins.Summary
	theme := firstGroup(themeRe, text)
	keyInsight := firstGroup(keyRe, text)

	var evidence []string
	if m := evidenceRe.FindStringSubmatch(text); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-• "))
			if line != "" {
				evidence = append(evidence, line)
			}
		}
	}

	var linked []t.Post
	for _, id := range ins.LinkedPosts {
		if p, ok := lookup[id]; ok {
			linked = append(linked, p)
		}
	}

	var avgSent float64
	totalEng := 0
	var timeRange []string
	if len(linked) > 0 {
		sum := 0
		times := make([]string, 0, len(linked))
		for _, p := range linked {
			sum += sentimentToNum(p.Sentiment)
			totalEng += p.Score + p.NumComments
			times = append(times, p.CreatedISO)
		}
		avgSent = round3(float64(sum) / float64(len(linked)))
		sort.Strings(times)
		timeRange = []string{times[0], times[len(times)-1]}
	}

	full := make([]PostRef, 0, len(linked))
	for _, p := range linked {
		sentiment := p.Sentiment
		if sentiment == "" {
			sentiment = t.SentimentNeutral
		}
		full = append(full, PostRef{
			ID:          p.ID,
			Title:       p.Title,
			Score:       p.Score,
			NumComments: p.NumComments,
			Sentiment:   sentiment,
			CreatedISO:  p.CreatedISO,
			CreatedUTC:  p.CreatedUTC,
			Permalink:   p.Permalink,
		})
	}

	return DashboardInsight{
		ID:                 ins.ID,
		Category:           cat,
		Theme:              theme,
		KeyInsight:         keyInsight,
		SupportingEvidence: evidence,
		ClusterSize:        ins.ClusterSize,
		AvgSentiment:       avgSent,
		TotalEngagement:    totalEng,
		TimeRange:          timeRange,
		LinkedPosts:        ins.LinkedPosts,
		LinkedPostsFull:    full,
		LastUpdated:        ins.LastUpdated,
	}
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func sentimentToNum(s string) int {
	s = strings.ToLower(s)
	if strings.Contains(s, "pos") {
		return 1
	}
	if strings.Contains(s, "neg") {
		return -1
	}
	return 0
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
