package types

// Sentiment labels attached by the summarization stage.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Uncategorized is the sentinel category for posts the categorization
// stage could not place into the configured label set.
const Uncategorized = "Uncategorized"

// Post is one ingested Reddit submission. The scraper fills the top block;
// Summary/Sentiment/Category are appended by the pipeline stages and are
// never overwritten once set.
type Post struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Selftext    string `json:"selftext"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
	CreatedUTC  int64  `json:"created_utc"`
	CreatedISO  string `json:"created_iso"`
	Permalink   string `json:"permalink"`

	Summary   string `json:"summary,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	Category  string `json:"category,omitempty"`
}

// Insight is one narrative produced for a cluster (or for a whole category
// or single post when clustering degraded). Append-only output.
type Insight struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Summary     string   `json:"summary"`
	LinkedPosts []string `json:"linked_posts"`
	ClusterSize int      `json:"cluster_size"`
	LastUpdated string   `json:"last_updated"`
}

// InsightSet maps category name to that category's insight list.
type InsightSet map[string][]Insight

// Total counts insights across all categories.
func (s InsightSet) Total() int {
	n := 0
	for _, list := range s {
		n += len(list)
	}
	return n
}
