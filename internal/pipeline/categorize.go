package pipeline

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"insightpipe/internal/llm"
	llmclient "insightpipe/internal/llmClient"
	t "insightpipe/internal/types"
)

const categorizeSystem = "You are a precise text classifier. You always return exactly one category number for each post."

// Categorizer assigns each post exactly one label from a fixed category
// set, one batch per oracle call. Unparseable, missing, or out-of-range
// answers map to Uncategorized, as does every post of a batch whose call
// failed outright.
type Categorizer struct {
	Oracle     llmclient.Client
	BatchSize  int
	Categories []string
}

func (c *Categorizer) Run(ctx context.Context, posts []t.Post) []t.Post {
	ctx = llm.WithStage(ctx, "categorize")
	size := c.BatchSize
	if size < 1 {
		size = defaultBatchSize
	}

	out := make([]t.Post, 0, len(posts))
	for _, batch := range Batches(posts, size) {
		reply, err := c.Oracle.Complete(ctx, llmclient.Request{
			System:      categorizeSystem,
			User:        c.buildPrompt(batch),
			Temperature: 0.3,
			MaxTokens:   400,
		})
		if err != nil {
			log.Printf("categorize: batch failed, marking uncategorized: %v", err)
			reply = ""
		}
		cats := c.parseReply(reply, len(batch))
		for i, p := range batch {
			p.Category = cats[i]
			out = append(out, p)
		}
	}
	return out
}

func (c *Categorizer) buildPrompt(batch []t.Post) string {
	var cats strings.Builder
	for i, name := range c.Categories {
		fmt.Fprintf(&cats, "%d. %s\n", i+1, name)
	}
	var postsText strings.Builder
	for i, p := range batch {
		fmt.Fprintf(&postsText, "\nPOST_%d: %s\n", i+1, p.Summary)
	}

	return fmt.Sprintf(`Categorize each post summary into exactly ONE category from this list:

%s
Instructions:
- Choose the single most relevant category for each post
- Respond with ONLY the category number (1-%d)
- Format: POST_X: <number>

Posts to categorize:
%s
Your categorization (one number per post):`, cats.String(), len(c.Categories), postsText.String())
}

// parseReply maps each post's 1-based index to a category name. The valid
// answers are 1..len(categories) inclusive; 0 and len+1 are out of range,
// never an off-by-one real category.
func (c *Categorizer) parseReply(reply string, n int) []string {
	lines := strings.Split(reply, "\n")
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = t.Uncategorized

		marker := fmt.Sprintf("POST_%d:", i+1)
		var postLine string
		for _, line := range lines {
			if strings.Contains(line, marker) {
				postLine = line
				break
			}
		}
		if postLine == "" {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSpace(strings.Split(postLine, ":")[1]))
		if err != nil {
			continue
		}
		if num >= 1 && num <= len(c.Categories) {
			out[i] = c.Categories[num-1]
		}
	}
	return out
}
