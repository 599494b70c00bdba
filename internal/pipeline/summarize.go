package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"insightpipe/internal/llm"
	llmclient "insightpipe/internal/llmClient"
	t "insightpipe/internal/types"
)

const summarizeSystem = "You are an expert at summarizing Reddit posts. You capture key ideas, sentiment, and user needs concisely."

// Summarizer asks the oracle for a short summary and a sentiment label per
// post, one batch per call. It never fails and never drops a post: any
// post the reply does not account for keeps its title as summary and a
// neutral sentiment, and a failed batch call degrades the whole batch the
// same way.
type Summarizer struct {
	Oracle    llmclient.Client
	BatchSize int
}

func (s *Summarizer) Run(ctx context.Context, posts []t.Post) []t.Post {
	ctx = llm.WithStage(ctx, "summarize")
	size := s.BatchSize
	if size < 1 {
		size = defaultBatchSize
	}

	out := make([]t.Post, 0, len(posts))
	for _, batch := range Batches(posts, size) {
		reply, err := s.Oracle.Complete(ctx, llmclient.Request{
			System:      summarizeSystem,
			User:        buildSummarizePrompt(batch),
			Temperature: 0.5,
			MaxTokens:   1500,
		})
		if err != nil {
			log.Printf("summarize: batch failed, using titles: %v", err)
			reply = ""
		}
		items := parseSummaryReply(reply, batch)
		for i, p := range batch {
			p.Summary = items[i].summary
			p.Sentiment = items[i].sentiment
			out = append(out, p)
		}
	}
	return out
}

func buildSummarizePrompt(batch []t.Post) string {
	var b strings.Builder
	for i, p := range batch {
		content := truncate(p.Selftext, 300)
		if content == "" {
			content = "[No text content]"
		}
		fmt.Fprintf(&b, "\nPOST_%d:\nTitle: %s\nContent: %s\n", i+1, p.Title, content)
	}

	return fmt.Sprintf(`Summarize each Reddit post in 2-3 concise sentences. Capture the main point, user sentiment, and any specific pain points or needs mentioned. Also provide an overall sentiment label for each post as one of: positive, neutral, negative.

%s

Return ONLY in this exact format (one line per post):
POST_1: [summary text here] || SENTIMENT: [positive|neutral|negative]
POST_2: [summary text here] || SENTIMENT: [positive|neutral|negative]
...

Be specific and preserve important details. Focus on what the user is asking, experiencing, or discussing.
`, b.String())
}

type summaryItem struct {
	summary   string
	sentiment string
}

// parseSummaryReply recovers per-post fields from the line protocol. For
// each 1-based index it scans for a line with the matching POST_N: prefix;
// posts without a well-formed line keep title/neutral.
func parseSummaryReply(reply string, batch []t.Post) []summaryItem {
	lines := strings.Split(reply, "\n")
	items := make([]summaryItem, len(batch))
	for i, p := range batch {
		items[i] = summaryItem{summary: p.Title, sentiment: t.SentimentNeutral}

		prefix := fmt.Sprintf("POST_%d:", i+1)
		var postLine string
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), prefix) {
				postLine = strings.TrimSpace(line)
				break
			}
		}
		if postLine == "" {
			continue
		}

		afterColon := strings.TrimSpace(strings.SplitN(postLine, ":", 2)[1])
		if !strings.Contains(afterColon, "||") {
			if afterColon != "" {
				items[i].summary = afterColon
			}
			continue
		}
		parts := strings.SplitN(afterColon, "||", 2)
		if sum := strings.TrimSpace(parts[0]); sum != "" {
			items[i].summary = sum
		}
		items[i].sentiment = parseSentiment(parts[1])
	}
	return items
}

// parseSentiment extracts the label from a "SENTIMENT: x" fragment by
// substring match; anything that is not clearly positive or negative is
// neutral.
func parseSentiment(s string) string {
	if idx := strings.Index(s, "SENTIMENT"); idx >= 0 {
		s = s[idx+len("SENTIMENT"):]
		if c := strings.Index(s, ":"); c >= 0 {
			s = s[c+1:]
		}
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, "pos"):
		return t.SentimentPositive
	case strings.Contains(s, "neg"):
		return t.SentimentNegative
	default:
		return t.SentimentNeutral
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
