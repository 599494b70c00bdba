package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	t "insightpipe/internal/types"
)

// Writer persists one run's results under a per-run directory
// <subreddit>_<timestamp> inside Dir. Now is injectable for tests.
type Writer struct {
	Dir          string
	Categories   []string
	LookbackDays int
	Now          func() time.Time
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Write saves posts.jsonl, posts_summary.csv, categories.json,
// insights.json, REPORT.md, and dashboard_data.json, returning the run
// directory path.
func (w *Writer) Write(subreddit string, posts []t.Post, insights t.InsightSet) (string, error) {
	stamp := w.now().Format("20060102_150405")
	subdir := filepath.Join(w.Dir, fmt.Sprintf("%s_%s", subreddit, stamp))
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}

	if err := w.writePostsJSONL(subdir, posts); err != nil {
		return "", err
	}
	if err := w.writePostsCSV(subdir, posts); err != nil {
		return "", err
	}
	cats := categoriesUsed(posts)
	if err := writeJSON(filepath.Join(subdir, "categories.json"), cats); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(subdir, "insights.json"), insights); err != nil {
		return "", err
	}
	if err := w.writeReport(subdir, subreddit, posts, insights, cats); err != nil {
		return "", err
	}
	dash := BuildDashboard(subreddit, posts, insights, w.now())
	if err := writeJSON(filepath.Join(subdir, "dashboard_data.json"), dash); err != nil {
		return "", err
	}

	log.Printf("output: saved %d posts, %d insights to %s", len(posts), insights.Total(), subdir)
	return subdir, nil
}

func (w *Writer) writePostsJSONL(subdir string, posts []t.Post) error {
	f, err := os.Create(filepath.Join(subdir, "posts.jsonl"))
	if err != nil {
		return fmt.Errorf("create posts.jsonl: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, p := range posts {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("write posts.jsonl: %w", err)
		}
	}
	return bw.Flush()
}

func (w *Writer) writePostsCSV(subdir string, posts []t.Post) error {
	f, err := os.Create(filepath.Join(subdir, "posts_summary.csv"))
	if err != nil {
		return fmt.Errorf("create posts_summary.csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"id", "created_iso", "title", "score", "num_comments", "category", "sentiment", "summary"}); err != nil {
		return err
	}
	for _, p := range posts {
		cat := p.Category
		if cat == "" {
			cat = t.Uncategorized
		}
		summary := p.Summary
		if r := []rune(summary); len(r) > 100 {
			summary = string(r[:100])
		}
		row := []string{
			p.ID,
			p.CreatedISO,
			p.Title,
			strconv.Itoa(p.Score),
			strconv.Itoa(p.NumComments),
			cat,
			p.Sentiment,
			summary,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) writeReport(subdir, subreddit string, posts []t.Post, insights t.InsightSet, cats []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Reddit Analysis Report: r/%s\n\n", subreddit)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", w.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Total Posts:** %d\n\n", len(posts))
	fmt.Fprintf(&b, "**Lookback Period:** %d days\n\n", w.LookbackDays)
	fmt.Fprintf(&b, "**Categories:** %d\n\n", len(cats))

	b.WriteString("## Category Overview\n\n")
	for _, cat := range w.Categories {
		n := 0
		for _, p := range posts {
			if p.Category == cat {
				n++
			}
		}
		fmt.Fprintf(&b, "- **%s**: %d posts, %d clusters\n", cat, n, len(insights[cat]))
	}
	b.WriteString("\n---\n\n")

	for _, cat := range sortedKeys(insights) {
		fmt.Fprintf(&b, "## %s\n\n", cat)
		list := insights[cat]
		if len(list) == 0 {
			b.WriteString("*No insights generated for this category.*\n\n")
		}
		for _, ins := range list {
			fmt.Fprintf(&b, "### Cluster %s (%d posts)\n\n", ins.ID, ins.ClusterSize)
			fmt.Fprintf(&b, "%s\n\n", ins.Summary)
			fmt.Fprintf(&b, "**Linked Posts:** %s\n\n", strings.Join(ins.LinkedPosts, ", "))
			b.WriteString("---\n\n")
		}
	}

	return os.WriteFile(filepath.Join(subdir, "REPORT.md"), []byte(b.String()), 0o644)
}

func categoriesUsed(posts []t.Post) []string {
	seen := map[string]bool{}
	for _, p := range posts {
		cat := p.Category
		if cat == "" {
			cat = t.Uncategorized
		}
		seen[cat] = true
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m t.InsightSet) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, b, 0o644)
}
