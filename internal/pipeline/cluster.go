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
	"insightpipe/internal/util/jsonutil"
)

const (
	clusterSystem = "You are an expert at semantic clustering and pattern recognition. You always return valid JSON."
	themeSystem   = "You are an expert at identifying themes and patterns in social media discussions."
	assignSystem  = "You are an expert at text classification and thematic matching."
)

// ClusterSet is the category-scoped accumulator the clustering phases
// build up. Cluster ids are contiguous small integers starting at 0; a
// rejected or empty proposal never consumes an id. The set is owned by a
// single in-progress Cluster call and is not safe for concurrent use.
type ClusterSet struct {
	members [][]int
	themes  []string
}

// Len returns the number of clusters.
func (c *ClusterSet) Len() int { return len(c.members) }

// Members returns the member indices of cluster id in assignment order.
func (c *ClusterSet) Members(id int) []int { return c.members[id] }

// Theme returns the theme sentence for cluster id ("" before phase 2).
func (c *ClusterSet) Theme(id int) string { return c.themes[id] }

// Total counts members across all clusters.
func (c *ClusterSet) Total() int {
	n := 0
	for _, m := range c.members {
		n += len(m)
	}
	return n
}

// add appends a new cluster and returns its id.
func (c *ClusterSet) add(indices []int) int {
	c.members = append(c.members, indices)
	c.themes = append(c.themes, "")
	return len(c.members) - 1
}

// appendTo grows an existing cluster by one member.
func (c *ClusterSet) appendTo(id, idx int) {
	c.members[id] = append(c.members[id], idx)
}

// largest returns the id of the cluster with the most members, lowest id
// winning ties. Returns -1 when the set is empty.
func (c *ClusterSet) largest() int {
	best := -1
	for id, m := range c.members {
		if best < 0 || len(m) > len(c.members[best]) {
			best = id
		}
	}
	return best
}

// Clusterer partitions one category's posts into thematic clusters by
// delegating similarity judgment to the oracle. Small categories get a
// single direct-clustering call; larger ones go through the three-phase
// sample -> theme -> assign protocol so that no single oracle call grows
// with the category size. Whatever the oracle does, the result is always
// a strict partition of all posts.
type Clusterer struct {
	Oracle          llmclient.Client
	SampleSize      int
	AssignBatchSize int
	MinClusterSize  int
}

func (c *Clusterer) sampleSize() int {
	if c.SampleSize > 0 {
		return c.SampleSize
	}
	return defaultSampleSize
}

func (c *Clusterer) assignBatchSize() int {
	if c.AssignBatchSize > 0 {
		return c.AssignBatchSize
	}
	return defaultAssignBatchSize
}

func (c *Clusterer) minClusterSize() int {
	if c.MinClusterSize > 0 {
		return c.MinClusterSize
	}
	return defaultMinClusterSize
}

// Cluster builds the partition for one category. It never fails: any
// unrecoverable oracle or parse problem collapses the category into a
// single synthetic cluster holding every post.
func (c *Clusterer) Cluster(ctx context.Context, category string, posts []t.Post) *ClusterSet {
	m := len(posts)
	if m == 0 {
		return &ClusterSet{}
	}

	sample := c.sampleSize()
	if m <= sample {
		cs, err := c.directCluster(ctx, category, posts)
		if err != nil {
			log.Printf("cluster %q: direct clustering failed, single cluster fallback: %v", category, err)
			return syntheticAll(m)
		}
		return cs
	}

	// Phase 1: cluster the first sampleSize posts to discover the theme
	// structure.
	cs, err := c.directCluster(ctx, category, posts[:sample])
	if err != nil {
		log.Printf("cluster %q: sample clustering failed, single cluster fallback: %v", category, err)
		return syntheticAll(m)
	}
	if cs.Len() == 0 {
		log.Printf("cluster %q: no valid clusters formed, single cluster fallback", category)
		return syntheticAll(m)
	}

	// Phase 2: one theme sentence per cluster. A theme failure discards
	// the partial clustering; the category degrades as a whole.
	if err := c.extractThemes(ctx, category, posts, cs); err != nil {
		log.Printf("cluster %q: theme extraction failed, single cluster fallback: %v", category, err)
		return syntheticAll(m)
	}

	// Phase 3: assign the remaining posts to the now-fixed cluster set.
	c.assignRemaining(ctx, category, posts, cs, sample)

	// Advisory invariant check. A mismatch is a parsing defect, not a
	// condition to repair here.
	if cs.Total() != m {
		log.Printf("cluster %q: assigned %d of %d posts", category, cs.Total(), m)
	}
	return cs
}

func syntheticAll(m int) *ClusterSet {
	all := make([]int, m)
	for i := range all {
		all[i] = i
	}
	cs := &ClusterSet{}
	cs.add(all)
	return cs
}

// directCluster asks the oracle for a full partition of posts in one call
// and validates the returned structure: out-of-range and double-assigned
// indices are filtered (first-claim-wins), proposals below the minimum
// size are rejected, accepted clusters get compacted contiguous ids, and
// any unclaimed index lands in the largest accepted cluster (or a single
// synthetic cluster when nothing was accepted).
func (c *Clusterer) directCluster(ctx context.Context, category string, posts []t.Post) (*ClusterSet, error) {
	ctx = llm.WithStage(ctx, "cluster")
	m := len(posts)

	reply, err := c.Oracle.Complete(ctx, llmclient.Request{
		System:      clusterSystem,
		User:        buildClusterPrompt(category, posts),
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if err != nil {
		return nil, err
	}

	var proposed [][]int
	if err := jsonutil.UnmarshalFlex(reply, &proposed); err != nil {
		return nil, fmt.Errorf("cluster response: %w", err)
	}

	cs := &ClusterSet{}
	claimed := make([]bool, m)
	for _, indices := range proposed {
		var valid []int
		for _, idx := range indices {
			if idx >= 0 && idx < m && !claimed[idx] {
				valid = append(valid, idx)
			}
		}
		if len(valid) < c.minClusterSize() {
			continue
		}
		cs.add(valid)
		for _, idx := range valid {
			claimed[idx] = true
		}
	}

	var missing []int
	for i := 0; i < m; i++ {
		if !claimed[i] {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		if id := cs.largest(); id >= 0 {
			cs.members[id] = append(cs.members[id], missing...)
		} else {
			cs.add(missing)
		}
	}
	return cs, nil
}

func buildClusterPrompt(category string, posts []t.Post) string {
	m := len(posts)
	var b strings.Builder
	for i, p := range posts {
		fmt.Fprintf(&b, "\nPOST_%d: %s\n", i, truncate(p.Summary, 300))
	}

	return fmt.Sprintf(`You are clustering Reddit post summaries in the category "%s".

Task: Group these %d posts into thematic clusters. Posts discussing similar topics, issues, or themes belong together.

Guidelines:
- Create as many clusters as needed (no fixed limit)
- Posts in a cluster should share a specific, coherent theme (topic, problem, claim, or experience)
- ALL posts must be assigned to exactly one cluster

Posts to cluster (index 0 to %d):
%s

Return ONLY a JSON array where each element is a cluster (array of post indices 0-%d).

Example format:
[
  [0, 3, 7, 15],
  [1, 5, 9, 12, 14],
  [2, 4, 6, 8, 10, 11, 13]
]

Critical: Ensure ALL indices from 0 to %d appear exactly once across all clusters.

Your clustering (JSON array only):`, category, m, m-1, b.String(), m-1, m-1)
}

// extractThemes asks for one sentence per cluster describing its unifying
// theme, using up to 20 member summaries. Errors propagate so the caller
// can discard the partial clustering.
func (c *Clusterer) extractThemes(ctx context.Context, category string, posts []t.Post, cs *ClusterSet) error {
	ctx = llm.WithStage(ctx, "theme")
	for id := 0; id < cs.Len(); id++ {
		indices := cs.Members(id)
		sample := indices
		if len(sample) > 20 {
			sample = sample[:20]
		}
		var b strings.Builder
		for _, idx := range sample {
			fmt.Fprintf(&b, "- %s\n", truncate(posts[idx].Summary, 200))
		}

		prompt := fmt.Sprintf(`Analyze these %d Reddit posts from the "%s" category and identify their unifying theme.

Sample posts (showing %d of %d):
%s
Write a single, clear sentence (20-30 words) that describes the main theme, topic, or issue that connects these posts.

Focus on: What specific topic, problem, or discussion area do these posts share?

Theme:`, len(indices), category, len(sample), len(indices), b.String())

		theme, err := c.Oracle.Complete(ctx, llmclient.Request{
			System:      themeSystem,
			User:        prompt,
			Temperature: 0.4,
			MaxTokens:   100,
		})
		if err != nil {
			return fmt.Errorf("theme for cluster %d: %w", id, err)
		}
		cs.themes[id] = strings.TrimSpace(theme)
		log.Printf("cluster %q: cluster %d theme: %q (%d posts)", category, id, cs.themes[id], len(indices))
	}
	return nil
}

// assignRemaining routes posts[start:] into the existing clusters in
// sub-batches, addressing each post by its absolute index. A post whose
// answer is missing, unparseable, or names an unknown cluster goes to
// whichever cluster is largest at that moment; a failed sub-batch call
// sends the whole sub-batch to the then-current largest cluster.
func (c *Clusterer) assignRemaining(ctx context.Context, category string, posts []t.Post, cs *ClusterSet, start int) {
	ctx = llm.WithStage(ctx, "assign")
	remaining := posts[start:]
	size := c.assignBatchSize()
	log.Printf("cluster %q: assigning %d remaining posts to %d clusters", category, len(remaining), cs.Len())

	var themes strings.Builder
	var ids []string
	for id := 0; id < cs.Len(); id++ {
		fmt.Fprintf(&themes, "CLUSTER_%d: %s\n", id, cs.Theme(id))
		ids = append(ids, strconv.Itoa(id))
	}
	idsStr := strings.Join(ids, ", ")

	for off := 0; off < len(remaining); off += size {
		batch := remaining[off:min(off+size, len(remaining))]
		batchStart := start + off

		var postsText strings.Builder
		for j, p := range batch {
			fmt.Fprintf(&postsText, "\nPOST_%d: %s\n", batchStart+j, truncate(p.Summary, 250))
		}

		prompt := fmt.Sprintf(`Assign each post to the most relevant cluster based on thematic similarity.

Category: "%s"

Available Clusters (%s):
%s
Posts to assign:
%s
Instructions:
- Assign each post to exactly ONE cluster: %s
- Choose the cluster whose theme best matches the post's content
- Return ONLY in this format:
POST_X: <cluster_number>
POST_Y: <cluster_number>

Your assignments:`, category, idsStr, themes.String(), postsText.String(), idsStr)

		reply, err := c.Oracle.Complete(ctx, llmclient.Request{
			System:      assignSystem,
			User:        prompt,
			Temperature: 0.2,
			MaxTokens:   500,
		})
		if err != nil {
			log.Printf("cluster %q: sub-batch assignment failed, using largest cluster: %v", category, err)
			id := cs.largest()
			for j := range batch {
				cs.appendTo(id, batchStart+j)
			}
			continue
		}

		lines := strings.Split(reply, "\n")
		for j := range batch {
			absIdx := batchStart + j
			if !assignFromLines(cs, lines, absIdx) {
				// Largest is recomputed here on purpose: earlier
				// fallbacks in this same sub-batch may have grown a
				// cluster past its siblings.
				cs.appendTo(cs.largest(), absIdx)
			}
		}
	}

	for id := 0; id < cs.Len(); id++ {
		log.Printf("cluster %q: cluster %d: %d posts", category, id, len(cs.Members(id)))
	}
}

// assignFromLines scans for a line answering absIdx and applies it when it
// names a known cluster id. Reports whether the post was assigned.
func assignFromLines(cs *ClusterSet, lines []string, absIdx int) bool {
	marker := fmt.Sprintf("POST_%d:", absIdx)
	for _, line := range lines {
		if !strings.Contains(line, marker) {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		if id >= 0 && id < cs.Len() {
			cs.appendTo(id, absIdx)
			return true
		}
	}
	return false
}
