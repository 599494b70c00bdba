package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	t "insightpipe/internal/types"
)

const defaultBaseURL = "https://www.reddit.com"

// listing page size; reddit caps a single listing request at 100 items.
const pageLimit = 100

// Client fetches subreddit listings from the public JSON API. It is pure
// plumbing: no summarization-related logic lives here.
type Client struct {
	HTTP        *http.Client
	BaseURL     string
	UserAgent   string
	MinScore    int
	MinComments int
}

func New(userAgent string) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		BaseURL:   defaultBaseURL,
		UserAgent: userAgent,
	}
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
				Permalink   string  `json:"permalink"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchNew walks the newest-first listing, stopping at the first post
// older than cutoff. Posts below the score/comment floors are skipped;
// at most maxPosts are returned (0 means unlimited).
func (c *Client) FetchNew(ctx context.Context, subreddit string, cutoff time.Time, maxPosts int) ([]t.Post, error) {
	cutoffUTC := cutoff.Unix()
	var posts []t.Post
	after := ""

	for {
		page, err := c.fetchPage(ctx, subreddit, "new", url.Values{}, after)
		if err != nil {
			if len(posts) > 0 {
				log.Printf("reddit: fetch interrupted after %d posts: %v", len(posts), err)
				return posts, nil
			}
			return nil, err
		}
		if len(page.Data.Children) == 0 {
			return posts, nil
		}

		for _, child := range page.Data.Children {
			d := child.Data
			if int64(d.CreatedUTC) < cutoffUTC {
				return posts, nil
			}
			if d.Score < c.MinScore {
				continue
			}
			if c.MinComments > 0 && d.NumComments < c.MinComments {
				continue
			}
			posts = append(posts, toPost(d.ID, d.Title, d.Selftext, d.Score, d.NumComments, int64(d.CreatedUTC), d.Permalink))
			if maxPosts > 0 && len(posts) >= maxPosts {
				return posts, nil
			}
		}

		after = page.Data.After
		if after == "" {
			return posts, nil
		}
	}
}

// FetchTopTimesliced pulls the yearly top listing (up to ~1000 posts),
// restricts it to the lookback window ending at end, then slices the
// window into sliceDays-wide chunks and keeps the top perSlice posts by
// score in each. Boundary duplicates are removed by id, first kept.
func (c *Client) FetchTopTimesliced(ctx context.Context, subreddit string, end time.Time, lookbackDays, sliceDays, perSlice int) ([]t.Post, error) {
	endTS := end.Unix()
	startTS := endTS - int64(lookbackDays)*86400

	collected, err := c.fetchTopYear(ctx, subreddit)
	if err != nil {
		return nil, err
	}

	var window []t.Post
	for _, p := range collected {
		if p.CreatedUTC >= startTS && p.CreatedUTC <= endTS {
			window = append(window, p)
		}
	}
	log.Printf("reddit: top listing fetched %d, in-window %d", len(collected), len(window))
	if len(window) == 0 {
		return nil, nil
	}

	sort.SliceStable(window, func(i, j int) bool { return window[i].CreatedUTC > window[j].CreatedUTC })

	var result []t.Post
	currentEnd := endTS
	for currentEnd > startTS {
		currentStart := currentEnd - int64(sliceDays)*86400 + 1
		if currentStart < startTS {
			currentStart = startTS
		}
		var slicePosts []t.Post
		for _, p := range window {
			if p.CreatedUTC < currentStart || p.CreatedUTC > currentEnd {
				continue
			}
			if p.Score < c.MinScore {
				continue
			}
			if c.MinComments > 0 && p.NumComments < c.MinComments {
				continue
			}
			slicePosts = append(slicePosts, p)
		}
		sort.SliceStable(slicePosts, func(i, j int) bool { return slicePosts[i].Score > slicePosts[j].Score })
		if len(slicePosts) > perSlice {
			slicePosts = slicePosts[:perSlice]
		}
		result = append(result, slicePosts...)
		currentEnd = currentStart - 1
	}

	seen := make(map[string]bool, len(result))
	deduped := result[:0]
	for _, p := range result {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		deduped = append(deduped, p)
	}
	log.Printf("reddit: collected %d posts across slices", len(deduped))
	return deduped, nil
}

func (c *Client) fetchTopYear(ctx context.Context, subreddit string) ([]t.Post, error) {
	params := url.Values{}
	params.Set("t", "year")

	var posts []t.Post
	after := ""
	for len(posts) < 1000 {
		page, err := c.fetchPage(ctx, subreddit, "top", params, after)
		if err != nil {
			if len(posts) > 0 {
				log.Printf("reddit: top listing interrupted after %d posts: %v", len(posts), err)
				return posts, nil
			}
			return nil, err
		}
		if len(page.Data.Children) == 0 {
			break
		}
		for _, child := range page.Data.Children {
			d := child.Data
			posts = append(posts, toPost(d.ID, d.Title, d.Selftext, d.Score, d.NumComments, int64(d.CreatedUTC), d.Permalink))
		}
		after = page.Data.After
		if after == "" {
			break
		}
	}
	return posts, nil
}

func (c *Client) fetchPage(ctx context.Context, subreddit, sortKind string, params url.Values, after string) (*listing, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("raw_json", "1")
	if after != "" {
		params.Set("after", after)
	}
	u := fmt.Sprintf("%s/r/%s/%s.json?%s", base, url.PathEscape(subreddit), sortKind, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s %s: %w", subreddit, sortKind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch r/%s %s: status %d", subreddit, sortKind, resp.StatusCode)
	}

	var page listing
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode r/%s listing: %w", subreddit, err)
	}
	return &page, nil
}

func toPost(id, title, selftext string, score, numComments int, createdUTC int64, permalink string) t.Post {
	return t.Post{
		ID:          id,
		Title:       title,
		Selftext:    selftext,
		Score:       score,
		NumComments: numComments,
		CreatedUTC:  createdUTC,
		CreatedISO:  time.Unix(createdUTC, 0).UTC().Format(time.RFC3339),
		Permalink:   "https://reddit.com" + permalink,
	}
}
