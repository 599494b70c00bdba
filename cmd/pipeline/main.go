package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"insightpipe/internal/artifact"
	"insightpipe/internal/config"
	"insightpipe/internal/llm"
	llmclient "insightpipe/internal/llmClient"
	"insightpipe/internal/output"
	"insightpipe/internal/pipeline"
	"insightpipe/internal/reddit"
	"insightpipe/internal/store"
	t "insightpipe/internal/types"
)

func main() {
	subreddit := flag.String("subreddit", "", "subreddit to analyze (required)")
	maxPosts := flag.Int("max-posts", 0, "max posts to fetch (0 = unlimited)")
	minCluster := flag.Int("min-cluster", 3, "minimum cluster size for insights")
	lookbackDays := flag.Int("lookback-days", 365, "how far back to fetch")
	timesliced := flag.Bool("timesliced", false, "use the top-listing timesliced fetch")
	sliceDays := flag.Int("slice-days", 14, "slice width in days (timesliced mode)")
	topPerSlice := flag.Int("top-per-slice", 30, "top posts kept per slice (timesliced mode)")
	beforeDate := flag.String("before-date", "", "window end as YYYY-MM-DD (timesliced mode, default now)")
	flag.Parse()
	if *subreddit == "" {
		log.Fatal("-subreddit is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY is not set")
	}

	ctx := context.Background()
	gemini, err := llmclient.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal(err)
	}
	oracle := llm.Wrap(gemini,
		llm.WithLogging(nil),
		llm.Retry(cfg.Pipeline.MaxRetries, cfg.Pipeline.BaseDelay),
		llm.RateLimit(cfg.Pipeline.RPS, cfg.Pipeline.Burst),
	)
	defer oracle.Close()

	fetcher := reddit.New(cfg.Fetch.UserAgent)
	fetcher.MinScore = cfg.Fetch.MinScore
	fetcher.MinComments = cfg.Fetch.MinComments

	log.Printf("fetching r/%s (lookback %d days)", *subreddit, *lookbackDays)
	posts, err := fetchPosts(ctx, fetcher, *subreddit, *lookbackDays, *maxPosts, *timesliced, *sliceDays, *topPerSlice, *beforeDate)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("fetched %d posts", len(posts))

	p := &pipeline.Pipeline{
		Oracle: oracle,
		Config: pipeline.Config{
			BatchSize:       cfg.Pipeline.BatchSize,
			SampleSize:      cfg.Pipeline.SampleSize,
			AssignBatchSize: cfg.Pipeline.AssignBatch,
			MinClusterSize:  *minCluster,
			Categories:      cfg.Pipeline.Categories,
		},
	}
	result, err := p.Run(ctx, posts)
	if err != nil {
		log.Fatal(err)
	}

	writer := &output.Writer{Dir: cfg.OutputDir, Categories: cfg.Pipeline.Categories, LookbackDays: *lookbackDays}
	subdir, err := writer.Write(*subreddit, result.Posts, result.Insights)
	if err != nil {
		log.Fatal(err)
	}

	dash := output.BuildDashboard(*subreddit, result.Posts, result.Insights, time.Now())
	if data, err := json.Marshal(dash); err == nil {
		st := store.NewFromEnv(cfg.Store.Path)
		if err := st.PutDashboard(*subreddit, data); err != nil {
			log.Printf("persist dashboard: %v", err)
		}
		_ = st.Close()
	}

	if cfg.Artifact.Enabled {
		s3, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			log.Printf("artifact store unavailable: %v", err)
		} else if err := s3.SyncDir(ctx, *subreddit+"_"+time.Now().Format("20060102"), subdir); err != nil {
			log.Printf("artifact sync: %v", err)
		}
	}

	log.Println("analysis completed →", subdir)
}

func fetchPosts(ctx context.Context, fetcher *reddit.Client, subreddit string, lookbackDays, maxPosts int, timesliced bool, sliceDays, topPerSlice int, beforeDate string) ([]t.Post, error) {
	if timesliced {
		end := time.Now()
		if beforeDate != "" {
			parsed, err := time.Parse("2006-01-02", beforeDate)
			if err != nil {
				return nil, err
			}
			end = parsed
		}
		return fetcher.FetchTopTimesliced(ctx, subreddit, end, lookbackDays, sliceDays, topPerSlice)
	}
	cutoff := time.Now().AddDate(0, 0, -lookbackDays)
	return fetcher.FetchNew(ctx, subreddit, cutoff, maxPosts)
}
