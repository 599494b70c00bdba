package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"insightpipe/internal/artifact"
	"insightpipe/internal/config"
	"insightpipe/internal/llm"
	llmclient "insightpipe/internal/llmClient"
	"insightpipe/internal/output"
	"insightpipe/internal/pipeline"
	"insightpipe/internal/reddit"
	"insightpipe/internal/runs"
	"insightpipe/internal/store"
)

func main() {
	port := flag.String("port", "", "server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *port != "" {
		if !strings.HasPrefix(*port, ":") {
			*port = ":" + *port
		}
		cfg.Port = *port
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

	resultStore := store.NewFromEnv(cfg.Store.Path)
	defer resultStore.Close()

	var s3 *artifact.S3Store
	if cfg.Artifact.Enabled {
		s3, err = artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			log.Printf("artifact store unavailable: %v", err)
			s3 = nil
		}
	}

	svc := &runs.Service{
		Fetcher: fetcher,
		Pipeline: &pipeline.Pipeline{
			Oracle: oracle,
			Config: pipeline.Config{
				BatchSize:       cfg.Pipeline.BatchSize,
				SampleSize:      cfg.Pipeline.SampleSize,
				AssignBatchSize: cfg.Pipeline.AssignBatch,
				MinClusterSize:  cfg.Pipeline.MinClusterSize,
				Categories:      cfg.Pipeline.Categories,
			},
		},
		Writer:   &output.Writer{Dir: cfg.OutputDir, Categories: cfg.Pipeline.Categories},
		Store:    resultStore,
		Artifact: s3,
	}

	h := newHandler(svc, resultStore)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/pipeline/run", h.startRun)
	mux.HandleFunc("/pipeline/status/", h.runStatus)
	mux.HandleFunc("/pipeline/jobs", h.listRuns)
	mux.HandleFunc("/pipeline/watch", h.watchRun)
	mux.HandleFunc("/data/", h.data)

	handler := withCORS(mux)

	log.Printf("Starting API server on %s", cfg.Port)
	log.Fatal(http.ListenAndServe(cfg.Port, h2c.NewHandler(handler, &http2.Server{})))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
