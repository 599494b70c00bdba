package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything both binaries need: oracle credentials,
// pipeline tuning, upstream fetch limits, persistence, and artifact sync.
type Config struct {
	Port string
	Env  string

	GeminiAPIKey string
	GeminiModel  string

	Pipeline PipelineConfig
	Fetch    FetchConfig
	Store    StoreConfig
	Artifact ArtifactConfig

	OutputDir string
}

type PipelineConfig struct {
	BatchSize      int
	SampleSize     int
	AssignBatch    int
	MinClusterSize int
	Categories     []string

	MaxRetries int
	BaseDelay  time.Duration
	RPS        float64
	Burst      int
}

type FetchConfig struct {
	UserAgent   string
	MaxPosts    int
	MinScore    int
	MinComments int
	MaxAgeDays  int
}

type StoreConfig struct {
	DSN  string
	Path string
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DefaultCategories is the fixed label set used when REDDIT_CATEGORIES
// is not configured.
var DefaultCategories = []string{
	"Product Efficacy & Usage",
	"Purchase Drivers & Intent",
	"Brand Perception & Trust",
	"Experience Friction",
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = ":8090"
	} else if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	cfg := &Config{
		Port:         port,
		Env:          env,
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.0-flash"),
		Pipeline: PipelineConfig{
			BatchSize:      envInt("PIPELINE_BATCH_SIZE", 10),
			SampleSize:     envInt("PIPELINE_SAMPLE_SIZE", 100),
			AssignBatch:    envInt("PIPELINE_ASSIGN_BATCH", 30),
			MinClusterSize: envInt("PIPELINE_MIN_CLUSTER_SIZE", 3),
			Categories:     envCategories(),
			MaxRetries:     envInt("ORACLE_MAX_RETRIES", 3),
			BaseDelay:      envDuration("ORACLE_BASE_DELAY", 3*time.Second),
			RPS:            envFloat("ORACLE_RPS", 3),
			Burst:          envInt("ORACLE_BURST", 1),
		},
		Fetch: FetchConfig{
			UserAgent:   firstNonEmpty(strings.TrimSpace(os.Getenv("REDDIT_USER_AGENT")), "insightpipe/1.0"),
			MaxPosts:    envInt("REDDIT_MAX_POSTS", 100),
			MinScore:    envInt("REDDIT_MIN_SCORE", 0),
			MinComments: envInt("REDDIT_MIN_COMMENTS", 0),
			MaxAgeDays:  envInt("REDDIT_MAX_AGE_DAYS", 365),
		},
		Store: StoreConfig{
			DSN:  strings.TrimSpace(os.Getenv("RESULT_STORE_PG_DSN")),
			Path: firstNonEmpty(strings.TrimSpace(os.Getenv("RESULT_STORE_PATH")), "data/runs.json"),
		},
		Artifact:  loadArtifactConfig(env),
		OutputDir: firstNonEmpty(strings.TrimSpace(os.Getenv("OUTPUT_DIR")), "output"),
	}
	return cfg, nil
}

func envCategories() []string {
	raw := strings.TrimSpace(os.Getenv("REDDIT_CATEGORIES"))
	if raw == "" {
		out := make([]string, len(DefaultCategories))
		copy(out, DefaultCategories)
		return out
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return DefaultCategories
	}
	return out
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "insightpipe-artifacts"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
