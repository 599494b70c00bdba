package store

import (
	"database/sql"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store persists run records and dashboard documents. With a DSN it uses
// Postgres; otherwise it keeps everything in a JSON file at path. Latest
// dashboards are served from an LRU cache keyed by subreddit.
type Store struct {
	path string
	db   *sql.DB

	loadOnce sync.Once
	mu       sync.RWMutex
	runs     map[string]RunRecord
	boards   map[string][]byte // subreddit -> latest dashboard JSON

	schemaOnce sync.Once
	schemaErr  error

	dashCache *lru.Cache[string, []byte]
}

func New(path string) *Store {
	cache, _ := lru.New[string, []byte](64)
	return &Store{
		path:      path,
		runs:      make(map[string]RunRecord),
		boards:    make(map[string][]byte),
		dashCache: cache,
	}
}

func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, []byte](64)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:        db,
		dashCache: cache,
	}, nil
}

// NewFromEnv uses RESULT_STORE_PG_DSN when set and reachable, falling
// back to the file store at path.
func NewFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("RESULT_STORE_PG_DSN"))
	if dsn == "" {
		return New(path)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New(path)
	}
	return s
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) PutRun(run RunRecord) {
	if s == nil {
		return
	}
	run = normalizeRun(run)
	if run.RunID == "" {
		return
	}
	if s.db != nil {
		s.putRunDB(run)
		return
	}
	s.putRunFile(run)
}

func (s *Store) GetRun(runID string) (RunRecord, bool) {
	if s == nil {
		return RunRecord{}, false
	}
	if s.db != nil {
		return s.getRunDB(runID)
	}
	return s.getRunFile(runID)
}

// ListRuns returns all runs, most recently started first.
func (s *Store) ListRuns() []RunRecord {
	if s == nil {
		return nil
	}
	if s.db != nil {
		return s.listRunsDB()
	}
	return s.listRunsFile()
}

// PutDashboard stores the latest dashboard JSON for a subreddit and
// refreshes the cache entry.
func (s *Store) PutDashboard(subreddit string, data []byte) error {
	if s == nil {
		return nil
	}
	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" || len(data) == 0 {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.putDashboardDB(subreddit, data)
	} else {
		s.putDashboardFile(subreddit, data)
	}
	if err == nil && s.dashCache != nil {
		s.dashCache.Add(subreddit, data)
	}
	return err
}

// LatestDashboard returns the most recent dashboard JSON for a subreddit.
func (s *Store) LatestDashboard(subreddit string) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	subreddit = strings.TrimSpace(subreddit)
	if subreddit == "" {
		return nil, false
	}
	if s.dashCache != nil {
		if cached, ok := s.dashCache.Get(subreddit); ok {
			return cached, true
		}
	}
	var data []byte
	var ok bool
	if s.db != nil {
		data, ok = s.latestDashboardDB(subreddit)
	} else {
		data, ok = s.latestDashboardFile(subreddit)
	}
	if ok && s.dashCache != nil {
		s.dashCache.Add(subreddit, data)
	}
	return data, ok
}
