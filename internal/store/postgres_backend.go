package store

import (
	"database/sql"
	"strings"
)

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS pipeline_runs (
  run_id TEXT PRIMARY KEY,
  subreddit TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'queued',
  error TEXT NOT NULL DEFAULT '',
  num_posts INTEGER NOT NULL DEFAULT 0,
  num_insights INTEGER NOT NULL DEFAULT 0,
  output_dir TEXT NOT NULL DEFAULT '',
  started_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  finished_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_subreddit ON pipeline_runs (subreddit);

CREATE TABLE IF NOT EXISTS dashboards (
  subreddit TEXT PRIMARY KEY,
  data JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`)
	})
	return s.schemaErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunDB(row rowScanner) (RunRecord, bool) {
	var run RunRecord
	var finished sql.NullTime
	err := row.Scan(
		&run.RunID,
		&run.Subreddit,
		&run.Status,
		&run.Error,
		&run.NumPosts,
		&run.NumInsights,
		&run.OutputDir,
		&run.StartedAt,
		&finished,
	)
	if err != nil {
		return RunRecord{}, false
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return normalizeRun(run), true
}

func (s *Store) putRunDB(run RunRecord) {
	if err := s.ensureSchema(); err != nil {
		return
	}
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt
	}
	_, _ = s.db.Exec(`
INSERT INTO pipeline_runs (
  run_id, subreddit, status, error, num_posts, num_insights, output_dir, started_at, finished_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (run_id)
DO UPDATE SET subreddit=EXCLUDED.subreddit,
  status=EXCLUDED.status,
  error=EXCLUDED.error,
  num_posts=EXCLUDED.num_posts,
  num_insights=EXCLUDED.num_insights,
  output_dir=EXCLUDED.output_dir,
  finished_at=EXCLUDED.finished_at`,
		run.RunID, run.Subreddit, run.Status, run.Error,
		run.NumPosts, run.NumInsights, run.OutputDir, run.StartedAt, finished)
}

func (s *Store) getRunDB(runID string) (RunRecord, bool) {
	if err := s.ensureSchema(); err != nil {
		return RunRecord{}, false
	}
	id := strings.TrimSpace(runID)
	if id == "" {
		return RunRecord{}, false
	}
	row := s.db.QueryRow(`SELECT run_id, subreddit, status, error, num_posts, num_insights, output_dir, started_at, finished_at
FROM pipeline_runs WHERE run_id = $1`, id)
	return scanRunDB(row)
}

func (s *Store) listRunsDB() []RunRecord {
	if err := s.ensureSchema(); err != nil {
		return nil
	}
	rows, err := s.db.Query(`SELECT run_id, subreddit, status, error, num_posts, num_insights, output_dir, started_at, finished_at
FROM pipeline_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		if run, ok := scanRunDB(rows); ok {
			out = append(out, run)
		}
	}
	return out
}

func (s *Store) putDashboardDB(subreddit string, data []byte) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
INSERT INTO dashboards (subreddit, data, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (subreddit)
DO UPDATE SET data=EXCLUDED.data, updated_at=NOW()`, subreddit, data)
	return err
}

func (s *Store) latestDashboardDB(subreddit string) ([]byte, bool) {
	if err := s.ensureSchema(); err != nil {
		return nil, false
	}
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM dashboards WHERE subreddit = $1`, subreddit).Scan(&data)
	if err != nil {
		return nil, false
	}
	return data, true
}
