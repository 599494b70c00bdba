package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type fileState struct {
	Runs       []RunRecord                `json:"runs"`
	Dashboards map[string]json.RawMessage `json:"dashboards"`
}

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var state fileState
		if err := json.Unmarshal(b, &state); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, run := range state.Runs {
			run = normalizeRun(run)
			if run.RunID == "" {
				continue
			}
			s.runs[run.RunID] = run
		}
		for sub, data := range state.Dashboards {
			if sub = strings.TrimSpace(sub); sub != "" {
				s.boards[sub] = data
			}
		}
	})
}

func (s *Store) saveFile() {
	s.mu.RLock()
	state := fileState{
		Runs:       make([]RunRecord, 0, len(s.runs)),
		Dashboards: make(map[string]json.RawMessage, len(s.boards)),
	}
	for _, run := range s.runs {
		state.Runs = append(state.Runs, run)
	}
	for sub, data := range s.boards {
		state.Dashboards[sub] = data
	}
	s.mu.RUnlock()

	sort.Slice(state.Runs, func(i, j int) bool { return state.Runs[i].StartedAt.Before(state.Runs[j].StartedAt) })

	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
	_ = os.WriteFile(s.path, b, 0o644)
}

func (s *Store) putRunFile(run RunRecord) {
	s.ensureLoadedFile()
	s.mu.Lock()
	s.runs[run.RunID] = run
	s.mu.Unlock()
	s.saveFile()
}

func (s *Store) getRunFile(runID string) (RunRecord, bool) {
	s.ensureLoadedFile()
	id := strings.TrimSpace(runID)
	if id == "" {
		return RunRecord{}, false
	}
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	return run, ok
}

func (s *Store) listRunsFile() []RunRecord {
	s.ensureLoadedFile()
	s.mu.RLock()
	out := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (s *Store) putDashboardFile(subreddit string, data []byte) {
	s.ensureLoadedFile()
	s.mu.Lock()
	s.boards[subreddit] = data
	s.mu.Unlock()
	s.saveFile()
}

func (s *Store) latestDashboardFile(subreddit string) ([]byte, bool) {
	s.ensureLoadedFile()
	s.mu.RLock()
	data, ok := s.boards[subreddit]
	s.mu.RUnlock()
	return data, ok
}
