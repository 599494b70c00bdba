package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"insightpipe/internal/runs"
	"insightpipe/internal/store"
)

type handler struct {
	svc   *runs.Service
	store *store.Store
}

func newHandler(svc *runs.Service, st *store.Store) *handler {
	return &handler{svc: svc, store: st}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /pipeline/run
func (h *handler) startRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var params runs.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	runID, err := h.svc.Start(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": store.StatusQueued,
	})
}

// GET /pipeline/status/{id}
func (h *handler) runStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	runID := strings.TrimPrefix(r.URL.Path, "/pipeline/status/")
	runID = strings.TrimSpace(strings.Trim(runID, "/"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}
	run, ok := h.store.GetRun(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /pipeline/jobs
func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobs := h.store.ListRuns()
	if jobs == nil {
		jobs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GET /data/{subreddit} and GET /data/{subreddit}/insights
func (h *handler) data(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/data/"), "/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "subreddit is required")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	subreddit := parts[0]

	data, ok := h.store.LatestDashboard(subreddit)
	if !ok {
		writeError(w, http.StatusNotFound, "no dashboard for subreddit "+subreddit)
		return
	}

	if len(parts) == 2 {
		if parts[1] != "insights" {
			writeError(w, http.StatusNotFound, "unknown resource "+parts[1])
			return
		}
		var dash struct {
			Insights json.RawMessage `json:"insights"`
		}
		if err := json.Unmarshal(data, &dash); err != nil {
			writeError(w, http.StatusInternalServerError, "corrupt dashboard document")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(dash.Insights)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
