package app

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/planhound/planhound/internal/common"
	"github.com/planhound/planhound/internal/models"
)

// BuildMux creates the HTTP mux with the job-control REST surface.
func (a *App) BuildMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", healthHandler)
	mux.HandleFunc("/api/version", versionHandler)
	mux.HandleFunc("/api/jobs", a.jobsHandler)
	mux.HandleFunc("/api/jobs/", a.jobHandler)

	return mux
}

// healthHandler responds to GET/HEAD /api/health with {"status":"ok"}.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// versionHandler responds to GET/HEAD /api/version with version info.
func versionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// jobsHandler covers the /api/jobs collection: list and create.
func (a *App) jobsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := a.JobControl.ListJobs(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)

	case http.MethodPost:
		var job models.ScanJob
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.JobControl.CreateJob(r.Context(), &job)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// jobHandler covers /api/jobs/{id} and its action sub-paths:
// POST .../start, .../stop, .../cancel, .../run, .../target-date.
func (a *App) jobHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	ctx := r.Context()

	if action == "" {
		switch r.Method {
		case http.MethodGet:
			status, err := a.JobControl.GetStatus(ctx, jobID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, status)
		case http.MethodDelete:
			if err := a.JobControl.DeleteJob(ctx, jobID); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch action {
	case "start":
		err = a.JobControl.StartJob(ctx, jobID)
	case "stop":
		err = a.JobControl.StopJob(ctx, jobID)
	case "cancel":
		err = a.JobControl.CancelJob(ctx, jobID)
	case "run":
		var body struct {
			TargetDate string `json:"target_date"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		err = a.JobControl.RunNow(ctx, jobID, body.TargetDate)
	case "target-date":
		var body struct {
			TargetDate string `json:"target_date"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil {
			writeError(w, http.StatusBadRequest, decodeErr)
			return
		}
		err = a.JobControl.SetTargetDate(ctx, jobID, body.TargetDate)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
