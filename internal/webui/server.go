// Package webui serves a small read-only HTTP surface over persisted
// simulation requests and runs. It never triggers a simulation: every
// route either lists/describes a SimulationRequest and its
// SimulationResult, or streams an archived trace artifact back out of
// object storage.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/flowsim/flowsim/internal/repository"
	"github.com/flowsim/flowsim/internal/storage"
	"github.com/flowsim/flowsim/pkg/model"
	"github.com/flowsim/flowsim/pkg/utils"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Server is a read-only viewer over a Repositories + Storage pair: it lists
// recent SimulationRequests, shows a run's result (including its detailed
// diagnostics when present), and lets a browser download the archived
// trace artifact for a detailed run.
type Server struct {
	repos  *repository.Repositories
	store  storage.Storage
	port   int
	logger utils.Logger
	server *http.Server
}

// NewServer builds a Server. store may be nil, in which case artifact
// downloads report 404 rather than panicking.
func NewServer(repos *repository.Repositories, store storage.Storage, port int, logger utils.Logger) *Server {
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}
	return &Server{repos: repos, store: store, port: port, logger: logger}
}

// Start blocks, serving until the process is signaled or Shutdown is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{uuid}", s.handleRunDetail)
	mux.HandleFunc("GET /api/runs/{uuid}/artifact", s.handleRunArtifact)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("webui listening on :%d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// runRow is the denormalized view a browser gets for one request: its
// topology/workload input alongside its result, when one exists yet.
type runRow struct {
	Request *model.SimulationRequest `json:"request"`
	Result  *model.SimulationResult  `json:"result,omitempty"`
}

func (s *Server) loadRunRow(ctx context.Context, req *model.SimulationRequest) *runRow {
	row := &runRow{Request: req}
	if result, err := s.repos.Run.GetRunByRequestUUID(ctx, req.RequestUUID); err == nil {
		row.Result = result
	}
	return row
}

// handleIndex renders an HTML table of the most recent requests.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reqs, err := s.repos.Request.ListRecentRequests(ctx, defaultListLimit, 0)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list requests: %v", err), http.StatusInternalServerError)
		return
	}

	rows := make([]*runRow, len(reqs))
	for i, req := range reqs {
		rows[i] = s.loadRunRow(ctx, req)
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse template: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, map[string]interface{}{"Rows": rows}); err != nil {
		s.logger.Error("failed to render index template: %v", err)
	}
}

// handleListRuns returns the same recent-requests listing as JSON, with
// limit/offset pagination for programmatic consumers.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	ctx := r.Context()
	reqs, err := s.repos.Request.ListRecentRequests(ctx, limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list requests: %v", err), http.StatusInternalServerError)
		return
	}

	rows := make([]*runRow, len(reqs))
	for i, req := range reqs {
		rows[i] = s.loadRunRow(ctx, req)
	}

	writeJSON(w, http.StatusOK, rows)
}

// handleRunDetail returns the request plus its result (rank completions,
// link peaks, per-round trace and artifact key when Detailed was set).
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")

	ctx := r.Context()
	req, err := s.repos.Request.GetRequestByUUID(ctx, uuid)
	if err != nil {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, s.loadRunRow(ctx, req))
}

// handleRunArtifact streams the compressed trace artifact archived for a
// detailed run straight through from object storage.
func (s *Server) handleRunArtifact(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")

	if s.store == nil {
		http.Error(w, "no storage backend configured", http.StatusNotFound)
		return
	}

	ctx := r.Context()
	result, err := s.repos.Run.GetRunByRequestUUID(ctx, uuid)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if result.ArtifactKey == "" {
		http.Error(w, "run has no archived artifact", http.StatusNotFound)
		return
	}

	if exists, err := s.store.Exists(ctx, result.ArtifactKey); err != nil {
		http.Error(w, fmt.Sprintf("failed to check artifact: %v", err), http.StatusInternalServerError)
		return
	} else if !exists {
		http.Error(w, "artifact not found in storage", http.StatusNotFound)
		return
	}

	reader, err := s.store.Download(ctx, result.ArtifactKey)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to download artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, result.ArtifactKey))
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn("failed to stream artifact %s: %v", result.ArtifactKey, err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
