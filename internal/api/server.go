// internal/api/server.go
// HTTP routes for the scan gateway

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/pkg/ratelimit"
)

// Service is the orchestrator surface the API depends on
type Service interface {
	Submit(ctx context.Context, req models.ScanRequest) (string, error)
	Get(ctx context.Context, id string) (models.ScanJob, error)
	Result(ctx context.Context, id string) (*models.ScanOutcome, error)
	Wait(ctx context.Context, id string) (*models.ScanOutcome, error)
	Cancel(ctx context.Context, id string) error
	List() []models.ScanJob
	Stats() models.Stats
}

// Config holds HTTP layer settings
type Config struct {
	CORSOrigins  []string
	MaxBodyBytes int64
	// IncludeRaw adds the CSV rendering to scan responses
	IncludeRaw bool
}

// Server wires handlers and middleware around a Service
type Server struct {
	svc     Service
	limiter *ratelimit.Limiter // nil disables limiting
	cfg     Config
	started time.Time
}

// NewServer creates the API server
func NewServer(svc Service, limiter *ratelimit.Limiter, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &Server{svc: svc, limiter: limiter, cfg: cfg, started: time.Now()}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/scan", s.rateLimit(s.handleScan))
	mux.HandleFunc("POST /api/jobs", s.rateLimit(s.handleSubmit))
	mux.HandleFunc("GET /api/jobs", s.handleList)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGet)
	mux.HandleFunc("GET /api/jobs/{id}/result", s.handleResult)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/profiles", s.handleProfiles)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return requestLogger(s.cors(mux))
}
