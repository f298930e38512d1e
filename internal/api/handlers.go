// internal/api/handlers.go

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/internal/profile"
	"github.com/aspnmy/scanapi/pkg/logger"
)

// scanBody is the request body of both submit routes
type scanBody struct {
	Target     string           `json:"target"`
	ScanType   models.ProfileID `json:"scanType"`
	CustomArgs string           `json:"customAttributes"`
}

// scanResponse is the synchronous scan result
type scanResponse struct {
	Status    string              `json:"status"`
	Output    []models.HostResult `json:"output"`
	Raw       string              `json:"raw,omitempty"`
	Timestamp string              `json:"timestamp"`
	JobID     string              `json:"jobId"`
	Complete  bool                `json:"complete"`
}

// handleScan submits a job and waits for its outcome. A client that
// disconnects cancels its job.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeScan(w, r)
	if !ok {
		return
	}

	id, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := s.svc.Wait(r.Context(), id)
	if err != nil {
		if r.Context().Err() != nil {
			if cerr := s.svc.Cancel(context.Background(), id); cerr != nil && !errors.Is(cerr, models.ErrAlreadyTerminal) {
				logger.Warn("Failed to cancel abandoned scan", logger.JobID(id), logger.Err(cerr))
			}
			logger.Info("Client disconnected, scan cancelled", logger.JobID(id))
			return
		}
		writeError(w, err)
		return
	}

	if outcome.Status != models.StatusSucceeded {
		writeOutcomeError(w, outcome)
		return
	}

	resp := scanResponse{
		Status:    "success",
		Output:    outcome.Hosts,
		Timestamp: timestamp(outcome.CompletedAt),
		JobID:     id,
		Complete:  outcome.Complete,
	}
	if resp.Output == nil {
		resp.Output = []models.HostResult{}
	}
	if s.cfg.IncludeRaw {
		resp.Raw = outcome.CSV
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmit queues a job and returns immediately
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeScan(w, r)
	if !ok {
		return
	}

	id, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  id,
		"status": models.StatusPending,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  s.svc.List(),
		"stats": s.svc.Stats(),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.svc.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.publicOutcome(outcome))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":  id,
		"status": models.StatusCancelled,
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profile.Profiles()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"stats":  s.svc.Stats(),
	})
}

// decodeScan reads and checks the request body. On failure the response
// has already been written.
func (s *Server) decodeScan(w http.ResponseWriter, r *http.Request) (models.ScanRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var body scanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return models.ScanRequest{}, false
		}
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return models.ScanRequest{}, false
	}

	return models.ScanRequest{
		Target:     body.Target,
		Profile:    body.ScanType,
		CustomArgs: body.CustomArgs,
	}, true
}

// publicOutcome strips fields callers never see
func (s *Server) publicOutcome(o *models.ScanOutcome) *models.ScanOutcome {
	out := *o
	out.RawOutput = ""
	if !s.cfg.IncludeRaw {
		out.CSV = ""
	}
	if out.ErrorKind == models.KindParse {
		out.Error = internalError
	}
	if out.Hosts == nil {
		out.Hosts = []models.HostResult{}
	}
	return &out
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
