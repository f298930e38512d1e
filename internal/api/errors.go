// internal/api/errors.go
// Error to HTTP status mapping

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/pkg/logger"
)

const internalError = "internal error"

// retryAfter is suggested to clients rejected by admission control
const retryAfter = 5 * time.Second

// errorResponse carries the message twice: output matches the success
// envelope, error is kept for clients that read it directly
type errorResponse struct {
	Status    string           `json:"status"`
	Output    string           `json:"output"`
	Error     string           `json:"error"`
	Kind      models.ErrorKind `json:"kind,omitempty"`
	JobID     string           `json:"jobId,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// statusFor maps an error to its HTTP status and public message
func statusFor(err error) (int, string) {
	switch models.KindOf(err) {
	case models.KindValidation:
		return http.StatusBadRequest, err.Error()
	case models.KindNotFound:
		return http.StatusNotFound, err.Error()
	case models.KindNotReady, models.KindConflict:
		return http.StatusConflict, err.Error()
	case models.KindResource:
		if errors.Is(err, models.ErrShutdown) {
			return http.StatusServiceUnavailable, err.Error()
		}
		return http.StatusTooManyRequests, err.Error()
	case models.KindExecution:
		if errors.Is(err, models.ErrTimeout) {
			return http.StatusGatewayTimeout, err.Error()
		}
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusInternalServerError, internalError
}

// writeError writes err with its mapped status
func writeError(w http.ResponseWriter, err error) {
	code, msg := statusFor(err)
	if code == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	if code == http.StatusInternalServerError && msg == internalError {
		logger.Error("Request failed", logger.Err(err))
	}
	writeJSON(w, code, errorResponse{
		Status:    "error",
		Output:    msg,
		Error:     msg,
		Kind:      models.KindOf(err),
		Timestamp: timestamp(time.Time{}),
	})
}

// writeOutcomeError reports a job that finished without succeeding
func writeOutcomeError(w http.ResponseWriter, o *models.ScanOutcome) {
	code := http.StatusInternalServerError
	msg := o.Error
	switch {
	case o.Status == models.StatusTimedOut:
		code = http.StatusGatewayTimeout
	case o.ErrorKind == models.KindResource:
		code = http.StatusServiceUnavailable
	case o.ErrorKind == models.KindParse:
		msg = internalError
	}

	writeJSON(w, code, errorResponse{
		Status:    "error",
		Output:    msg,
		Error:     msg,
		Kind:      o.ErrorKind,
		JobID:     o.JobID,
		Timestamp: timestamp(o.CompletedAt),
	})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Status: "error", Output: msg, Error: msg, Timestamp: timestamp(time.Time{})})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", logger.Err(err))
	}
}
