// internal/output/jsonl.go
// JSON Lines audit log of finished scans

package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aspnmy/scanapi/internal/models"
)

// AuditRecord is one line of the audit log
type AuditRecord struct {
	JobID      string           `json:"jobId"`
	Target     string           `json:"target"`
	ScanType   models.ProfileID `json:"scanType"`
	CustomArgs string           `json:"customAttributes,omitempty"`
	Args       []string         `json:"args"`
	Status     models.JobStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Complete   bool             `json:"complete"`
	Hosts      int              `json:"hosts"`
	OpenPorts  int              `json:"openPorts"`
	ExitCode   int              `json:"exitCode"`
	ErrorKind  models.ErrorKind `json:"errorKind,omitempty"`
	Error      string           `json:"error,omitempty"`
	Raw        string           `json:"raw,omitempty"`
}

// JSONLFormatter appends one AuditRecord per finished job
type JSONLFormatter struct {
	encoder *json.Encoder
	writer  io.WriteCloser
	buffer  *bufio.Writer
	mu      sync.Mutex
}

// NewJSONLFormatter opens filename for appending
func NewJSONLFormatter(filename string) (*JSONLFormatter, error) {
	// Ensure directory exists
	dir := filepath.Dir(filename)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil { //nolint:gosec // G301: log directory
			return nil, err
		}
	}

	//nolint:gosec // G302: 0644 is standard for log files
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return newJSONL(file), nil
}

func newJSONL(w io.WriteCloser) *JSONLFormatter {
	buffer := bufio.NewWriterSize(w, 64*1024)
	return &JSONLFormatter{
		encoder: json.NewEncoder(buffer),
		writer:  w,
		buffer:  buffer,
	}
}

// NewRecord builds the audit line for job
func NewRecord(job *models.ScanJob) AuditRecord {
	rec := AuditRecord{
		JobID:      job.Request.ID,
		Target:     job.Request.Target,
		ScanType:   job.Request.Profile,
		CustomArgs: job.Request.CustomArgs,
		Args:       job.Args,
		Status:     job.Status,
		CreatedAt:  job.Request.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}

	if o := job.Outcome; o != nil {
		rec.Complete = o.Complete
		rec.Hosts = len(o.Hosts)
		rec.ExitCode = o.ExitCode
		rec.ErrorKind = o.ErrorKind
		rec.Error = o.Error
		rec.Raw = o.CSV
		for _, h := range o.Hosts {
			for _, p := range h.Protocols {
				for _, port := range p.Ports {
					if port.State == "open" {
						rec.OpenPorts++
					}
				}
			}
		}
	}
	return rec
}

// Write appends a record and flushes it
func (f *JSONLFormatter) Write(job *models.ScanJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.encoder.Encode(NewRecord(job)); err != nil {
		return err
	}
	return f.buffer.Flush()
}

// Close flushes anything left in the buffer and closes the file
func (f *JSONLFormatter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return errors.Join(f.buffer.Flush(), f.writer.Close())
}
