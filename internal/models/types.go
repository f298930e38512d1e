// internal/models/types.go
// Core data models for the scan gateway

package models

import (
	"time"
)

// ProfileID names a scan profile
type ProfileID string

// Known scan profiles
const (
	ProfileQuick   ProfileID = "quick"
	ProfileFull    ProfileID = "full"
	ProfileStealth ProfileID = "stealth"
	ProfileVuln    ProfileID = "vuln"
	ProfileService ProfileID = "service"
	ProfileOS      ProfileID = "os"
	ProfileUDP     ProfileID = "udp"
	ProfileScript  ProfileID = "script"
	ProfileCustom  ProfileID = "custom"
)

// ScanRequest is one caller request. Immutable once created.
type ScanRequest struct {
	ID         string    `json:"jobId"`
	Target     string    `json:"target"`
	Profile    ProfileID `json:"scanType"`
	CustomArgs string    `json:"customAttributes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// JobStatus is the lifecycle state of a scan job
type JobStatus string

// Job states. Everything except pending and running is terminal.
const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
	StatusTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether no further transition is possible
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// ScanJob is a point-in-time view of a job
type ScanJob struct {
	Request    ScanRequest  `json:"request"`
	Args       []string     `json:"args"`
	Status     JobStatus    `json:"status"`
	StartedAt  *time.Time   `json:"startedAt,omitempty"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
	Outcome    *ScanOutcome `json:"-"`
}

// HostResult is one scanned host
type HostResult struct {
	Address      string           `json:"host"`
	Hostname     string           `json:"hostname"`
	HostnameType string           `json:"-"`
	State        string           `json:"state"`
	Protocols    []ProtocolResult `json:"protocols"`

	// Present only when the profile produced them
	OS      *OSInfo        `json:"os,omitempty"`
	Scripts []ScriptResult `json:"scripts,omitempty"`
}

// ProtocolResult groups ports by transport protocol
type ProtocolResult struct {
	Name  string       `json:"name"`
	Ports []PortResult `json:"ports"`
}

// PortResult is one probed port
type PortResult struct {
	Port      int      `json:"port"`
	State     string   `json:"state"`
	Reason    string   `json:"reason,omitempty"`
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Product   string   `json:"product"`
	ExtraInfo string   `json:"extrainfo"`
	CPE       []string `json:"cpe"`
	Conf      int      `json:"-"`

	Scripts []ScriptResult `json:"scripts,omitempty"`
}

// OSInfo carries OS fingerprinting matches
type OSInfo struct {
	Matches  []OSMatch `json:"matches"`
	Accuracy string    `json:"accuracy"`
}

// OSMatch is a single OS guess
type OSMatch struct {
	Name     string   `json:"name"`
	Accuracy int      `json:"accuracy"`
	Class    *OSClass `json:"osclass,omitempty"`
}

// OSClass describes the OS family of a match
type OSClass struct {
	Type     string `json:"type"`
	Vendor   string `json:"vendor"`
	Family   string `json:"osfamily"`
	Gen      string `json:"osgen"`
	Accuracy int    `json:"accuracy"`
}

// ScriptResult is the output of one NSE script
type ScriptResult struct {
	ID     string `json:"id"`
	Output string `json:"output"`
}

// ScanOutcome is produced exactly once per terminal job and never modified
type ScanOutcome struct {
	JobID       string       `json:"jobId"`
	Status      JobStatus    `json:"status"`
	Hosts       []HostResult `json:"hosts"`
	Complete    bool         `json:"complete"`
	CSV         string       `json:"csv,omitempty"`
	RawOutput   string       `json:"rawOutput,omitempty"`
	ErrorKind   ErrorKind    `json:"errorKind,omitempty"`
	Error       string       `json:"error,omitempty"`
	ExitCode    int          `json:"exitCode"`
	CompletedAt time.Time    `json:"completedAt"`
}

// Stats is a snapshot of orchestrator load
type Stats struct {
	Workers   int   `json:"workers"`
	QueueCap  int   `json:"queueCapacity"`
	Queued    int   `json:"queued"`
	Running   int   `json:"running"`
	Retained  int   `json:"retained"`
	Submitted int64 `json:"submitted"`
	Rejected  int64 `json:"rejected"`
}
