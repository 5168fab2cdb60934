package domain

import (
	"path"
	"strings"
	"time"
)

// WorkItem is one source file picked up by a scan cycle.
type WorkItem struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

// Label is the progress-tracking name of the item: the base name of the
// source path, with Windows separators normalised first.
func (w WorkItem) Label() string {
	return path.Base(NormalizePath(w.SourcePath))
}

// NormalizePath rewrites backslashes to forward slashes.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

type AttemptStatus string

const (
	AttemptStatusRunning   AttemptStatus = "running"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// Attempt records a single transcode run of a WorkItem.
type Attempt struct {
	ID              string        `json:"id" gorm:"primaryKey"`
	Label           string        `json:"label" gorm:"index"`
	SourcePath      string        `json:"source_path"`
	DestinationPath string        `json:"destination_path"`
	Status          AttemptStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
	ExitCode        int           `json:"exit_code"`
	SourceDeleted   bool          `json:"source_deleted"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	DurationMs      int64         `json:"duration_ms"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// Finish stamps the end of the attempt with its final status.
func (a *Attempt) Finish(status AttemptStatus, err error) {
	a.Status = status
	a.FinishedAt = time.Now()
	a.DurationMs = a.FinishedAt.Sub(a.StartedAt).Milliseconds()
	if err != nil {
		a.Error = err.Error()
	}
}

func (a *Attempt) Succeeded() bool {
	return a.Status == AttemptStatusSucceeded
}

// CycleStats summarises one scan-and-dispatch pass.
type CycleStats struct {
	Scanned    int           `json:"scanned"`
	Dispatched int           `json:"dispatched"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Batches    int           `json:"batches"`
	Elapsed    time.Duration `json:"elapsed"`
}
