package domain

import "time"

// FailureRecord tracks a source file whose latest attempt failed. It is
// informational; failed files are still retried on every cycle.
type FailureRecord struct {
	SourcePath  string    `json:"source_path"`
	Label       string    `json:"label"`
	Reason      string    `json:"reason"`
	Failures    int       `json:"failures"`
	LastAttempt string    `json:"last_attempt"`
	LastFailure time.Time `json:"last_failure"`
}
