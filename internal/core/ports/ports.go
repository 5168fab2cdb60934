package ports

import (
	"context"

	"picpic.transcode/internal/core/domain"
)

type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.Attempt) error
	Update(ctx context.Context, attempt *domain.Attempt) error
	GetAttempt(ctx context.Context, id string) (*domain.Attempt, error)
	ListAttempts(ctx context.Context, offset, limit int) ([]*domain.Attempt, error)
	ListAttemptsByLabel(ctx context.Context, label string, offset, limit int) ([]*domain.Attempt, error)
	CountAttempts(ctx context.Context) (int64, error)
	CountAttemptsByLabel(ctx context.Context, label string) (int64, error)
}

type FailureLedger interface {
	RecordFailure(ctx context.Context, attempt *domain.Attempt) error
	Clear(ctx context.Context, sourcePath string) error
	ListFailures(ctx context.Context, offset, limit int64) ([]*domain.FailureRecord, error)
	CountFailures(ctx context.Context) (int64, error)
}

// ProgressSink receives registry snapshots from the reporter.
type ProgressSink interface {
	PublishProgress(ctx context.Context, entries []domain.ProgressEntry) error
}

type EventPublisher interface {
	ProgressSink
	PublishAttempt(ctx context.Context, attempt *domain.Attempt) error
}

// Observer is notified of task and cycle lifecycle events. Implementations
// must not block for long: they run on the task's goroutine.
type Observer interface {
	AttemptStarted(ctx context.Context, attempt *domain.Attempt)
	AttemptFinished(ctx context.Context, attempt *domain.Attempt)
	CycleFinished(ctx context.Context, stats domain.CycleStats)
}
