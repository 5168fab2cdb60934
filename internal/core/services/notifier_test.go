package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/ports"
)

type memRepo struct {
	mu      sync.Mutex
	created []string
	updated []domain.AttemptStatus
}

func (r *memRepo) Create(_ context.Context, a *domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a.ID)
	return nil
}

func (r *memRepo) Update(_ context.Context, a *domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, a.Status)
	return nil
}

func (r *memRepo) GetAttempt(context.Context, string) (*domain.Attempt, error) { return nil, nil }
func (r *memRepo) ListAttempts(context.Context, int, int) ([]*domain.Attempt, error) {
	return nil, nil
}
func (r *memRepo) ListAttemptsByLabel(context.Context, string, int, int) ([]*domain.Attempt, error) {
	return nil, nil
}
func (r *memRepo) CountAttempts(context.Context) (int64, error)                { return 0, nil }
func (r *memRepo) CountAttemptsByLabel(context.Context, string) (int64, error) { return 0, nil }

type memLedger struct {
	recorded []string
	cleared  []string
}

func (l *memLedger) RecordFailure(_ context.Context, a *domain.Attempt) error {
	l.recorded = append(l.recorded, a.SourcePath)
	return nil
}

func (l *memLedger) Clear(_ context.Context, sourcePath string) error {
	l.cleared = append(l.cleared, sourcePath)
	return nil
}

func (l *memLedger) ListFailures(context.Context, int64, int64) ([]*domain.FailureRecord, error) {
	return nil, nil
}

func (l *memLedger) CountFailures(context.Context) (int64, error) {
	return int64(len(l.recorded)), nil
}

type memPublisher struct {
	attempts int
	progress int
	err      error
}

func (p *memPublisher) PublishAttempt(context.Context, *domain.Attempt) error {
	p.attempts++
	return p.err
}

func (p *memPublisher) PublishProgress(context.Context, []domain.ProgressEntry) error {
	p.progress++
	return p.err
}

type countingObserver struct {
	started, finished, cycles int
}

func (o *countingObserver) AttemptStarted(context.Context, *domain.Attempt)  { o.started++ }
func (o *countingObserver) AttemptFinished(context.Context, *domain.Attempt) { o.finished++ }
func (o *countingObserver) CycleFinished(context.Context, domain.CycleStats) { o.cycles++ }

func TestNotifier_Lifecycle(t *testing.T) {
	repo := &memRepo{}
	ledger := &memLedger{}
	pub := &memPublisher{}
	obs := &countingObserver{}
	n := NewNotifier(NotifierOptions{
		Repository: repo,
		Ledger:     ledger,
		Publishers: map[string]ports.EventPublisher{"redis": pub},
		Observers:  []ports.Observer{obs},
	})
	ctx := context.Background()

	ok := &domain.Attempt{ID: "1", SourcePath: "/in/a.mp4", Status: domain.AttemptStatusRunning}
	n.AttemptStarted(ctx, ok)
	ok.Finish(domain.AttemptStatusSucceeded, nil)
	n.AttemptFinished(ctx, ok)

	bad := &domain.Attempt{ID: "2", SourcePath: "/in/b.mp4", Status: domain.AttemptStatusRunning}
	n.AttemptStarted(ctx, bad)
	bad.Finish(domain.AttemptStatusFailed, errors.New("exit status 1"))
	n.AttemptFinished(ctx, bad)

	n.CycleFinished(ctx, domain.CycleStats{Scanned: 2})

	if len(repo.created) != 2 || len(repo.updated) != 2 {
		t.Errorf("repo created=%v updated=%v", repo.created, repo.updated)
	}
	if len(ledger.cleared) != 1 || ledger.cleared[0] != "/in/a.mp4" {
		t.Errorf("cleared = %v", ledger.cleared)
	}
	if len(ledger.recorded) != 1 || ledger.recorded[0] != "/in/b.mp4" {
		t.Errorf("recorded = %v", ledger.recorded)
	}
	if pub.attempts != 2 {
		t.Errorf("published %d attempts, want 2", pub.attempts)
	}
	if obs.started != 2 || obs.finished != 2 || obs.cycles != 1 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestNotifier_FailingPublisherDoesNotStopOthers(t *testing.T) {
	broken := &memPublisher{err: errors.New("connection refused")}
	healthy := &memPublisher{}
	obs := &countingObserver{}
	n := NewNotifier(NotifierOptions{
		Publishers: map[string]ports.EventPublisher{"mqtt": broken, "redis": healthy},
		Observers:  []ports.Observer{obs},
	})

	for i := 0; i < 5; i++ {
		a := &domain.Attempt{ID: "x", Status: domain.AttemptStatusFailed}
		n.AttemptFinished(context.Background(), a)
		if err := n.PublishProgress(context.Background(), nil); err != nil {
			t.Fatalf("PublishProgress() error = %v", err)
		}
	}

	if healthy.attempts != 5 || healthy.progress != 5 {
		t.Errorf("healthy publisher got %d/%d", healthy.attempts, healthy.progress)
	}
	// the breaker opens after three consecutive failures
	if broken.attempts+broken.progress >= 10 {
		t.Errorf("broken publisher called %d times, breaker never opened", broken.attempts+broken.progress)
	}
	if obs.finished != 5 {
		t.Errorf("observer finished = %d", obs.finished)
	}
}
