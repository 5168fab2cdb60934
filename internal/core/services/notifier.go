package services

import (
	"context"
	"time"

	"picpic.transcode/internal/core/circuitbreaker"
	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
	"picpic.transcode/internal/core/ports"
)

const sinkTimeout = 5 * time.Second

// Notifier fans task lifecycle events out to the optional history store,
// failure ledger, event publishers and in-process observers. Every external
// call goes through its own circuit breaker and errors are only logged: a
// broken sink never changes a transcode outcome.
type Notifier struct {
	repo       ports.AttemptRepository
	ledger     ports.FailureLedger
	publishers []namedPublisher
	observers  []ports.Observer

	breakers map[string]*circuitbreaker.CircuitBreaker
}

type NotifierOptions struct {
	Repository ports.AttemptRepository
	Ledger     ports.FailureLedger
	Publishers map[string]ports.EventPublisher
	Observers  []ports.Observer
}

func NewNotifier(opts NotifierOptions) *Notifier {
	n := &Notifier{
		repo:      opts.Repository,
		ledger:    opts.Ledger,
		observers: opts.Observers,
		breakers:  make(map[string]*circuitbreaker.CircuitBreaker),
	}
	if n.repo != nil {
		n.breakers["repository"] = circuitbreaker.New("repository")
	}
	if n.ledger != nil {
		n.breakers["ledger"] = circuitbreaker.New("ledger")
	}
	for name, p := range opts.Publishers {
		n.publishers = append(n.publishers, namedPublisher{name: name, EventPublisher: p})
		n.breakers[name] = circuitbreaker.New(name)
	}
	return n
}

type namedPublisher struct {
	name string
	ports.EventPublisher
}

func (n *Notifier) call(ctx context.Context, sink string, fn func(ctx context.Context) error) {
	cb, ok := n.breakers[sink]
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := cb.Execute(ctx, fn); err != nil {
		logger.WarnContext(ctx, "Sink call failed", "sink", sink, "error", err)
	}
}

func (n *Notifier) AttemptStarted(ctx context.Context, attempt *domain.Attempt) {
	if n.repo != nil {
		n.call(ctx, "repository", func(ctx context.Context) error {
			return n.repo.Create(ctx, attempt)
		})
	}
	for _, o := range n.observers {
		o.AttemptStarted(ctx, attempt)
	}
}

func (n *Notifier) AttemptFinished(ctx context.Context, attempt *domain.Attempt) {
	if n.repo != nil {
		n.call(ctx, "repository", func(ctx context.Context) error {
			return n.repo.Update(ctx, attempt)
		})
	}
	if n.ledger != nil {
		n.call(ctx, "ledger", func(ctx context.Context) error {
			if attempt.Succeeded() {
				return n.ledger.Clear(ctx, attempt.SourcePath)
			}
			return n.ledger.RecordFailure(ctx, attempt)
		})
	}
	for _, p := range n.publishers {
		n.call(ctx, p.name, func(ctx context.Context) error {
			return p.PublishAttempt(ctx, attempt)
		})
	}
	for _, o := range n.observers {
		o.AttemptFinished(ctx, attempt)
	}
}

func (n *Notifier) CycleFinished(ctx context.Context, stats domain.CycleStats) {
	for _, o := range n.observers {
		o.CycleFinished(ctx, stats)
	}
}

// PublishProgress forwards a reporter snapshot to every publisher.
func (n *Notifier) PublishProgress(ctx context.Context, entries []domain.ProgressEntry) error {
	for _, p := range n.publishers {
		n.call(ctx, p.name, func(ctx context.Context) error {
			return p.PublishProgress(ctx, entries)
		})
	}
	return nil
}
