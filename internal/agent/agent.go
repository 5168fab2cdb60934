package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
	"picpic.transcode/internal/core/ports"
	"picpic.transcode/internal/core/tracing"
)

// Agent is the scan-and-dispatch loop. Each cycle lists the input
// directory, runs transcodes in batches of at most Concurrency, waits for
// every batch, then sleeps PollInterval.
type Agent struct {
	inputDir     string
	outputDir    string
	extensions   map[string]bool
	concurrency  int
	pollInterval time.Duration

	transcoder *Transcoder
	observer   ports.Observer
	out        io.Writer

	mu       sync.Mutex
	inFlight int
	peak     int
}

type Options struct {
	InputDir     string
	OutputDir    string
	Extensions   map[string]bool
	Concurrency  int
	PollInterval time.Duration
	Observer     ports.Observer
	Out          io.Writer
}

func New(t *Transcoder, opts Options) *Agent {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Agent{
		inputDir:     opts.InputDir,
		outputDir:    opts.OutputDir,
		extensions:   opts.Extensions,
		concurrency:  opts.Concurrency,
		pollInterval: opts.PollInterval,
		transcoder:   t,
		observer:     opts.Observer,
		out:          opts.Out,
	}
}

// Run repeats cycles until ctx is cancelled. A cancelled context stops new
// dispatches; transcodes already running are waited for. It only returns an
// error when the input directory cannot be read.
func (a *Agent) Run(ctx context.Context) error {
	logger.Info("Agent started",
		"input", a.inputDir,
		"output", a.outputDir,
		"concurrency", a.concurrency,
		"interval", a.pollInterval,
	)

	for {
		stats, err := a.RunCycle(ctx)
		if err != nil {
			return err
		}
		logger.Info("Cycle finished",
			"scanned", stats.Scanned,
			"dispatched", stats.Dispatched,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"batches", stats.Batches,
			"elapsed", stats.Elapsed,
		)

		select {
		case <-ctx.Done():
			logger.Info("Agent stopped")
			return nil
		case <-time.After(a.pollInterval):
		}
	}
}

// RunCycle performs one scan and dispatches every eligible file, batch by
// batch. It returns once all dispatched transcodes have finished.
func (a *Agent) RunCycle(ctx context.Context) (domain.CycleStats, error) {
	start := time.Now()
	var stats domain.CycleStats

	ctx, span := tracing.StartSpan(ctx, "scheduler.cycle")
	defer span.End()

	items, err := Scan(a.inputDir, a.outputDir, a.extensions)
	if err != nil {
		return stats, fmt.Errorf("read input directory %s: %w", a.inputDir, err)
	}
	stats.Scanned = len(items)

	var mu sync.Mutex
	batch := new(errgroup.Group)
	size := 0

	for _, item := range items {
		if ctx.Err() != nil {
			logger.Info("Stopping dispatch", "remaining", stats.Scanned-stats.Dispatched)
			break
		}
		if size == a.concurrency {
			batch.Wait()
			batch = new(errgroup.Group)
			size = 0
		}
		if size == 0 {
			stats.Batches++
		}

		size++
		stats.Dispatched++
		batch.Go(func() error {
			a.enter()
			defer a.leave()

			attempt := a.transcoder.Transcode(ctx, item)

			mu.Lock()
			if attempt.Succeeded() {
				stats.Succeeded++
			} else {
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	batch.Wait()

	stats.Elapsed = time.Since(start)
	if stats.Dispatched > 0 {
		fmt.Fprintf(a.out, "Cycle done: %d dispatched, %d succeeded, %d failed\n", stats.Dispatched, stats.Succeeded, stats.Failed)
	}
	if a.observer != nil {
		a.observer.CycleFinished(ctx, stats)
	}
	return stats, nil
}

func (a *Agent) enter() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight++
	if a.inFlight > a.peak {
		a.peak = a.inFlight
	}
}

func (a *Agent) leave() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight--
}

// InFlight returns the number of transcodes currently running.
func (a *Agent) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// PeakInFlight returns the highest InFlight value observed so far.
func (a *Agent) PeakInFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peak
}
