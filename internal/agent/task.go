package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"picpic.transcode/internal/config"
	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
	"picpic.transcode/internal/core/ports"
	"picpic.transcode/internal/core/progress"
	"picpic.transcode/internal/core/tracing"
)

// Transcoder runs one WorkItem through the encoder and feeds its progress
// into the shared registry.
type Transcoder struct {
	executor Executor
	registry *progress.Registry
	profile  config.Profile
	observer ports.Observer
	out      io.Writer
}

// NewTranscoder wires a task runner. observer may be nil; status lines are
// written to out.
func NewTranscoder(executor Executor, registry *progress.Registry, profile config.Profile, observer ports.Observer, out io.Writer) *Transcoder {
	if out == nil {
		out = io.Discard
	}
	return &Transcoder{
		executor: executor,
		registry: registry,
		profile:  profile,
		observer: observer,
		out:      out,
	}
}

// EncoderArgs builds the encoder command line for item.
func EncoderArgs(p config.Profile, item domain.WorkItem) []string {
	args := []string{
		p.Binary,
		"-y",
		"-i", domain.NormalizePath(item.SourcePath),
		"-loglevel", p.LogLevel,
		"-vcodec", p.Codec,
		"-crf", strconv.Itoa(p.CRF),
	}
	if p.Tune != "" {
		args = append(args, "-tune", p.Tune)
	}
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	return append(args, item.DestinationPath)
}

// Transcode runs item to completion and returns the finished attempt. The
// source file is deleted only when the encoder exits successfully; on any
// failure it is left in place for the next cycle.
func (t *Transcoder) Transcode(ctx context.Context, item domain.WorkItem) *domain.Attempt {
	label := item.Label()
	attempt := &domain.Attempt{
		ID:              uuid.New().String(),
		Label:           label,
		SourcePath:      item.SourcePath,
		DestinationPath: item.DestinationPath,
		Status:          domain.AttemptStatusRunning,
		StartedAt:       time.Now(),
	}

	// Dispatched tasks are never cancelled.
	ctx = logger.WithJob(context.WithoutCancel(ctx), label)
	ctx, span := tracing.StartAttempt(ctx, attempt)
	defer tracing.EndAttempt(span, attempt)

	fmt.Fprintf(t.out, "Compressing '%s' into '%s'\n", domain.NormalizePath(item.SourcePath), item.DestinationPath)
	logger.InfoContext(ctx, "Transcode started", "attempt", attempt.ID, "source", item.SourcePath, "destination", item.DestinationPath)
	if t.observer != nil {
		t.observer.AttemptStarted(ctx, attempt)
	}

	err := t.run(ctx, label, item)
	t.finish(ctx, attempt, err)

	if t.observer != nil {
		t.observer.AttemptFinished(ctx, attempt)
	}
	return attempt
}

func (t *Transcoder) run(ctx context.Context, label string, item domain.WorkItem) error {
	proc, err := t.executor.Start(ctx, EncoderArgs(t.profile, item))
	if err != nil {
		return err
	}

	durationSeen := false
	for line := range proc.Lines() {
		m := ParseLine(line)
		switch m.Kind {
		case MarkerDuration:
			if t.registry.UpsertTotal(label, m.Seconds) {
				logger.DebugContext(ctx, "Duration detected", "seconds", m.Seconds)
			}
			durationSeen = true
		case MarkerPosition:
			// Progress against an unknown total is meaningless.
			if durationSeen {
				t.registry.Advance(label, m.Seconds)
			}
		}
	}

	return proc.Wait()
}

func (t *Transcoder) finish(ctx context.Context, attempt *domain.Attempt, err error) {
	src := domain.NormalizePath(attempt.SourcePath)

	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			attempt.ExitCode = exitErr.Code
		} else {
			attempt.ExitCode = -1
		}
		attempt.Finish(domain.AttemptStatusFailed, err)
		fmt.Fprintf(t.out, "Failed to compress file '%s' !\n", src)
		logger.ErrorContext(ctx, "Transcode failed", "attempt", attempt.ID, "error", err, "duration_ms", attempt.DurationMs)
		return
	}

	attempt.Finish(domain.AttemptStatusSucceeded, nil)
	fmt.Fprintf(t.out, "Compressed '%s' successfully ! Deleting original file...\n", src)

	if rmErr := os.Remove(attempt.SourcePath); rmErr != nil {
		logger.WarnContext(ctx, "Encoded but could not delete source", "attempt", attempt.ID, "error", rmErr)
	} else {
		attempt.SourceDeleted = true
	}
	logger.InfoContext(ctx, "Transcode succeeded", "attempt", attempt.ID, "duration_ms", attempt.DurationMs, "source_deleted", attempt.SourceDeleted)
}
