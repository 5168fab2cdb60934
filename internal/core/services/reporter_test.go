package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/progress"
)

type captureSink struct {
	snaps [][]domain.ProgressEntry
	err   error
}

func (c *captureSink) PublishProgress(_ context.Context, entries []domain.ProgressEntry) error {
	c.snaps = append(c.snaps, entries)
	return c.err
}

func TestRender(t *testing.T) {
	out := Render([]domain.ProgressEntry{
		{Label: "short.mp4", TotalSeconds: 90, CurrentSeconds: 45},
		{Label: "a-much-longer.mp4", TotalSeconds: 0, CurrentSeconds: 0},
		{Label: "over.mp4", TotalSeconds: 10, CurrentSeconds: 12},
	})

	for _, want := range []string{"short.mp4", " 50%", "a-much-longer.mp4", "  0%", "100%"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() = %q, missing %q", out, want)
		}
	}
	if strings.Count(out, "[ ") != 3 {
		t.Errorf("expected three blocks: %q", out)
	}
}

func TestReporter_TickWritesLineAndPublishes(t *testing.T) {
	reg := progress.NewRegistry()
	reg.UpsertTotal("a.mp4", 90)
	reg.Advance("a.mp4", 45)

	var buf bytes.Buffer
	ok := &captureSink{}
	failing := &captureSink{err: errors.New("broker down")}
	r := NewReporter(reg, &buf, time.Second, failing, ok)

	r.Tick(context.Background())

	if !strings.Contains(buf.String(), "a.mp4") || !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("output = %q", buf.String())
	}
	if len(ok.snaps) != 1 || ok.snaps[0][0].CurrentSeconds != 45 {
		t.Errorf("sink got %+v", ok.snaps)
	}
	if len(failing.snaps) != 1 {
		t.Error("failing sink was not called")
	}

	e, _ := reg.Get("a.mp4")
	if e.CurrentSeconds != 45 || e.TotalSeconds != 90 {
		t.Errorf("registry mutated: %+v", e)
	}
}

func TestReporter_EmptyRegistryPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	sink := &captureSink{}
	NewReporter(progress.NewRegistry(), &buf, time.Second, sink).Tick(context.Background())

	if buf.Len() != 0 || len(sink.snaps) != 0 {
		t.Errorf("unexpected output %q / %d snapshots", buf.String(), len(sink.snaps))
	}
}

func TestReporter_RunStopsOnCancel(t *testing.T) {
	reg := progress.NewRegistry()
	reg.UpsertTotal("a.mp4", 10)

	var buf bytes.Buffer
	r := NewReporter(reg, &buf, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if !strings.Contains(buf.String(), "a.mp4") {
		t.Errorf("no ticks rendered: %q", buf.String())
	}
}

func TestReporter_StatusWriterClearsProgressLine(t *testing.T) {
	reg := progress.NewRegistry()
	reg.UpsertTotal("a.mp4", 90)
	reg.Advance("a.mp4", 45)

	var buf bytes.Buffer
	r := NewReporter(reg, &buf, time.Second)
	r.refresh = true

	r.Tick(context.Background())
	fmt.Fprintf(r.StatusWriter(), "Compressed '%s' successfully !\n", "a.mp4")
	fmt.Fprintln(r.StatusWriter(), "Cycle done: 1 dispatched, 1 succeeded, 0 failed")

	out := buf.String()
	if !strings.Contains(out, "\033[K\r\033[KCompressed 'a.mp4'") {
		t.Errorf("status line not separated from progress line: %q", out)
	}
	if strings.Count(out, "\r\033[K") != 1 {
		t.Errorf("line cleared more than once: %q", out)
	}
	if !strings.HasSuffix(out, "0 failed\n") {
		t.Errorf("output = %q", out)
	}
}

func TestReporter_StatusWriterPassesThroughWithoutTerminal(t *testing.T) {
	reg := progress.NewRegistry()
	reg.UpsertTotal("a.mp4", 10)

	var buf bytes.Buffer
	r := NewReporter(reg, &buf, time.Second)
	r.Tick(context.Background())
	fmt.Fprintln(r.StatusWriter(), "Compressing 'a.mp4'")

	if strings.Contains(buf.String(), "\033[K") {
		t.Errorf("escape codes written to a non-terminal: %q", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "]\nCompressing 'a.mp4'\n") {
		t.Errorf("output = %q", buf.String())
	}
}
