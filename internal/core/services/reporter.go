package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
	"picpic.transcode/internal/core/ports"
	"picpic.transcode/internal/core/progress"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	percentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Reporter periodically renders the registry as one status line and
// forwards each snapshot to the configured sinks. It never writes to the
// registry.
type Reporter struct {
	registry *progress.Registry
	out      io.Writer
	interval time.Duration
	sinks    []ports.ProgressSink
	refresh  bool

	// mu serialises writes to out; pending is set while a refreshed
	// progress line sits on the terminal without a trailing newline.
	mu      sync.Mutex
	pending bool
}

func NewReporter(registry *progress.Registry, out io.Writer, interval time.Duration, sinks ...ports.ProgressSink) *Reporter {
	return &Reporter{
		registry: registry,
		out:      out,
		interval: interval,
		sinks:    sinks,
		refresh:  IsTerminal(out),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.pending {
				fmt.Fprintln(r.out)
				r.pending = false
			}
			r.mu.Unlock()
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick renders one snapshot. Nothing is printed while the registry is empty.
func (r *Reporter) Tick(ctx context.Context) {
	snap := r.registry.Snapshot()
	if len(snap) == 0 {
		return
	}

	line := Render(snap)
	r.mu.Lock()
	if r.refresh {
		fmt.Fprintf(r.out, "\r%s\033[K", line)
		r.pending = true
	} else {
		fmt.Fprintln(r.out, line)
	}
	r.mu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.PublishProgress(ctx, snap); err != nil {
			logger.DebugContext(ctx, "Progress sink rejected snapshot", "error", err)
		}
	}
}

// StatusWriter returns a writer for status lines that share the reporter's
// output. A progress line still on screen is cleared before each write.
func (r *Reporter) StatusWriter() io.Writer {
	return statusWriter{r: r}
}

type statusWriter struct {
	r *Reporter
}

func (w statusWriter) Write(p []byte) (int, error) {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()
	if w.r.pending {
		if _, err := io.WriteString(w.r.out, "\r\033[K"); err != nil {
			return 0, err
		}
		w.r.pending = false
	}
	return w.r.out.Write(p)
}

// Render formats entries as "[ label | pct% ]" blocks, labels padded to the
// longest one.
func Render(entries []domain.ProgressEntry) string {
	width := 0
	for _, e := range entries {
		if len(e.Label) > width {
			width = len(e.Label)
		}
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		label := labelStyle.Render(fmt.Sprintf("%-*s", width, e.Label))
		pct := percentStyle.Render(fmt.Sprintf("%3d%%", e.Percent()))
		parts = append(parts, fmt.Sprintf("[ %s | %s ]", label, pct))
	}
	return strings.Join(parts, "  ")
}
