package agent

import (
	"context"
	"iter"
	"path"
	"sync"
	"time"

	"picpic.transcode/internal/core/domain"
)

type fakeScript struct {
	lines    []string
	err      error
	startErr error
	hold     time.Duration
}

// fakeExecutor plays back a script per source label and records how many
// processes overlap.
type fakeExecutor struct {
	mu      sync.Mutex
	scripts map[string]fakeScript
	running int
	peak    int
	started []string
	startAt map[string]time.Time
	endAt   map[string]time.Time
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		scripts: make(map[string]fakeScript),
		startAt: make(map[string]time.Time),
		endAt:   make(map[string]time.Time),
	}
}

func (f *fakeExecutor) script(label string, s fakeScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[label] = s
}

func (f *fakeExecutor) Start(_ context.Context, argv []string) (Process, error) {
	var src string
	for i := 0; i < len(argv)-1; i++ {
		if argv[i] == "-i" {
			src = argv[i+1]
		}
	}
	label := path.Base(domain.NormalizePath(src))

	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.scripts[label]
	f.started = append(f.started, label)
	if s.startErr != nil {
		return nil, s.startErr
	}
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.startAt[label] = time.Now()
	return &fakeProcess{f: f, label: label, s: s}, nil
}

func (f *fakeExecutor) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakeExecutor) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type fakeProcess struct {
	f     *fakeExecutor
	label string
	s     fakeScript
}

func (p *fakeProcess) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, l := range p.s.lines {
			if !yield(l) {
				return
			}
		}
	}
}

func (p *fakeProcess) Wait() error {
	time.Sleep(p.s.hold)
	p.f.mu.Lock()
	p.f.running--
	p.f.endAt[p.label] = time.Now()
	p.f.mu.Unlock()
	return p.s.err
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished []*domain.Attempt
	cycles   []domain.CycleStats
	onCycle  func()
}

func (o *recordingObserver) AttemptStarted(context.Context, *domain.Attempt) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *recordingObserver) AttemptFinished(_ context.Context, a *domain.Attempt) {
	o.mu.Lock()
	o.finished = append(o.finished, a)
	o.mu.Unlock()
}

func (o *recordingObserver) CycleFinished(_ context.Context, s domain.CycleStats) {
	o.mu.Lock()
	o.cycles = append(o.cycles, s)
	fn := o.onCycle
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}
