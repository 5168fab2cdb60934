package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
)

var ErrSpawn = errors.New("failed to start encoder")

// ExitError reports a subprocess that ran but did not succeed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("encoder exited with code %d", e.Code)
}

// Executor starts one encoder process per call.
type Executor interface {
	Start(ctx context.Context, argv []string) (Process, error)
}

// Process is a running encoder. Lines yields its merged stdout and stderr
// until the output closes; Wait blocks until it exits and returns nil only
// on success.
type Process interface {
	Lines() iter.Seq[string]
	Wait() error
}

// ShellExecutor runs the encoder through the platform shell, prefixed with
// cpulimit outside Windows when CPULimit > 0.
type ShellExecutor struct {
	GOOS     string
	CPULimit int
}

func NewShellExecutor(cpuLimit int) *ShellExecutor {
	return &ShellExecutor{GOOS: runtime.GOOS, CPULimit: cpuLimit}
}

// Start spawns the shell. ctx is not attached to the process: a started
// encode always runs to completion.
func (e *ShellExecutor) Start(_ context.Context, argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}

	shell := ShellCommand(e.GOOS, e.CPULimit, argv)
	cmd := exec.Command(shell[0], shell[1:]...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	w.Close()

	return &shellProcess{cmd: cmd, out: r}, nil
}

type shellProcess struct {
	cmd  *exec.Cmd
	out  *os.File
	once sync.Once
	err  error
}

func (p *shellProcess) Lines() iter.Seq[string] {
	return scanLines(p.out)
}

func (p *shellProcess) Wait() error {
	p.once.Do(func() {
		// Drain whatever the caller did not read so the child never blocks
		// on a full pipe.
		io.Copy(io.Discard, p.out)
		p.out.Close()

		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			p.err = &ExitError{Code: exitErr.ExitCode()}
		default:
			p.err = err
		}
	})
	return p.err
}

// scanLines yields non-empty lines, splitting on both '\n' and '\r' so the
// encoder's in-place status updates arrive one by one.
func scanLines(r io.Reader) iter.Seq[string] {
	return func(yield func(string) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitLines)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ShellCommand wraps argv for the platform shell: "cmd /C <line>" on
// Windows, otherwise "sh -c <line>" with an optional cpulimit prefix.
func ShellCommand(goos string, cpuLimit int, argv []string) []string {
	line := JoinArgs(goos, argv)
	if goos == "windows" {
		return []string{"cmd", "/C", line}
	}
	if cpuLimit > 0 {
		line = fmt.Sprintf("cpulimit -l %d -- %s", cpuLimit, line)
	}
	return []string{"sh", "-c", line}
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// JoinArgs quotes each argument for the target shell and joins them.
func JoinArgs(goos string, argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		if goos == "windows" {
			quoted[i] = quoteWindows(arg)
		} else {
			quoted[i] = quotePOSIX(arg)
		}
	}
	return strings.Join(quoted, " ")
}

func quotePOSIX(s string) string {
	if s != "" && shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func quoteWindows(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"&|<>^") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
