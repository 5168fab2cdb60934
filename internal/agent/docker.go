package agent

import (
	"context"
	"fmt"
	"io"
	"iter"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
)

// Mount binds a host directory into the encoder container.
type Mount struct {
	Host      string
	Container string
}

// DockerExecutor runs the encoder inside a container instead of on the host.
// Host paths in argv under a mount are rewritten to their container path.
type DockerExecutor struct {
	cli      *client.Client
	image    string
	mounts   []Mount
	cpuLimit int

	pullOnce sync.Once
}

func NewDockerExecutor(imageName string, cpuLimit int, mounts ...Mount) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerExecutor{cli: cli, image: imageName, mounts: mounts, cpuLimit: cpuLimit}, nil
}

// Ping checks that the daemon answers.
func (d *DockerExecutor) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *DockerExecutor) pull(ctx context.Context) {
	d.pullOnce.Do(func() {
		reader, err := d.cli.ImagePull(ctx, d.image, image.PullOptions{})
		if err != nil {
			logger.Warn("Failed to pull encoder image, using local copy", "image", d.image, "error", err)
			return
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	})
}

func (d *DockerExecutor) Start(ctx context.Context, argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}
	d.pull(ctx)

	mapped := make([]string, len(argv))
	for i, arg := range argv {
		mapped[i] = d.containerPath(arg)
	}

	binds := make([]string, 0, len(d.mounts))
	for _, m := range d.mounts {
		binds = append(binds, fmt.Sprintf("%s:%s", m.Host, m.Container))
	}

	hostCfg := &container.HostConfig{Binds: binds}
	if d.cpuLimit > 0 {
		// cpulimit's percentage is of one core.
		hostCfg.Resources.NanoCPUs = int64(d.cpuLimit) * 10_000_000
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:      d.image,
		Entrypoint: []string{"/bin/sh", "-c", JoinArgs("linux", mapped)},
		Cmd:        nil,
		Tty:        true, // one merged stream, no multiplex headers
	}, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: create container: %v", ErrSpawn, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.cleanup(resp.ID)
		return nil, fmt.Errorf("%w: start container: %v", ErrSpawn, err)
	}

	out, err := d.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		logger.Warn("Failed to attach to encoder logs", "container", resp.ID, "error", err)
		out = io.NopCloser(strings.NewReader(""))
	}

	return &dockerProcess{d: d, ctx: context.WithoutCancel(ctx), id: resp.ID, out: out}, nil
}

func (d *DockerExecutor) containerPath(arg string) string {
	norm := domain.NormalizePath(arg)
	// Relative file arguments are resolved against the working directory.
	if strings.Contains(norm, "/") && !strings.HasPrefix(norm, "/") && !filepath.IsAbs(arg) {
		if abs, err := filepath.Abs(arg); err == nil {
			norm = domain.NormalizePath(abs)
		}
	}
	for _, m := range d.mounts {
		host := strings.TrimSuffix(domain.NormalizePath(m.Host), "/")
		if norm == host {
			return m.Container
		}
		if strings.HasPrefix(norm, host+"/") {
			return path.Join(m.Container, strings.TrimPrefix(norm, host+"/"))
		}
	}
	return arg
}

func (d *DockerExecutor) cleanup(containerID string) {
	d.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
}

type dockerProcess struct {
	d   *DockerExecutor
	ctx context.Context
	id  string
	out io.ReadCloser

	once sync.Once
	err  error
}

func (p *dockerProcess) Lines() iter.Seq[string] {
	return scanLines(p.out)
}

func (p *dockerProcess) Wait() error {
	p.once.Do(func() {
		defer p.d.cleanup(p.id)
		defer p.out.Close()

		statusCh, errCh := p.d.cli.ContainerWait(p.ctx, p.id, container.WaitConditionNotRunning)
		select {
		case err := <-errCh:
			if err != nil {
				p.err = fmt.Errorf("error waiting for container: %w", err)
			}
		case status := <-statusCh:
			if status.StatusCode != 0 {
				p.err = &ExitError{Code: int(status.StatusCode)}
			}
		}
	})
	return p.err
}
