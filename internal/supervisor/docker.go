package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

const (
	defaultAPITimeout = 10 * time.Second

	// composeServiceLabel is how compose-managed containers advertise the
	// service they belong to.
	composeServiceLabel = "com.docker.compose.service"

	execPollInterval = 200 * time.Millisecond
)

// ErrServiceNotFound is returned when no container carries the requested
// compose service label.
var ErrServiceNotFound = errors.New("service not found")

// ErrResetNotForced guards the destructive reset path.
var ErrResetNotForced = errors.New("reset requires force")

// dockerAPI is the subset of Docker client operations the supervisor uses.
// The interface enables unit testing without a real Docker daemon.
type dockerAPI interface {
	Ping(ctx context.Context) (dockertypes.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]dockertypes.Container, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, config dockertypes.ExecConfig) (dockertypes.IDResponse, error)
	ContainerExecStart(ctx context.Context, execID string, config dockertypes.ExecStartCheck) error
	ContainerExecInspect(ctx context.Context, execID string) (dockertypes.ContainerExecInspect, error)
	Close() error
}

var _ Supervisor = (*DockerSupervisor)(nil)

// DockerSupervisor implements Supervisor against the Docker API, addressing
// containers by their compose service label.
type DockerSupervisor struct {
	logger  zerolog.Logger
	api     dockerAPI
	timeout time.Duration
}

// NewDockerSupervisor initializes a supervisor for the given Docker host.
// An empty host uses the environment defaults.
func NewDockerSupervisor(logger zerolog.Logger, host string, timeout time.Duration) (*DockerSupervisor, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
		client.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	return &DockerSupervisor{
		logger:  logger,
		api:     api,
		timeout: timeout,
	}, nil
}

// Ping validates connectivity to the Docker daemon.
func (s *DockerSupervisor) Ping(ctx context.Context) error {
	if s == nil || s.api == nil {
		return errors.New("docker supervisor is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.api.Ping(ctx)
	return err
}

// Start implements Supervisor.
func (s *DockerSupervisor) Start(ctx context.Context, service string) error {
	id, err := s.findContainer(ctx, service)
	if err != nil {
		return err
	}

	if err := s.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start %s: %w", service, err)
	}
	s.logger.Info().Str("service", service).Str("container", shortID(id)).Msg("service started")
	return nil
}

// Stop implements Supervisor.
func (s *DockerSupervisor) Stop(ctx context.Context, service string) error {
	id, err := s.findContainer(ctx, service)
	if err != nil {
		return err
	}

	if err := s.api.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop %s: %w", service, err)
	}
	s.logger.Info().Str("service", service).Str("container", shortID(id)).Msg("service stopped")
	return nil
}

// ExecIn implements Supervisor. Blocks until the command exits and returns
// its exit code.
func (s *DockerSupervisor) ExecIn(ctx context.Context, service string, cmd []string) (int, error) {
	if len(cmd) == 0 {
		return 0, errors.New("exec command must not be empty")
	}

	id, err := s.findContainer(ctx, service)
	if err != nil {
		return 0, err
	}

	created, err := s.api.ContainerExecCreate(ctx, id, dockertypes.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, fmt.Errorf("exec create in %s: %w", service, err)
	}

	if err := s.api.ContainerExecStart(ctx, created.ID, dockertypes.ExecStartCheck{}); err != nil {
		return 0, fmt.Errorf("exec start in %s: %w", service, err)
	}

	for {
		inspect, err := s.api.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return 0, fmt.Errorf("exec inspect in %s: %w", service, err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}

		timer := time.NewTimer(execPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset implements Supervisor. Without force it refuses rather than
// prompting; automated runs must never block on a confirmation.
func (s *DockerSupervisor) Reset(ctx context.Context, service string, force bool) error {
	if !force {
		return ErrResetNotForced
	}

	id, err := s.findContainer(ctx, service)
	if err != nil {
		return err
	}

	if err := s.api.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop %s: %w", service, err)
	}
	if err := s.api.ContainerRemove(ctx, id, container.RemoveOptions{RemoveVolumes: true}); err != nil {
		return fmt.Errorf("remove %s: %w", service, err)
	}
	s.logger.Warn().Str("service", service).Str("container", shortID(id)).Msg("service reset, volumes removed")
	return nil
}

// Close implements Supervisor.
func (s *DockerSupervisor) Close() error {
	if s == nil || s.api == nil {
		return nil
	}
	return s.api.Close()
}

func (s *DockerSupervisor) findContainer(ctx context.Context, service string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	listFilters := filters.NewArgs(
		filters.Arg("label", fmt.Sprintf("%s=%s", composeServiceLabel, service)),
	)
	containers, err := s.api.ContainerList(ctx, container.ListOptions{All: true, Filters: listFilters})
	if err != nil {
		return "", fmt.Errorf("list containers for %s: %w", service, err)
	}
	if len(containers) == 0 {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	// Multiple replicas share the label; the first match is enough for a
	// single-node bootstrap target.
	return containers[0].ID, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
