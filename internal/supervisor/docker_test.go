package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/rs/zerolog"
)

type fakeDockerAPI struct {
	containers  []dockertypes.Container
	listErr     error
	started     []string
	stopped     []string
	removed     []string
	removeOpts  []container.RemoveOptions
	execCreated []dockertypes.ExecConfig
	execRunning int
	execExit    int
}

func (f *fakeDockerAPI) Ping(context.Context) (dockertypes.Ping, error) {
	return dockertypes.Ping{}, nil
}

func (f *fakeDockerAPI) ContainerList(_ context.Context, options container.ListOptions) ([]dockertypes.Container, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	values := options.Filters.Get("label")
	if len(values) == 0 {
		return f.containers, nil
	}
	var matched []dockertypes.Container
	for _, c := range f.containers {
		for key, value := range c.Labels {
			if key+"="+value == values[0] {
				matched = append(matched, c)
			}
		}
	}
	return matched, nil
}

func (f *fakeDockerAPI) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeDockerAPI) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeDockerAPI) ContainerRemove(_ context.Context, id string, options container.RemoveOptions) error {
	f.removed = append(f.removed, id)
	f.removeOpts = append(f.removeOpts, options)
	return nil
}

func (f *fakeDockerAPI) ContainerExecCreate(_ context.Context, _ string, config dockertypes.ExecConfig) (dockertypes.IDResponse, error) {
	f.execCreated = append(f.execCreated, config)
	return dockertypes.IDResponse{ID: "exec-1"}, nil
}

func (f *fakeDockerAPI) ContainerExecStart(context.Context, string, dockertypes.ExecStartCheck) error {
	return nil
}

func (f *fakeDockerAPI) ContainerExecInspect(context.Context, string) (dockertypes.ContainerExecInspect, error) {
	if f.execRunning > 0 {
		f.execRunning--
		return dockertypes.ContainerExecInspect{Running: true}, nil
	}
	return dockertypes.ContainerExecInspect{Running: false, ExitCode: f.execExit}, nil
}

func (f *fakeDockerAPI) Close() error { return nil }

func appContainer() dockertypes.Container {
	return dockertypes.Container{
		ID:     "abcdef123456789",
		Labels: map[string]string{composeServiceLabel: "app"},
	}
}

func newTestSupervisor(api dockerAPI) *DockerSupervisor {
	return &DockerSupervisor{logger: zerolog.Nop(), api: api, timeout: time.Second}
}

func TestStart_FindsContainerByComposeLabel(t *testing.T) {
	api := &fakeDockerAPI{containers: []dockertypes.Container{appContainer()}}
	s := newTestSupervisor(api)

	if err := s.Start(context.Background(), "app"); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if len(api.started) != 1 || api.started[0] != "abcdef123456789" {
		t.Fatalf("started = %v", api.started)
	}
}

func TestStart_UnknownServiceFails(t *testing.T) {
	api := &fakeDockerAPI{containers: []dockertypes.Container{appContainer()}}
	s := newTestSupervisor(api)

	err := s.Start(context.Background(), "ghost")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestExecIn_ReturnsExitCode(t *testing.T) {
	api := &fakeDockerAPI{
		containers:  []dockertypes.Container{appContainer()},
		execRunning: 2,
		execExit:    3,
	}
	s := newTestSupervisor(api)

	code, err := s.ExecIn(context.Background(), "app", []string{"psql", "-c", "SELECT 1"})
	if err != nil {
		t.Fatalf("ExecIn error: %v", err)
	}
	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if len(api.execCreated) != 1 || api.execCreated[0].Cmd[0] != "psql" {
		t.Fatalf("exec config = %+v", api.execCreated)
	}
}

func TestExecIn_EmptyCommandRejected(t *testing.T) {
	s := newTestSupervisor(&fakeDockerAPI{containers: []dockertypes.Container{appContainer()}})
	if _, err := s.ExecIn(context.Background(), "app", nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestReset_RequiresForce(t *testing.T) {
	api := &fakeDockerAPI{containers: []dockertypes.Container{appContainer()}}
	s := newTestSupervisor(api)

	err := s.Reset(context.Background(), "app", false)
	if !errors.Is(err, ErrResetNotForced) {
		t.Fatalf("expected ErrResetNotForced, got %v", err)
	}
	if len(api.stopped) != 0 || len(api.removed) != 0 {
		t.Fatalf("unforced reset touched containers: stopped=%v removed=%v", api.stopped, api.removed)
	}
}

func TestReset_ForcedStopsAndRemovesVolumes(t *testing.T) {
	api := &fakeDockerAPI{containers: []dockertypes.Container{appContainer()}}
	s := newTestSupervisor(api)

	if err := s.Reset(context.Background(), "app", true); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if len(api.stopped) != 1 || len(api.removed) != 1 {
		t.Fatalf("stopped=%v removed=%v", api.stopped, api.removed)
	}
	if !api.removeOpts[0].RemoveVolumes {
		t.Fatalf("expected volumes to be removed on forced reset")
	}
}

func TestPing_UninitializedSupervisor(t *testing.T) {
	var s *DockerSupervisor
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error for uninitialized supervisor")
	}
}
