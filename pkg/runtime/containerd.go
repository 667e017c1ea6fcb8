package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/aegisai/aegis/pkg/config"
)

const (
	// DefaultNamespace is the containerd namespace for Aegis sandboxes
	DefaultNamespace = "aegis"

	// WorkspaceMount is where the mission workspace appears inside the
	// sandbox.
	WorkspaceMount = "/workspace"
)

// Runtime creates and manages task sandboxes via containerd
type Runtime struct {
	client    *containerd.Client
	namespace string
	image     string
}

// NewRuntime connects to containerd and pulls the sandbox image.
func NewRuntime(ctx context.Context, cfg config.ContainerConfig) (*Runtime, error) {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = "/run/containerd/containerd.sock"
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	r := &Runtime{
		client:    client,
		namespace: DefaultNamespace,
		image:     cfg.Image,
	}

	if err := r.ensureImage(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the containerd client connection
func (r *Runtime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Runtime) ensureImage(ctx context.Context) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if _, err := r.client.GetImage(ctx, r.image); err == nil {
		return nil
	}
	if _, err := r.client.Pull(ctx, r.image, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("failed to pull sandbox image %s: %w", r.image, err)
	}
	return nil
}

// Sandbox is one running task container with its captured output stream
type Sandbox struct {
	ID        string
	container containerd.Container
	task      containerd.Task
	exitCh    <-chan containerd.ExitStatus
	output    *os.File
}

// Output returns the sandbox's combined stdout/stderr stream.
func (s *Sandbox) Output() io.Reader {
	return s.output
}

// Wait blocks until the sandbox process exits and returns its exit code.
func (s *Sandbox) Wait(ctx context.Context) (uint32, error) {
	select {
	case status := <-s.exitCh:
		code, _, err := status.Result()
		return code, err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Start creates and starts a sandbox with the mission workspace
// bind-mounted read-write at /workspace and the given environment.
func (r *Runtime) Start(ctx context.Context, id, workspacePath string, env []string) (*Sandbox, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.GetImage(ctx, r.image)
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", r.image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
		oci.WithProcessCwd(WorkspaceMount),
		oci.WithMounts([]specs.Mount{
			{
				Source:      workspacePath,
				Destination: WorkspaceMount,
				Type:        "bind",
				Options:     []string{"rw", "rbind"},
			},
		}),
	}

	container, err := r.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	// Capture combined stdout/stderr through a pipe so the slot can
	// parse progress markers from the stream.
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, pw, pw)))
	if err != nil {
		pr.Close()
		pw.Close()
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("failed to create sandbox task: %w", err)
	}

	exitCh, err := task.Wait(ctx)
	if err != nil {
		pr.Close()
		pw.Close()
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("failed to wait on sandbox task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		pr.Close()
		pw.Close()
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
		_ = container.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("failed to start sandbox: %w", err)
	}

	// The write end belongs to the task now; close our copy so the read
	// end sees EOF when the task exits.
	pw.Close()

	return &Sandbox{
		ID:        id,
		container: container,
		task:      task,
		exitCh:    exitCh,
		output:    pr,
	}, nil
}

// Stop tears a sandbox down: SIGTERM with a grace period, SIGKILL on
// timeout, then task and container removal with snapshot cleanup.
func (r *Runtime) Stop(ctx context.Context, s *Sandbox, grace time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if s.task != nil {
		if err := s.task.Kill(ctx, syscall.SIGTERM); err == nil {
			stopCtx, cancel := context.WithTimeout(ctx, grace)
			select {
			case <-s.exitCh:
			case <-stopCtx.Done():
				_ = s.task.Kill(ctx, syscall.SIGKILL)
			}
			cancel()
		}
		if _, err := s.task.Delete(ctx, containerd.WithProcessKill); err != nil {
			return fmt.Errorf("failed to delete sandbox task: %w", err)
		}
	}

	if s.output != nil {
		s.output.Close()
	}

	if s.container != nil {
		if err := s.container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
			return fmt.Errorf("failed to delete sandbox: %w", err)
		}
	}
	return nil
}

// Running reports whether the sandbox process is in the Running state.
func (r *Runtime) Running(ctx context.Context, s *Sandbox) bool {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	if s.task == nil {
		return false
	}
	status, err := s.task.Status(ctx)
	if err != nil {
		return false
	}
	return status.Status == containerd.Running
}
