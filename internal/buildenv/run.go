package buildenv

import (
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/cpuguy83/go-docker/container"
	ocispecs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// RunSpec describes one single-shot container run. Binds use the docker
// "host:container[:opts]" form; host paths must be absolute.
type RunSpec struct {
	Image      string
	Cmd        []string
	Env        []string
	WorkingDir string
	Binds      []string
	Platform   *ocispecs.Platform
}

// createConfig fills the engine create request from the RunSpec.
func (spec RunSpec) createConfig(cfg *container.CreateConfig) {
	cfg.Spec.Cmd = spec.Cmd
	cfg.Spec.Env = spec.Env
	cfg.Spec.WorkingDir = spec.WorkingDir
	cfg.Spec.HostConfig.Binds = spec.Binds
	if spec.Platform != nil {
		cfg.Platform = FormatPlatform(spec.Platform)
	}
}

// Run creates, starts and waits on a container through the engine API,
// returning an error when the container exits non-zero. The container is
// force-removed on the way out. Output is not streamed; use RunAttached for
// steps whose output the user should see live.
func (e *Env) Run(ctx context.Context, spec RunSpec) error {
	containers := e.client.ContainerService()

	ctr, err := containers.Create(ctx, spec.Image, spec.createConfig)
	if err != nil {
		return errors.Wrapf(err, "error creating container from %s", spec.Image)
	}

	defer func() {
		if err := containers.Remove(context.WithoutCancel(ctx), ctr.ID(), container.WithRemoveForce); err != nil {
			e.log.WithError(err).WithField("container", ctr.ID()).Warn("failed to remove container")
		}
	}()

	if err := ctr.Start(ctx); err != nil {
		return errors.Wrap(err, "error starting container")
	}

	exit, err := e.waitExit(ctx, ctr)
	if err != nil {
		return err
	}
	if exit != 0 {
		return errors.Errorf("container command %v exited with status %d", spec.Cmd, exit)
	}
	return nil
}

// waitExit polls the container until it stops and returns its exit code.
func (e *Env) waitExit(ctx context.Context, ctr *container.Container) (int, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		inspect, err := ctr.Inspect(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "error inspecting container")
		}
		if inspect.State != nil && !inspect.State.Running {
			return inspect.State.ExitCode, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunAttached runs the container through the docker CLI with streams attached,
// so long steps like rpmbuild show their progress as it happens. Exit status
// propagation comes from the CLI.
func (e *Env) RunAttached(ctx context.Context, spec RunSpec, stdout, stderr io.Writer) error {
	args := []string{"run", "--rm"}
	for _, b := range spec.Binds {
		args = append(args, "-v", b)
	}
	for _, env := range spec.Env {
		args = append(args, "-e", env)
	}
	if spec.WorkingDir != "" {
		args = append(args, "-w", spec.WorkingDir)
	}
	if spec.Platform != nil {
		args = append(args, "--platform", FormatPlatform(spec.Platform))
	}
	args = append(args, spec.Image)
	args = append(args, spec.Cmd...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "container command %v failed", spec.Cmd)
	}
	return nil
}
