package buildenv

import (
	"context"
	"io"
	"os/exec"

	dockerimage "github.com/cpuguy83/go-docker/image"
	ocispecs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// PullImage pulls ref through the engine API. When required is false a pull
// failure is downgraded to a warning so that locally built or preloaded
// images keep working offline; a missing image then surfaces at container
// create time instead.
func (e *Env) PullImage(ctx context.Context, ref string, required bool) error {
	remote, err := dockerimage.ParseRef(ref)
	if err != nil {
		return errors.Wrapf(err, "invalid image ref %q", ref)
	}

	e.log.WithField("image", ref).Info("pulling builder image")
	if err := e.client.ImageService().Pull(ctx, remote); err != nil {
		if required {
			return errors.Wrapf(err, "error pulling %s", ref)
		}
		e.log.WithField("image", ref).WithError(err).Warn("pull failed, continuing with local image if present")
	}
	return nil
}

// BuildImage builds the builder image from a local Dockerfile context via the
// docker CLI, streaming build output to out. The release is exposed to the
// Dockerfile as the RELEASE build arg.
func (e *Env) BuildImage(ctx context.Context, contextDir, tag, release string, platform *ocispecs.Platform, out io.Writer) error {
	args := []string{"build", "-t", tag, "--build-arg", "RELEASE=" + release}
	if platform != nil {
		args = append(args, "--platform", FormatPlatform(platform))
	}
	args = append(args, contextDir)

	e.log.WithField("image", tag).Info("building builder image")
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "error building image %s from %s", tag, contextDir)
	}
	return nil
}
