// Package build runs the remediation pipeline: fetch the package's source
// RPM, inject the patch set into its spec, and rebuild binary and source RPMs
// inside a builder container, once per platform release. Steps run strictly
// in sequence; the only contract with the external tools is exit status
// propagation.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	ocispecs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	remediations "github.com/Root-IO-Labs/redhat-remediations"
	"github.com/Root-IO-Labs/redhat-remediations/internal/buildenv"
)

// workMount is where the per-release work tree is bind-mounted inside the
// builder container.
const workMount = "/work"

// Builder executes one remediation, one release at a time. It shares no
// state across invocations; parallel invocations are safe only because each
// gets its own Builder, work tree and containers.
type Builder struct {
	env *buildenv.Env
	rem *remediations.Remediation

	// Stdout and Stderr receive the output of attached build steps
	// (dependency installation, rpmbuild). Default to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	log *logrus.Entry
}

func New(env *buildenv.Env, rem *remediations.Remediation) *Builder {
	return &Builder{
		env:    env,
		rem:    rem,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    logrus.WithField("package", rem.Package),
	}
}

// Run executes the full pipeline for every configured release and writes the
// build report into the output directory.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	ps, err := remediations.LoadPatchSet(b.rem.PatchDir, b.rem.PatchFilter)
	if err != nil {
		return nil, err
	}

	platform, err := buildenv.ParsePlatform(b.rem.Image.Platform)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Package: b.rem.Package,
		Patches: ps.Names(),
	}

	for _, release := range b.rem.Releases {
		res, err := b.buildRelease(ctx, release, ps, platform)
		if err != nil {
			return nil, errors.Wrapf(err, "release %s", release)
		}
		report.Releases = append(report.Releases, *res)
	}

	reportPath := filepath.Join(b.rem.OutputDir, "report.yaml")
	if err := report.Write(reportPath); err != nil {
		return nil, err
	}
	b.log.WithField("report", reportPath).Info("build complete")

	return report, nil
}

// Fetch runs only the acquisition steps: provision the builder image,
// download the source RPM and install it into the per-release work tree. The
// unpacked spec and sources are left in place for inspection.
func (b *Builder) Fetch(ctx context.Context) error {
	platform, err := buildenv.ParsePlatform(b.rem.Image.Platform)
	if err != nil {
		return err
	}

	for _, release := range b.rem.Releases {
		work, err := b.prepareWorkDir(release)
		if err != nil {
			return err
		}
		ref, err := b.ensureImage(ctx, release, platform)
		if err != nil {
			return err
		}
		if err := b.fetchSRPM(ctx, ref, work, platform); err != nil {
			return errors.Wrapf(err, "release %s", release)
		}
		if err := b.installSRPM(ctx, ref, work, platform); err != nil {
			return errors.Wrapf(err, "release %s", release)
		}
		b.log.WithFields(logrus.Fields{"release": release, "dir": work}).Info("sources fetched")
	}
	return nil
}

func (b *Builder) buildRelease(ctx context.Context, release string, ps *remediations.PatchSet, platform *ocispecs.Platform) (*ReleaseResult, error) {
	log := b.log.WithField("release", release)

	work, err := b.prepareWorkDir(release)
	if err != nil {
		return nil, err
	}

	ref, err := b.ensureImage(ctx, release, platform)
	if err != nil {
		return nil, err
	}

	log.Info("fetching source rpm")
	if err := b.fetchSRPM(ctx, ref, work, platform); err != nil {
		return nil, err
	}

	log.Info("installing source rpm")
	if err := b.installSRPM(ctx, ref, work, platform); err != nil {
		return nil, err
	}

	specPath, err := findSpecFile(filepath.Join(work, "rpmbuild", "SPECS"))
	if err != nil {
		return nil, err
	}

	log.WithField("spec", filepath.Base(specPath)).Info("injecting patches")
	if err := b.injectPatches(specPath, ps, filepath.Join(work, "rpmbuild", "SOURCES")); err != nil {
		return nil, err
	}

	log.Info("rebuilding package")
	if err := b.rebuild(ctx, ref, work, specPath, platform); err != nil {
		return nil, err
	}

	outDir := filepath.Join(b.rem.OutputDir, release)
	artifacts, err := collectArtifacts(work, outDir)
	if err != nil {
		return nil, err
	}
	log.WithField("artifacts", len(artifacts)).Info("artifacts collected")

	return &ReleaseResult{Release: release, Artifacts: artifacts}, nil
}

// prepareWorkDir creates a clean absolute work tree for a release.
func (b *Builder) prepareWorkDir(release string) (string, error) {
	work, err := filepath.Abs(filepath.Join(b.rem.OutputDir, ".work", release))
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(work); err != nil {
		return "", errors.Wrap(err, "error cleaning work directory")
	}
	for _, sub := range []string{"srpm", "rpmbuild"} {
		if err := os.MkdirAll(filepath.Join(work, sub), 0o755); err != nil {
			return "", err
		}
	}
	return work, nil
}

// ensureImage provisions the builder image for a release and returns its ref.
func (b *Builder) ensureImage(ctx context.Context, release string, platform *ocispecs.Platform) (string, error) {
	ref := b.rem.Image.Ref(release)
	if b.rem.Image.Dockerfile != "" {
		if err := b.env.BuildImage(ctx, b.rem.Image.Dockerfile, ref, release, platform, b.Stderr); err != nil {
			return "", err
		}
		return ref, nil
	}
	if err := b.env.PullImage(ctx, ref, b.rem.Image.Pull); err != nil {
		return "", err
	}
	return ref, nil
}

// fetchSRPM puts the package's source RPM into <work>/srpm, either by direct
// download or with dnf inside the builder container.
func (b *Builder) fetchSRPM(ctx context.Context, ref, work string, platform *ocispecs.Platform) error {
	if b.rem.SRPM != nil && b.rem.SRPM.URL != "" {
		_, err := downloadSRPM(ctx, b.rem.SRPM, filepath.Join(work, "srpm"))
		return err
	}

	pkg := b.rem.Package
	if b.rem.Version != "" {
		pkg += "-" + b.rem.Version
	}

	script := fmt.Sprintf(
		"dnf install -y 'dnf-command(download)' >/dev/null && dnf download --source --destdir %s/srpm %s",
		workMount, shQuote(pkg),
	)
	return b.env.Run(ctx, buildenv.RunSpec{
		Image:    ref,
		Cmd:      []string{"sh", "-c", script},
		Binds:    []string{work + ":" + workMount},
		Platform: platform,
	})
}

// installSRPM unpacks the source RPM into the rpmbuild tree. rpm -ivh has to
// run inside the container so the spec's macros resolve against the target
// release, not the host.
func (b *Builder) installSRPM(ctx context.Context, ref, work string, platform *ocispecs.Platform) error {
	script := fmt.Sprintf(
		"rpm -ivh --define '_topdir %s/rpmbuild' %s/srpm/*.src.rpm",
		workMount, workMount,
	)
	return b.env.Run(ctx, buildenv.RunSpec{
		Image:    ref,
		Cmd:      []string{"sh", "-c", script},
		Binds:    []string{work + ":" + workMount},
		Platform: platform,
	})
}

// injectPatches rewrites the spec with the patch set injected and copies the
// patch files into SOURCES where rpmbuild expects them.
func (b *Builder) injectPatches(specPath string, ps *remediations.PatchSet, sourcesDir string) error {
	dt, err := os.ReadFile(specPath)
	if err != nil {
		return errors.Wrap(err, "error reading spec")
	}

	doc, err := remediations.Inject(remediations.ParseSpec(dt), ps.Names())
	if err != nil {
		return errors.Wrapf(err, "%s", specPath)
	}

	if err := os.WriteFile(specPath, doc.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "error writing spec")
	}

	for _, name := range ps.Names() {
		if err := copyFile(ps.Path(name), filepath.Join(sourcesDir, name)); err != nil {
			return errors.Wrapf(err, "error copying patch %s", name)
		}
	}
	return nil
}

// rebuild installs the spec's build dependencies and runs rpmbuild -ba, both
// attached so the user sees build output live.
func (b *Builder) rebuild(ctx context.Context, ref, work, specPath string, platform *ocispecs.Platform) error {
	ctrSpec := containerPath(work, specPath)

	depScript := fmt.Sprintf(
		"dnf install -y 'dnf-command(builddep)' >/dev/null && dnf builddep -y %s",
		shQuote(ctrSpec),
	)
	err := b.env.RunAttached(ctx, buildenv.RunSpec{
		Image:    ref,
		Cmd:      []string{"sh", "-c", depScript},
		Binds:    []string{work + ":" + workMount},
		Platform: platform,
	}, b.Stdout, b.Stderr)
	if err != nil {
		return errors.Wrap(err, "error installing build dependencies")
	}

	extra, err := b.rem.RPMBuildFlags()
	if err != nil {
		return err
	}

	cmd := []string{"rpmbuild", "-ba", "--define", "_topdir " + workMount + "/rpmbuild"}
	cmd = append(cmd, extra...)
	cmd = append(cmd, ctrSpec)

	err = b.env.RunAttached(ctx, buildenv.RunSpec{
		Image:    ref,
		Cmd:      cmd,
		Binds:    []string{work + ":" + workMount},
		Platform: platform,
	}, b.Stdout, b.Stderr)
	return errors.Wrap(err, "rpmbuild failed")
}

// findSpecFile expects exactly one spec in the installed SPECS dir.
func findSpecFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.spec"))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", errors.Errorf("no spec file found in %s", dir)
	case 1:
		return matches[0], nil
	default:
		return "", errors.Errorf("multiple spec files found in %s: %v", dir, matches)
	}
}

// containerPath maps a host path inside the work tree to its in-container
// location under the work mount.
func containerPath(work, p string) string {
	rel, err := filepath.Rel(work, p)
	if err != nil {
		return p
	}
	return workMount + "/" + filepath.ToSlash(rel)
}

// shQuote single-quotes s for safe interpolation into an sh -c script.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
