package remediations

import (
	"strings"

	"github.com/google/shlex"
	"github.com/opencontainers/go-digest"
)

// releaseToken is the placeholder in image refs that gets replaced with the
// platform release being built.
const releaseToken = "{release}"

// DefaultBuilderImage is used when the config sets neither a base image nor a
// Dockerfile.
const DefaultBuilderImage = "registry.access.redhat.com/ubi{release}/ubi"

// Remediation describes one package-rebuild run: which package to fetch,
// which platform releases to build it for, and where the patches live.
type Remediation struct {
	// Package is the name of the package to rebuild.
	Package string `yaml:"package" json:"package"`

	// Version optionally pins the package version passed to the package
	// manager when fetching the source RPM.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// SRPM optionally bypasses the package manager and downloads the source
	// RPM directly from a URL.
	SRPM *SRPMSource `yaml:"srpm,omitempty" json:"srpm,omitempty"`

	// Releases lists the platform releases to build for, e.g. ["8", "9"].
	// Each release gets its own builder container and output subdirectory.
	Releases []string `yaml:"releases" json:"releases"`

	// PatchDir is the directory holding the patch files to inject.
	PatchDir string `yaml:"patch_dir" json:"patch_dir"`

	// PatchFilter selects which files in PatchDir are part of the patch set.
	PatchFilter *PatchFilter `yaml:"patch_filter,omitempty" json:"patch_filter,omitempty"`

	// OutputDir is where built RPMs and the build report are written.
	// Defaults to "output".
	OutputDir string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`

	// Image configures the builder image used for fetch and rebuild.
	Image ImageConfig `yaml:"image,omitempty" json:"image,omitempty"`

	// RPMBuildArgs is a shell-quoted string of extra arguments appended to
	// the rpmbuild invocation, e.g. `--define "debug_package %{nil}"`.
	RPMBuildArgs string `yaml:"rpmbuild_args,omitempty" json:"rpmbuild_args,omitempty"`
}

// SRPMSource points at a source RPM to download over HTTP(S).
type SRPMSource struct {
	// URL is the URL to download the source RPM from.
	URL string `yaml:"url" json:"url"`
	// Digest is the expected digest of the downloaded file, used to verify
	// its integrity. Form: <algorithm>:<digest>
	Digest digest.Digest `yaml:"digest,omitempty" json:"digest,omitempty"`
}

// ImageConfig configures the builder image. Either Base names an existing
// image (pulled as needed), or Dockerfile points at a build context that is
// built into a per-release builder image.
type ImageConfig struct {
	// Base is the builder image ref. The {release} token is replaced with the
	// platform release, e.g. "registry.access.redhat.com/ubi{release}/ubi".
	Base string `yaml:"base,omitempty" json:"base,omitempty"`

	// Dockerfile is a path to a directory containing a Dockerfile used to
	// build the builder image instead of pulling Base. The release is passed
	// as the RELEASE build arg.
	Dockerfile string `yaml:"dockerfile,omitempty" json:"dockerfile,omitempty"`

	// Platform optionally selects the target platform, e.g. "linux/arm64".
	// Defaults to the engine's native platform.
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`

	// Pull forces a pull of Base even when present locally.
	Pull bool `yaml:"pull,omitempty" json:"pull,omitempty"`
}

// Ref resolves the builder image ref for a release. When a Dockerfile is
// configured the ref is a local tag the image gets built under.
func (c *ImageConfig) Ref(release string) string {
	if c.Dockerfile != "" {
		return "redhat-remediations/builder:" + release
	}
	return strings.ReplaceAll(c.Base, releaseToken, release)
}

// RPMBuildFlags tokenizes RPMBuildArgs with shell quoting rules.
func (r *Remediation) RPMBuildFlags() ([]string, error) {
	if r.RPMBuildArgs == "" {
		return nil, nil
	}
	return shlex.Split(r.RPMBuildArgs)
}
