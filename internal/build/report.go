package build

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// Report summarizes one remediation run. It is written as report.yaml into
// the output directory.
type Report struct {
	Package  string          `yaml:"package"`
	Patches  []string        `yaml:"patches"`
	Releases []ReleaseResult `yaml:"releases"`
}

// ReleaseResult lists the artifacts built for one platform release.
type ReleaseResult struct {
	Release   string     `yaml:"release"`
	Artifacts []Artifact `yaml:"artifacts"`
}

// Artifact is one built package file, recorded with its content digest so
// downstream consumers can verify what they deploy.
type Artifact struct {
	Name   string        `yaml:"name"`
	Path   string        `yaml:"path"`
	Size   int64         `yaml:"size"`
	Digest digest.Digest `yaml:"digest"`
}

// Write serializes the report to path.
func (r *Report) Write(path string) error {
	dt, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "error marshalling report")
	}
	return errors.Wrap(os.WriteFile(path, dt, 0o644), "error writing report")
}

// collectArtifacts copies every .rpm produced under the work tree's RPMS and
// SRPMS dirs into destDir, digesting each file as it is copied.
func collectArtifacts(workDir, destDir string) ([]Artifact, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	var artifacts []Artifact
	for _, sub := range []string{"RPMS", "SRPMS"} {
		root := filepath.Join(workDir, "rpmbuild", sub)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".rpm") {
				return nil
			}

			dest := filepath.Join(destDir, d.Name())
			a, err := copyArtifact(p, dest)
			if err != nil {
				return err
			}
			artifacts = append(artifacts, a)
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "error collecting artifacts from %s", root)
		}
	}

	if len(artifacts) == 0 {
		return nil, errors.New("build produced no rpm artifacts")
	}
	return artifacts, nil
}

// copyArtifact copies src to dest, computing the content digest in the same
// pass.
func copyArtifact(src, dest string) (Artifact, error) {
	in, err := os.Open(src)
	if err != nil {
		return Artifact{}, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return Artifact{}, err
	}
	defer out.Close()

	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(out, digester.Hash()), in)
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "error copying %s", src)
	}

	return Artifact{
		Name:   filepath.Base(dest),
		Path:   dest,
		Size:   n,
		Digest: digester.Digest(),
	}, nil
}

// copyFile is a plain file copy preserving nothing but content.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
