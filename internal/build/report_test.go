package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"
)

func TestCollectArtifacts(t *testing.T) {
	writeRPM := func(t *testing.T, work, rel, name string, content []byte) {
		t.Helper()
		dir := filepath.Join(work, "rpmbuild", rel)
		assert.NilError(t, os.MkdirAll(dir, 0o755))
		assert.NilError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
	}

	t.Run("copies and digests rpms", func(t *testing.T) {
		work := t.TempDir()
		dest := t.TempDir()

		binary := []byte("binary rpm payload")
		source := []byte("source rpm payload")
		writeRPM(t, work, filepath.Join("RPMS", "x86_64"), "demo-1.0-1.x86_64.rpm", binary)
		writeRPM(t, work, "SRPMS", "demo-1.0-1.src.rpm", source)
		writeRPM(t, work, filepath.Join("RPMS", "x86_64"), "demo.spec.log", []byte("not an rpm"))

		artifacts, err := collectArtifacts(work, dest)
		assert.NilError(t, err)
		assert.Equal(t, len(artifacts), 2)

		byName := map[string]Artifact{}
		for _, a := range artifacts {
			byName[a.Name] = a
		}

		a := byName["demo-1.0-1.x86_64.rpm"]
		assert.Equal(t, a.Digest, digest.FromBytes(binary))
		assert.Equal(t, a.Size, int64(len(binary)))

		dt, err := os.ReadFile(a.Path)
		assert.NilError(t, err)
		assert.DeepEqual(t, dt, binary)

		assert.Equal(t, byName["demo-1.0-1.src.rpm"].Digest, digest.FromBytes(source))
	})

	t.Run("no artifacts is an error", func(t *testing.T) {
		work := t.TempDir()
		assert.NilError(t, os.MkdirAll(filepath.Join(work, "rpmbuild"), 0o755))
		_, err := collectArtifacts(work, t.TempDir())
		assert.ErrorContains(t, err, "no rpm artifacts")
	})
}

func TestReportWrite(t *testing.T) {
	r := &Report{
		Package: "openssl",
		Patches: []string{"0001-fix.patch"},
		Releases: []ReleaseResult{{
			Release: "9",
			Artifacts: []Artifact{{
				Name:   "openssl-3.0.7-1.el9.x86_64.rpm",
				Path:   "output/9/openssl-3.0.7-1.el9.x86_64.rpm",
				Size:   42,
				Digest: digest.FromBytes([]byte("x")),
			}},
		}},
	}

	path := filepath.Join(t.TempDir(), "report.yaml")
	assert.NilError(t, r.Write(path))

	dt, err := os.ReadFile(path)
	assert.NilError(t, err)

	var got Report
	assert.NilError(t, yaml.Unmarshal(dt, &got))
	assert.DeepEqual(t, got, *r)
}
