package build

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"

	remediations "github.com/Root-IO-Labs/redhat-remediations"
)

func TestDownloadSRPM(t *testing.T) {
	content := []byte("not really an srpm but good enough to hash")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.src.rpm" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	t.Run("plain download", func(t *testing.T) {
		dir := t.TempDir()
		p, err := downloadSRPM(context.Background(), &remediations.SRPMSource{
			URL: srv.URL + "/demo-1.0-1.src.rpm",
		}, dir)
		assert.NilError(t, err)

		dt, err := os.ReadFile(p)
		assert.NilError(t, err)
		assert.DeepEqual(t, dt, content)
	})

	t.Run("digest verified", func(t *testing.T) {
		dir := t.TempDir()
		_, err := downloadSRPM(context.Background(), &remediations.SRPMSource{
			URL:    srv.URL + "/demo-1.0-1.src.rpm",
			Digest: digest.FromBytes(content),
		}, dir)
		assert.NilError(t, err)
	})

	t.Run("digest mismatch removes the file", func(t *testing.T) {
		dir := t.TempDir()
		_, err := downloadSRPM(context.Background(), &remediations.SRPMSource{
			URL:    srv.URL + "/demo-1.0-1.src.rpm",
			Digest: digest.FromBytes([]byte("something else")),
		}, dir)
		assert.ErrorContains(t, err, "digest mismatch")

		entries, err := os.ReadDir(dir)
		assert.NilError(t, err)
		assert.Equal(t, len(entries), 0)
	})

	t.Run("http error status", func(t *testing.T) {
		_, err := downloadSRPM(context.Background(), &remediations.SRPMSource{
			URL: srv.URL + "/missing.src.rpm",
		}, t.TempDir())
		assert.ErrorContains(t, err, "404")
	})
}
