package build

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	remediations "github.com/Root-IO-Labs/redhat-remediations"
)

// downloadSRPM fetches a source RPM over HTTP(S) into destDir and returns the
// downloaded file's path. When the source carries a digest the download is
// verified against it and a mismatch removes the file again.
func downloadSRPM(ctx context.Context, src *remediations.SRPMSource, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, "invalid srpm url")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "error downloading %s", src.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("error downloading %s: %s", src.URL, resp.Status)
	}

	name := path.Base(resp.Request.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = "package.src.rpm"
	}
	dest := filepath.Join(destDir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var (
		w        io.Writer = f
		verifier digest.Verifier
	)
	if src.Digest != "" {
		verifier = src.Digest.Verifier()
		w = io.MultiWriter(f, verifier)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		os.Remove(dest)
		return "", errors.Wrapf(err, "error downloading %s", src.URL)
	}

	if verifier != nil && !verifier.Verified() {
		os.Remove(dest)
		return "", errors.Errorf("digest mismatch for %s, expected %s", src.URL, src.Digest)
	}

	return dest, nil
}
