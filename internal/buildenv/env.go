// Package buildenv wraps the container engine used to fetch and rebuild
// packages: client bootstrap from the docker CLI's own configuration, builder
// image provisioning, and single-shot container runs.
package buildenv

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cpuguy83/dockercfg"
	"github.com/cpuguy83/go-docker"
	"github.com/cpuguy83/go-docker/transport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Env is a handle on the container engine. One Env serves a whole invocation;
// it holds no per-build state.
type Env struct {
	client *docker.Client
	log    *logrus.Entry
}

// New connects to the container engine. The endpoint is resolved the same way
// the docker CLI does: DOCKER_HOST wins, then the current docker context, then
// the platform default socket.
func New() (*Env, error) {
	tr, err := resolveTransport()
	if err != nil {
		return nil, errors.Wrap(err, "error resolving docker endpoint")
	}

	return &Env{
		client: docker.NewClient(docker.WithTransport(tr)),
		log:    logrus.WithField("component", "buildenv"),
	}, nil
}

func resolveTransport() (transport.Doer, error) {
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return transport.FromConnectionString(host)
	}

	host, err := currentContextHost()
	if err != nil {
		logrus.WithError(err).Debug("could not resolve docker context, using default endpoint")
	}
	if host != "" {
		return transport.FromConnectionString(host)
	}

	return transport.DefaultTransport()
}

// currentContextHost reads the docker CLI config and, when a non-default
// context is selected, returns that context's docker endpoint. Context
// metadata lives next to the CLI config under contexts/meta/<sha256(name)>.
func currentContextHost() (string, error) {
	p, err := dockercfg.ConfigPath()
	if err != nil {
		return "", err
	}

	dt, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var cfg struct {
		CurrentContext string `json:"currentContext"`
	}
	if err := json.Unmarshal(dt, &cfg); err != nil {
		return "", errors.Wrapf(err, "error parsing %s", p)
	}
	if cfg.CurrentContext == "" || cfg.CurrentContext == "default" {
		return "", nil
	}

	sum := sha256.Sum256([]byte(cfg.CurrentContext))
	metaPath := filepath.Join(filepath.Dir(p), "contexts", "meta", hex.EncodeToString(sum[:]), "meta.json")

	dt, err = os.ReadFile(metaPath)
	if err != nil {
		return "", errors.Wrapf(err, "error reading metadata for docker context %q", cfg.CurrentContext)
	}

	var meta struct {
		Endpoints map[string]struct {
			Host string `json:"Host"`
		} `json:"Endpoints"`
	}
	if err := json.Unmarshal(dt, &meta); err != nil {
		return "", errors.Wrapf(err, "error parsing %s", metaPath)
	}

	return meta.Endpoints["docker"].Host, nil
}
