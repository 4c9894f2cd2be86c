package buildenv

import (
	"strings"

	ocispecs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// ParsePlatform parses an "os/arch[/variant]" string into an OCI platform.
// An empty string means the engine's native platform and returns nil.
func ParsePlatform(s string) (*ocispecs.Platform, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, errors.Errorf("invalid platform %q, expected os/arch[/variant]", s)
	}

	p := &ocispecs.Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		p.Variant = parts[2]
	}
	return p, nil
}

// FormatPlatform renders a platform back into the "os/arch[/variant]" form
// the docker CLI expects.
func FormatPlatform(p *ocispecs.Platform) string {
	if p == nil {
		return ""
	}
	s := p.OS + "/" + p.Architecture
	if p.Variant != "" {
		s += "/" + p.Variant
	}
	return s
}
