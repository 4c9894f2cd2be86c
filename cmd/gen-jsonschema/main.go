package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	remediations "github.com/Root-IO-Labs/redhat-remediations"
)

// Emits the JSON schema for the remediation config, to stdout or to the file
// named by the first argument.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var r jsonschema.Reflector
	if err := r.AddGoComments("github.com/Root-IO-Labs/redhat-remediations", "./"); err != nil {
		return errors.Wrap(err, "error loading config doc comments")
	}

	dt, err := json.MarshalIndent(r.Reflect(&remediations.Remediation{}), "", "\t")
	if err != nil {
		return errors.Wrap(err, "error marshaling schema")
	}
	dt = append(dt, '\n')

	if len(os.Args) < 2 {
		_, err := os.Stdout.Write(dt)
		return err
	}

	out := os.Args[1]
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(out, dt, 0o644), "error writing %s", out)
}
