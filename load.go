package remediations

import (
	goerrors "errors"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// Validate checks the remediation for configuration errors. All problems are
// collected and reported together.
func (r *Remediation) Validate() error {
	var errs []error
	appendErr := func(err error) {
		errs = append(errs, err)
	}

	if r.Package == "" && (r.SRPM == nil || r.SRPM.URL == "") {
		appendErr(errors.New("either package or srpm.url must be set"))
	}
	if len(r.Releases) == 0 {
		appendErr(errors.New("at least one release is required"))
	}
	for _, rel := range r.Releases {
		if rel == "" {
			appendErr(errors.New("release must not be empty"))
		}
	}
	if r.PatchDir == "" {
		appendErr(errors.New("patch_dir is required"))
	}

	if r.SRPM != nil && r.SRPM.Digest != "" {
		if err := r.SRPM.Digest.Validate(); err != nil {
			appendErr(errors.Wrap(err, "srpm digest"))
		}
	}

	if r.Image.Base != "" && r.Image.Dockerfile != "" {
		appendErr(errors.New("image.base and image.dockerfile are mutually exclusive"))
	}

	if _, err := r.RPMBuildFlags(); err != nil {
		appendErr(errors.Wrap(err, "rpmbuild_args"))
	}

	return goerrors.Join(errs...)
}

// FillDefaults sets defaults for optional fields. It assumes the remediation
// has already passed [Remediation.Validate].
func (r *Remediation) FillDefaults() {
	if r.OutputDir == "" {
		r.OutputDir = "output"
	}
	if r.Image.Base == "" && r.Image.Dockerfile == "" {
		r.Image.Base = DefaultBuilderImage
	}
	if r.PatchFilter == nil {
		r.PatchFilter = &PatchFilter{}
	}
}

// LoadRemediation loads and validates a remediation config from yaml data.
func LoadRemediation(dt []byte) (*Remediation, error) {
	var r Remediation

	if err := yaml.UnmarshalWithOptions(dt, &r, yaml.Strict()); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling remediation config")
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.FillDefaults()

	return &r, nil
}

// ReadRemediationFile loads a remediation config from a file path.
func ReadRemediationFile(path string) (*Remediation, error) {
	dt, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading remediation config")
	}
	r, err := LoadRemediation(dt)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return r, nil
}
