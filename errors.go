package remediations

import "github.com/pkg/errors"

var (
	// ErrMalformedSpec is returned when a spec file does not contain exactly
	// one %prep section.
	ErrMalformedSpec = errors.New("malformed spec")

	// ErrUnsupportedSpecStyle is returned for a manual-patch spec that has no
	// %setup line to anchor %patch insertion on.
	ErrUnsupportedSpecStyle = errors.New("unsupported spec style")

	// ErrAmbiguousPrep is returned when a %prep section contains more than one
	// applicable unpack directive (%autosetup, %autopatch, %setup).
	// The behavior of such specs is undefined, so they are rejected outright.
	ErrAmbiguousPrep = errors.New("ambiguous %prep section")

	// ErrEmptyPatchSet is returned when the patch directory yields no patch
	// files. Rebuilding without patches is always a configuration mistake.
	ErrEmptyPatchSet = errors.New("no patches to inject")

	// ErrTagCollision is returned when the spec already declares a tag in the
	// reserved numbering range bound to a different file.
	ErrTagCollision = errors.New("patch tag number already in use")
)
