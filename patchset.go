package remediations

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/moby/patternmatcher"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultPatchPatterns are the file patterns considered patches when the
// remediation config does not set its own filter.
var DefaultPatchPatterns = []string{"*.patch", "*.diff"}

// PatchFilter selects which files in the patch directory are part of the
// patch set. Patterns use the same syntax as .dockerignore entries.
type PatchFilter struct {
	// Include limits the patch set to files matching these patterns.
	// Defaults to DefaultPatchPatterns.
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	// Exclude drops matching files from the patch set.
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// PatchSet is the ordered list of patch files for one remediation run. Order
// is significant: it determines both the assigned tag numbers and the
// application order. Files sort lexicographically, which matches the NNNN-
// prefix numbering of `git format-patch` output.
type PatchSet struct {
	dir   string
	names []string
}

// LoadPatchSet reads the patch directory once and returns the ordered patch
// set. An empty result is a configuration error: there is nothing to inject.
func LoadPatchSet(dir string, filter *PatchFilter) (*PatchSet, error) {
	if filter == nil {
		filter = &PatchFilter{}
	}
	include := filter.Include
	if len(include) == 0 {
		include = DefaultPatchPatterns
	}

	includes, err := patternmatcher.New(include)
	if err != nil {
		return nil, errors.Wrap(err, "invalid include patterns")
	}
	var excludes *patternmatcher.PatternMatcher
	if len(filter.Exclude) > 0 {
		excludes, err = patternmatcher.New(filter.Exclude)
		if err != nil {
			return nil, errors.Wrap(err, "invalid exclude patterns")
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "error reading patch directory")
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := includes.MatchesOrParentMatches(e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "error matching %q", e.Name())
		}
		if !ok {
			continue
		}
		if excludes != nil {
			skip, err := excludes.MatchesOrParentMatches(e.Name())
			if err != nil {
				return nil, errors.Wrapf(err, "error matching %q", e.Name())
			}
			if skip {
				logrus.WithField("patch", e.Name()).Debug("patch excluded by filter")
				continue
			}
		}

		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		if fi.Size() == 0 {
			return nil, errors.Errorf("patch file %q is empty", e.Name())
		}
		names = append(names, e.Name())
	}

	if len(names) == 0 {
		return nil, errors.Wrapf(ErrEmptyPatchSet, "no patch files in %s", dir)
	}

	sort.Strings(names)
	return &PatchSet{dir: dir, names: names}, nil
}

// Dir returns the directory the patch set was loaded from.
func (ps *PatchSet) Dir() string {
	return ps.dir
}

// Names returns the patch file names in application order.
func (ps *PatchSet) Names() []string {
	out := make([]string, len(ps.names))
	copy(out, ps.names)
	return out
}

// Len returns the number of patches in the set.
func (ps *PatchSet) Len() int {
	return len(ps.names)
}

// Path returns the on-disk path of the named patch.
func (ps *PatchSet) Path(name string) string {
	return filepath.Join(ps.dir, name)
}
