package remediations

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// PatchTagBase is the first tag number assigned to injected patches.
	// Native package patches rarely climb past a few dozen, so numbering from
	// 900 keeps the injected range clear of them.
	PatchTagBase = 900

	// DefaultPatchStrip is the path strip level injected patches are applied
	// with. Patches are expected to come from `git format-patch`, which
	// produces a/ b/ prefixed paths.
	DefaultPatchStrip = 1
)

// anchorKind is the decision of where new Patch tag lines go. The three
// fallbacks are kept as an explicit tagged value instead of nested
// conditionals so each can be exercised directly in tests.
type anchorKind int

const (
	anchorLastTag anchorKind = iota // after the last existing Source/Patch tag
	anchorRelease                   // after the Release: tag
	anchorAppend                    // at the end of the document
)

type insertAnchor struct {
	kind  anchorKind
	index int // line index of the anchor line; unused for anchorAppend
}

// tagAnchor decides where injected Patch tag lines are inserted: after the
// last existing Source/Patch tag, else after Release:, else appended at the
// document end. The append fallback is not expected in well-formed specs but
// is kept so injection never silently drops a tag.
func (d *Document) tagAnchor() insertAnchor {
	last := -1
	for _, t := range d.tagLines() {
		if t.index > last {
			last = t.index
		}
	}
	if last >= 0 {
		return insertAnchor{kind: anchorLastTag, index: last}
	}
	if idx := d.releaseLine(); idx >= 0 {
		return insertAnchor{kind: anchorRelease, index: idx}
	}
	return insertAnchor{kind: anchorAppend}
}

type assignedTag struct {
	num  int
	name string
}

// Inject returns a copy of doc with a Patch tag declared for every entry of
// patches and the %prep section wired so a subsequent rpmbuild applies them.
// Patch order is significant: tag numbers are assigned contiguously from
// PatchTagBase in input order, which is also the application order.
//
// Injection is idempotent with respect to tag insertion: a patch whose file
// name is already declared by a Patch tag is skipped. The input document is
// never modified; on error no partial output is produced.
func Inject(doc *Document, patches []string) (*Document, error) {
	if len(patches) == 0 {
		return nil, ErrEmptyPatchSet
	}

	prepStart, prepEnd, err := doc.prepSpan()
	if err != nil {
		return nil, err
	}
	style, _, err := doc.prepDirective(prepStart, prepEnd)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]struct{}) // file names already bound to a Patch tag
	owners := make(map[int]string)        // tag number -> file name
	for _, t := range doc.tagLines() {
		if !t.isPatch {
			continue
		}
		declared[t.value] = struct{}{}
		owners[t.num] = t.value
	}

	var newTags []assignedTag
	for i, name := range patches {
		num := PatchTagBase + i
		if _, ok := declared[name]; ok {
			logrus.WithField("patch", name).Debug("patch already declared in spec, skipping tag insertion")
			continue
		}
		if owner, ok := owners[num]; ok {
			return nil, errors.Wrapf(ErrTagCollision, "Patch%d already declares %q, cannot assign it to %q", num, owner, name)
		}
		newTags = append(newTags, assignedTag{num: num, name: name})
		declared[name] = struct{}{}
		owners[num] = name
	}

	out := doc.clone()

	a := out.tagAnchor()
	var at int
	switch a.kind {
	case anchorLastTag, anchorRelease:
		at = a.index + 1
	case anchorAppend:
		at = len(out.lines)
		// keep the trailing newline (split leaves a final empty element) last
		if at > 0 && out.lines[at-1] == "" {
			at--
		}
	}
	for _, t := range newTags {
		out.insert(at, fmt.Sprintf("Patch%d: %s", t.num, t.name))
		at++
	}

	// Tag insertion may have shifted the %prep section down.
	prepStart, prepEnd, err = out.prepSpan()
	if err != nil {
		return nil, err
	}
	_, directive, err := out.prepDirective(prepStart, prepEnd)
	if err != nil {
		return nil, err
	}

	switch style {
	case styleAutoSetup:
		out.lines[directive] = normalizeAutoDirective(out.lines[directive], true)
	case styleAutoPatch:
		out.lines[directive] = normalizeAutoDirective(out.lines[directive], false)
	case styleManual:
		at := directive + 1
		for _, t := range newTags {
			out.insert(at, fmt.Sprintf("%%patch%d -p%d", t.num, DefaultPatchStrip))
			at++
		}
	}

	return out, nil
}

// normalizeAutoDirective ensures an %autosetup/%autopatch line applies the
// declared patches: the no-patch flag -N is dropped (only meaningful for
// %autosetup) and a -p1 strip level is added unless the author already set an
// explicit -p<n>.
func normalizeAutoDirective(line string, stripNoPatch bool) string {
	fields := strings.Fields(line)

	out := fields[:0]
	hasStrip := false
	for _, f := range fields {
		if stripNoPatch && f == "-N" {
			continue
		}
		if stripArgRe.MatchString(f) {
			hasStrip = true
		}
		out = append(out, f)
	}
	if !hasStrip {
		out = append(out, fmt.Sprintf("-p%d", DefaultPatchStrip))
	}
	return strings.Join(out, " ")
}
