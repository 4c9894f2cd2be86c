package remediations

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Document is the parsed form of an RPM spec file. It is a plain ordered line
// sequence; all lookups are explicit line-indexed scans so that failure modes
// (missing sections, duplicated sections) stay visible and testable.
type Document struct {
	lines []string
}

// ParseSpec parses spec file text into a Document. The text is never
// normalized; Bytes returns it unchanged aside from edits made by Inject.
func ParseSpec(dt []byte) *Document {
	return &Document{lines: strings.Split(string(dt), "\n")}
}

func (d *Document) String() string {
	return strings.Join(d.lines, "\n")
}

// Bytes returns the document serialized back to spec file text.
func (d *Document) Bytes() []byte {
	return []byte(d.String())
}

// Lines returns a copy of the document's lines.
func (d *Document) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

func (d *Document) clone() *Document {
	return &Document{lines: d.Lines()}
}

// insert places line at index i, shifting the remainder down.
func (d *Document) insert(i int, line string) {
	d.lines = append(d.lines, "")
	copy(d.lines[i+1:], d.lines[i:])
	d.lines[i] = line
}

// sectionNames are the top-level %section markers that terminate the section
// preceding them. The set follows the rpmbuild grammar; unknown %-lines (macro
// invocations, conditionals) do not end a section.
var sectionNames = map[string]struct{}{
	"%prep":                   {},
	"%generate_buildrequires": {},
	"%conf":                   {},
	"%build":                  {},
	"%install":                {},
	"%check":                  {},
	"%clean":                  {},
	"%files":                  {},
	"%changelog":              {},
	"%description":            {},
	"%package":                {},
	"%pre":                    {},
	"%post":                   {},
	"%preun":                  {},
	"%postun":                 {},
	"%pretrans":               {},
	"%posttrans":              {},
	"%triggerin":              {},
	"%triggerun":              {},
	"%triggerpostun":          {},
	"%sourcelist":             {},
	"%patchlist":              {},
}

func isSectionLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	_, ok := sectionNames[fields[0]]
	return ok
}

// prepSpan returns the line span of the %prep section: start is the index of
// the %prep marker itself, end is the exclusive index of the next section
// marker (or the document end). A document must contain exactly one %prep
// section; anything else is malformed.
func (d *Document) prepSpan() (start, end int, err error) {
	start = -1
	for i, line := range d.lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "%prep" {
			continue
		}
		if start >= 0 {
			return 0, 0, errors.Wrapf(ErrMalformedSpec, "duplicate %%prep sections at lines %d and %d", start+1, i+1)
		}
		start = i
	}
	if start < 0 {
		return 0, 0, errors.Wrap(ErrMalformedSpec, "no %prep section")
	}

	end = len(d.lines)
	for i := start + 1; i < len(d.lines); i++ {
		if isSectionLine(d.lines[i]) {
			end = i
			break
		}
	}
	return start, end, nil
}

// tagLineRe matches Source/Patch tag declarations. RPM tag names are
// case-insensitive and the number is optional (a bare "Patch:" is tag 0).
var (
	tagLineRe  = regexp.MustCompile(`(?i)^(source|patch)(\d*)\s*:\s*(\S+)`)
	releaseRe  = regexp.MustCompile(`(?i)^release\s*:`)
	stripArgRe = regexp.MustCompile(`^-p\d+$`)
)

type tagLine struct {
	index   int    // line index in the document
	isPatch bool   // Patch vs Source
	num     int    // declared tag number, 0 when omitted
	value   string // referenced file name
}

func (d *Document) tagLines() []tagLine {
	var tags []tagLine
	for i, line := range d.lines {
		m := tagLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t := tagLine{
			index:   i,
			isPatch: strings.EqualFold(m[1], "patch"),
			value:   m[3],
		}
		if m[2] != "" {
			t.num, _ = strconv.Atoi(m[2])
		}
		tags = append(tags, t)
	}
	return tags
}

func (d *Document) releaseLine() int {
	for i, line := range d.lines {
		if releaseRe.MatchString(line) {
			return i
		}
	}
	return -1
}

// prepStyle identifies how a %prep section unpacks sources and applies
// patches. The three styles are mutually exclusive; specs mixing them have
// undefined semantics and are rejected.
type prepStyle int

const (
	styleAutoSetup prepStyle = iota // %autosetup applies declared patches itself
	styleAutoPatch                  // %autopatch applies declared patches itself
	styleManual                     // bare %setup plus explicit %patch lines
)

func (s prepStyle) String() string {
	switch s {
	case styleAutoSetup:
		return "%autosetup"
	case styleAutoPatch:
		return "%autopatch"
	case styleManual:
		return "%setup"
	}
	return "unknown"
}

// prepDirective scans the %prep span for the unpack directive and returns the
// detected style along with the directive's line index. Repeated directives
// of the same kind keep the first occurrence; directives of different kinds
// make the section ambiguous.
func (d *Document) prepDirective(start, end int) (prepStyle, int, error) {
	found := -1
	var foundStyle prepStyle

	record := func(style prepStyle, idx int) error {
		if found >= 0 && foundStyle != style {
			return errors.Wrapf(ErrAmbiguousPrep, "%s at line %d conflicts with %s at line %d", style, idx+1, foundStyle, found+1)
		}
		if found < 0 {
			found = idx
			foundStyle = style
		}
		return nil
	}

	for i := start + 1; i < end; i++ {
		fields := strings.Fields(d.lines[i])
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "%autosetup":
			if err := record(styleAutoSetup, i); err != nil {
				return 0, 0, err
			}
		case "%autopatch":
			if err := record(styleAutoPatch, i); err != nil {
				return 0, 0, err
			}
		case "%setup":
			if err := record(styleManual, i); err != nil {
				return 0, 0, err
			}
		}
	}

	if found < 0 {
		// No unpack directive at all is treated as the manual style with no
		// %setup anchor, which is unsupported.
		return 0, 0, errors.Wrap(ErrUnsupportedSpecStyle, "no %autosetup, %autopatch or %setup line in %prep")
	}
	return foundStyle, found, nil
}
