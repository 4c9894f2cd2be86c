package remediations

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
)

func specText(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func patchTagValues(d *Document) []string {
	var out []string
	for _, t := range d.tagLines() {
		if t.isPatch {
			out = append(out, t.value)
		}
	}
	return out
}

func TestInjectManualStyle(t *testing.T) {
	t.Run("literal example", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Version: 1.0",
			"Release: 1%{?dist}",
			"",
			"%prep",
			"%setup -q",
			"",
			"%build",
			"make",
		))

		out, err := Inject(doc, []string{"0001-fix.patch"})
		assert.NilError(t, err)

		expected := strings.Join([]string{
			"Name: demo",
			"Version: 1.0",
			"Release: 1%{?dist}",
			"Patch900: 0001-fix.patch",
			"",
			"%prep",
			"%setup -q",
			"%patch900 -p1",
			"",
			"%build",
			"make",
			"",
		}, "\n")
		assert.Equal(t, out.String(), expected)
	})

	t.Run("multiple patches keep input order", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Release: 2%{?dist}",
			"Source0: demo-1.0.tar.gz",
			"",
			"%prep",
			"%setup -q",
			"",
			"%build",
		))

		patches := []string{"0001-a.patch", "0002-b.patch", "0003-c.patch"}
		out, err := Inject(doc, patches)
		assert.NilError(t, err)

		lines := out.Lines()

		// tags follow the last Source tag, contiguous from 900
		idx := -1
		for i, l := range lines {
			if l == "Source0: demo-1.0.tar.gz" {
				idx = i
				break
			}
		}
		assert.Assert(t, idx >= 0)
		wantTags := []string{
			"Patch900: 0001-a.patch",
			"Patch901: 0002-b.patch",
			"Patch902: 0003-c.patch",
		}
		assert.DeepEqual(t, lines[idx+1:idx+4], wantTags)

		// %patch lines directly follow %setup, ascending
		idx = -1
		for i, l := range lines {
			if strings.HasPrefix(l, "%setup") {
				idx = i
				break
			}
		}
		assert.Assert(t, idx >= 0)
		wantApply := []string{
			"%patch900 -p1",
			"%patch901 -p1",
			"%patch902 -p1",
		}
		assert.DeepEqual(t, lines[idx+1:idx+4], wantApply)
	})

	t.Run("duplicate input names get one tag", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Release: 1",
			"",
			"%prep",
			"%setup -q",
			"",
			"%build",
		))

		out, err := Inject(doc, []string{"0001-fix.patch", "0001-fix.patch"})
		assert.NilError(t, err)

		assert.DeepEqual(t, patchTagValues(out), []string{"0001-fix.patch"})
		assert.Equal(t, strings.Count(out.String(), "%patch900"), 1)
		assert.Assert(t, !strings.Contains(out.String(), "Patch901"))
	})

	t.Run("no setup line", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Release: 1",
			"",
			"%prep",
			"tar -xf %{SOURCE0}",
			"",
			"%build",
		))

		_, err := Inject(doc, []string{"0001-fix.patch"})
		assert.Assert(t, errors.Is(err, ErrUnsupportedSpecStyle), "got %v", err)
	})
}

func TestInjectAutosetup(t *testing.T) {
	t.Run("strips -N and adds -p1", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Release: 1",
			"",
			"%prep",
			"%autosetup -N",
			"",
			"%build",
		))

		out, err := Inject(doc, []string{"0001-fix.patch"})
		assert.NilError(t, err)

		line := findPrefixed(t, out, "%autosetup")
		assert.Equal(t, line, "%autosetup -p1")
	})

	t.Run("preserves existing strip level", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Release: 1",
			"",
			"%prep",
			"%autosetup -S git -p2",
			"",
			"%build",
		))

		out, err := Inject(doc, []string{"0001-fix.patch"})
		assert.NilError(t, err)

		line := findPrefixed(t, out, "%autosetup")
		assert.Equal(t, line, "%autosetup -S git -p2")
		assert.Equal(t, strings.Count(line, "-p"), 1)
	})

	t.Run("adds no manual patch lines", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Release: 1",
			"",
			"%prep",
			"%autosetup",
			"",
			"%build",
		))

		out, err := Inject(doc, []string{"0001-fix.patch"})
		assert.NilError(t, err)
		assert.Assert(t, !strings.Contains(out.String(), "%patch900"))
		assert.Assert(t, strings.Contains(out.String(), "Patch900: 0001-fix.patch"))
	})
}

func TestInjectAutopatch(t *testing.T) {
	doc := ParseSpec(specText(
		"Name: demo",
		"Release: 1",
		"",
		"%prep",
		"tar -xf %{SOURCE0}",
		"%autopatch",
		"",
		"%build",
	))

	out, err := Inject(doc, []string{"0001-fix.patch"})
	assert.NilError(t, err)

	line := findPrefixed(t, out, "%autopatch")
	assert.Equal(t, line, "%autopatch -p1")
}

func TestInjectIdempotent(t *testing.T) {
	for _, style := range []string{"%setup -q", "%autosetup", "%autopatch"} {
		style := style
		t.Run(style, func(t *testing.T) {
			doc := ParseSpec(specText(
				"Name: demo",
				"Release: 1%{?dist}",
				"Patch1: native.patch",
				"",
				"%prep",
				style,
				"",
				"%build",
			))

			patches := []string{"0001-a.patch", "0002-b.patch"}
			once, err := Inject(doc, patches)
			assert.NilError(t, err)

			twice, err := Inject(once, patches)
			assert.NilError(t, err)

			if diff := cmp.Diff(once.String(), twice.String()); diff != "" {
				t.Fatalf("second injection changed the document:\n%s", diff)
			}
			assert.DeepEqual(t, patchTagValues(twice), []string{"native.patch", "0001-a.patch", "0002-b.patch"})
		})
	}
}

func TestInjectErrors(t *testing.T) {
	t.Run("empty patch set", func(t *testing.T) {
		doc := ParseSpec(specText("Name: demo", "%prep", "%setup", "%build"))
		_, err := Inject(doc, nil)
		assert.Assert(t, errors.Is(err, ErrEmptyPatchSet), "got %v", err)
	})

	t.Run("no prep section", func(t *testing.T) {
		doc := ParseSpec(specText("Name: demo", "Release: 1", "%build", "make"))
		_, err := Inject(doc, []string{"0001-fix.patch"})
		assert.Assert(t, errors.Is(err, ErrMalformedSpec), "got %v", err)
	})

	t.Run("duplicate prep sections", func(t *testing.T) {
		doc := ParseSpec(specText("Name: demo", "%prep", "%setup", "%prep", "%build"))
		_, err := Inject(doc, []string{"0001-fix.patch"})
		assert.Assert(t, errors.Is(err, ErrMalformedSpec), "got %v", err)
	})

	t.Run("ambiguous prep directives", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"",
			"%prep",
			"%setup -q",
			"%autosetup",
			"",
			"%build",
		))
		_, err := Inject(doc, []string{"0001-fix.patch"})
		assert.Assert(t, errors.Is(err, ErrAmbiguousPrep), "got %v", err)
	})

	t.Run("tag number collision", func(t *testing.T) {
		doc := ParseSpec(specText(
			"Name: demo",
			"Patch900: other.patch",
			"",
			"%prep",
			"%setup -q",
			"",
			"%build",
		))
		_, err := Inject(doc, []string{"0001-fix.patch"})
		assert.Assert(t, errors.Is(err, ErrTagCollision), "got %v", err)
	})

	t.Run("input document is never modified", func(t *testing.T) {
		dt := specText("Name: demo", "Release: 1", "", "%prep", "%setup -q", "", "%build")
		doc := ParseSpec(dt)
		_, err := Inject(doc, []string{"0001-fix.patch"})
		assert.NilError(t, err)
		assert.Equal(t, doc.String(), string(dt))
	})
}

func findPrefixed(t *testing.T, d *Document, prefix string) string {
	t.Helper()
	for _, l := range d.Lines() {
		if strings.HasPrefix(l, prefix) {
			return l
		}
	}
	t.Fatalf("no line with prefix %q", prefix)
	return ""
}
