package hclblock

import (
	"strings"
	"testing"
)

func TestPatchRoundTripsOriginalBlock(t *testing.T) {
	t.Parallel()

	loc, err := Locate(nestedFile, `resource "google_compute_instance" "web"`)
	if err != nil || !loc.Found {
		t.Fatalf("Locate: loc=%+v err=%v", loc, err)
	}
	original := nestedFile[loc.Start:loc.End]

	result := Patch("main.tf", nestedFile, loc, original)
	if result.FellBack {
		t.Fatal("unexpected fallback")
	}
	if result.Content != nestedFile {
		t.Fatalf("round trip not byte identical:\n%q\nvs\n%q", result.Content, nestedFile)
	}
	if result.Diff != "" {
		t.Fatalf("diff for identical content: %q", result.Diff)
	}
}

func TestPatchReplacesBlock(t *testing.T) {
	t.Parallel()

	loc, err := Locate(nestedFile, `resource "google_compute_instance" "db"`)
	if err != nil || !loc.Found {
		t.Fatalf("Locate: loc=%+v err=%v", loc, err)
	}
	replacement := "resource \"google_compute_instance\" \"db\" {\n  name         = \"db\"\n  machine_type = \"e2-medium\"\n}"

	result := Patch("main.tf", nestedFile, loc, replacement)
	if result.FellBack {
		t.Fatal("unexpected fallback")
	}
	if !strings.Contains(result.Content, "machine_type = \"e2-medium\"") {
		t.Fatalf("replacement missing: %q", result.Content)
	}
	if !strings.Contains(result.Content, "provider \"google\"") {
		t.Fatalf("surrounding content lost: %q", result.Content)
	}
	if !strings.Contains(result.Diff, "+  machine_type = \"e2-medium\"") {
		t.Fatalf("diff missing added line: %q", result.Diff)
	}
}

func TestPatchHeaderSpansWholeFile(t *testing.T) {
	t.Parallel()

	file := `resource "x" "y" { a = 1 }`
	replacement := `resource "x" "y" { a = 2 }`
	loc, err := Locate(file, `resource "x" "y"`)
	if err != nil || !loc.Found {
		t.Fatalf("Locate: loc=%+v err=%v", loc, err)
	}

	result := Patch("main.tf", file, loc, replacement)
	if result.Content != replacement {
		t.Fatalf("content=%q, want exactly the replacement", result.Content)
	}
}

func TestPatchFallsBackToAppend(t *testing.T) {
	t.Parallel()

	replacement := "resource \"google_dns_zone\" \"zone\" {\n  name = \"demo\"\n}"
	result := Patch("main.tf", nestedFile, LocateResult{}, replacement)

	if !result.FellBack {
		t.Fatal("FellBack not set")
	}
	if !strings.HasPrefix(result.Content, nestedFile) {
		t.Fatal("original content changed above the appended section")
	}
	if strings.Count(result.Content, "google_dns_zone") != 1 {
		t.Fatalf("appended block count wrong: %q", result.Content)
	}
	if !strings.HasSuffix(result.Content, replacement+"\n") {
		t.Fatalf("block not appended at end: %q", result.Content)
	}
}

func TestPatchAppendToEmptyFile(t *testing.T) {
	t.Parallel()

	replacement := "locals {\n  env = \"prod\"\n}"
	result := Patch("locals.tf", "", LocateResult{}, replacement)

	if !result.FellBack {
		t.Fatal("FellBack not set")
	}
	if result.Content != replacement+"\n" {
		t.Fatalf("content=%q", result.Content)
	}
}

func TestUnifiedDiffShape(t *testing.T) {
	t.Parallel()

	before := "a = 1\nb = 2\n"
	after := "a = 1\nb = 3\n"
	diff := Unified("vars.tf", before, after)

	for _, want := range []string{"--- a/vars.tf\n", "+++ b/vars.tf\n", "-b = 2\n", "+b = 3\n", " a = 1\n"} {
		if !strings.Contains(diff, want) {
			t.Fatalf("diff missing %q:\n%s", want, diff)
		}
	}
}
