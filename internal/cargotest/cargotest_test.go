package cargotest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiffStrings(t *testing.T) {
	_, equal := Diff("alpha", "alpha")
	if !equal {
		t.Fatal("expected identical strings to compare equal")
	}
	diff, equal := Diff("alpha", "beta")
	if equal {
		t.Fatal("expected different strings to compare unequal")
	}
	if diff == "" {
		t.Fatal("expected a non-empty diff for unequal strings")
	}
}

func TestDiffStructs(t *testing.T) {
	type point struct{ X, Y int }
	_, equal := Diff(point{1, 2}, point{1, 2})
	if !equal {
		t.Fatal("expected identical structs to compare equal")
	}
	_, equal = Diff(point{1, 2}, point{1, 3})
	if equal {
		t.Fatal("expected different structs to compare unequal")
	}
}

func TestDump(t *testing.T) {
	type widget struct {
		Name string
		Tags []string
	}
	out := Dump(widget{Name: "bolt", Tags: []string{"b", "a"}})
	if !strings.Contains(out, "bolt") || !strings.Contains(out, "Tags") {
		t.Fatalf("expected dump to mention fields and values, got %q", out)
	}
}

func TestWriteFakeRustcIsExecutable(t *testing.T) {
	dir := t.TempDir()
	path := WriteFakeRustc(t, dir)
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&0o111 == 0 {
		t.Fatalf("expected %s to be executable, mode was %v", path, fi.Mode())
	}
	if _, err := os.Stat(filepath.Join(dir, "rustdoc")); err != nil {
		t.Fatalf("expected a fake rustdoc alongside rustc: %v", err)
	}
}

func TestHelperRunsBinary(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho hello\nexit 0\n"
	path := filepath.Join(dir, "fakebin")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	h := NewHelper(t, path, dir)
	h.Run()
	if !strings.Contains(h.Stdout(), "hello") {
		t.Fatalf("expected captured stdout to contain hello, got %q", h.Stdout())
	}
}
