package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ngiloq6/cargo/internal/ident"
)

type fakeLoader struct {
	pkgs map[string]*Package
}

func (f fakeLoader) Load(root, name string, v ident.Version) (*Package, error) {
	if p, ok := f.pkgs[name+"@"+v.String()]; ok {
		return p, nil
	}
	return nil, os.ErrNotExist
}

func TestPathSourceRoundtrip(t *testing.T) {
	sid := ident.Source("/tmp/fake/foo", ident.KindPath, "", "")
	pid := ident.Package("foo", ident.Revision("path"), sid)
	pkg := &Package{
		Summary: Summary{Id: pid},
		Root:    t.TempDir(),
	}

	s := NewPathSource(pkg)
	versions, err := s.ListVersions()
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 || versions[0] != pathRevision {
		t.Fatalf("expected exactly the synthetic path revision, got %v", versions)
	}

	got, err := s.Package("foo", pathRevision)
	if err != nil {
		t.Fatal(err)
	}
	if got != pkg {
		t.Fatalf("expected the same *Package back")
	}

	if _, err := s.Package("bar", pathRevision); err == nil {
		t.Fatalf("expected error for mismatched name")
	}
}

func TestPathSourceExportTo(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "lib.rs"), []byte("fn x(){}"), 0o644); err != nil {
		t.Fatal(err)
	}
	sid := ident.Source(root, ident.KindPath, "", "")
	pkg := &Package{
		Summary: Summary{Id: ident.Package("foo", pathRevision, sid)},
		Root:    root,
	}
	s := NewPathSource(pkg)

	dst := t.TempDir()
	if err := s.ExportTo(pathRevision, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dst, "lib.rs")); err != nil {
		t.Fatalf("expected exported file, got %v", err)
	}
}

func TestDirectorySourceListsVersionDirs(t *testing.T) {
	root := t.TempDir()
	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		if err := os.MkdirAll(filepath.Join(root, v), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	loader := fakeLoader{pkgs: map[string]*Package{}}
	s := NewDirectorySource(root, loader)

	versions, err := s.ListVersions()
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d: %v", len(versions), versions)
	}
}

func TestDirectorySourcePackage(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "1.0.0"), 0o755); err != nil {
		t.Fatal(err)
	}

	sid := ident.Source(root, ident.KindLocalRegistry, "", "")
	v, _ := ident.NewSemVersion("1.0.0")
	want := &Package{Summary: Summary{Id: ident.Package("foo", v, sid)}}

	loader := fakeLoader{pkgs: map[string]*Package{"foo@1.0.0": want}}
	s := NewDirectorySource(root, loader)

	got, err := s.Package("foo", v)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("expected loader's package back")
	}

	if _, err := s.Package("foo", ident.Revision("9.9.9")); err == nil {
		t.Fatalf("expected error for missing version directory")
	}
}
