package source

import (
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/pkg/errors"
)

// pathRevision is the single synthetic version every path source
// exposes: there is exactly one copy of a path dependency, so there is
// nothing to choose between.
const pathRevision = ident.Revision("path")

// PathSource wraps a single, already-loaded package living at a
// filesystem path. Grounded on golang-dep's path-dependency handling
// in source_manager.go, where a ProjectManager for a path project
// never talks to a VCS and always reports exactly one version.
//
// It is mutable by nature: the fingerprint engine, not this type, is
// responsible for detecting changes via file modification times.
type PathSource struct {
	pkg *Package
}

func NewPathSource(pkg *Package) *PathSource {
	return &PathSource{pkg: pkg}
}

func (s *PathSource) ListVersions() ([]ident.Version, error) {
	return []ident.Version{pathRevision}, nil
}

func (s *PathSource) Summary(name string, v ident.Version) (Summary, error) {
	if err := s.checkVersion(name, v); err != nil {
		return Summary{}, err
	}
	return s.pkg.Summary, nil
}

func (s *PathSource) Package(name string, v ident.Version) (*Package, error) {
	if err := s.checkVersion(name, v); err != nil {
		return nil, err
	}
	return s.pkg, nil
}

func (s *PathSource) checkVersion(name string, v ident.Version) error {
	if name != s.pkg.Id.Name {
		return errors.Errorf("path source only knows package %q, asked for %q", s.pkg.Id.Name, name)
	}
	if v != pathRevision {
		return errors.Errorf("path source for %q has only the %q version, asked for %q", name, pathRevision, v)
	}
	return nil
}

// ExportTo copies the package root to dir, used when a build needs an
// isolated snapshot (e.g. for a remote worker) rather than building
// in place.
func (s *PathSource) ExportTo(v ident.Version, dir string) error {
	if v != pathRevision {
		return errors.Errorf("unknown path revision %q", v)
	}
	return copyTree(s.pkg.Root, dir)
}

func copyTree(src, dst string) error {
	return godirwalk.Walk(src, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			target := filepath.Join(dst, rel)
			if de.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			return copyFile(path, target)
		},
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copying %s to %s", src, dst)
	}
	return out.Close()
}
