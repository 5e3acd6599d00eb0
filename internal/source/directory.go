package source

import (
	"os"
	"path/filepath"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/pkg/errors"
)

// DirectorySource serves packages out of a directory laid out as
// <root>/<version>/..., one unpacked package tree per version —
// exactly the local-registry-mirror layout golang-dep's
// internal/test/registry fixtures use (one subdirectory per published
// version). This is the concrete implementation behind
// ident.KindLocalRegistry and ident.KindDirectory: a real network
// registry client would populate such a directory and this type would
// serve from it unchanged.
type DirectorySource struct {
	root   string
	loader PackageLoader
}

func NewDirectorySource(root string, loader PackageLoader) *DirectorySource {
	return &DirectorySource{root: root, loader: loader}
}

func (s *DirectorySource) ListVersions() ([]ident.Version, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory source %s", s.root)
	}
	var out []ident.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, err := ident.NewSemVersion(e.Name()); err == nil {
			out = append(out, v)
			continue
		}
		out = append(out, ident.Revision(e.Name()))
	}
	return out, nil
}

func (s *DirectorySource) versionDir(v ident.Version) string {
	return filepath.Join(s.root, v.String())
}

func (s *DirectorySource) Summary(name string, v ident.Version) (Summary, error) {
	pkg, err := s.Package(name, v)
	if err != nil {
		return Summary{}, err
	}
	return pkg.Summary, nil
}

func (s *DirectorySource) Package(name string, v ident.Version) (*Package, error) {
	dir := s.versionDir(v)
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(err, "no version %s of %s in %s", v, name, s.root)
	}
	pkg, err := s.loader.Load(dir, name, v)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s@%s from %s", name, v, dir)
	}
	return pkg, nil
}

func (s *DirectorySource) ExportTo(v ident.Version, dst string) error {
	return copyTree(s.versionDir(v), dst)
}
