package source

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Masterminds/vcs"
	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/pkg/errors"
)

// PackageLoader reads a package's manifest (registry data: name, targets,
// dependencies, features) from a checked-out directory. Manifest file
// syntax parsing is a separate collaborator; this interface is the
// seam a real TOML parser plugs into, mirroring golang-dep's
// ProjectAnalyzer.
type PackageLoader interface {
	Load(root, name string, v ident.Version) (*Package, error)
}

// GitSource is a git remote, checked out once into cacheDir and
// updated on demand; grounded on vcs_source.go/vcs_repo.go's
// wrapping of Masterminds/vcs.
type GitSource struct {
	url      string
	cacheDir string
	loader   PackageLoader

	mu       sync.Mutex
	repo     vcs.Repo
	fetched  bool
	versions []ident.Version
	revOf    map[ident.Version]string // Version (tag or branch) -> commit
}

func NewGitSource(url, cacheDir string, loader PackageLoader) (*GitSource, error) {
	local := filepath.Join(cacheDir, "sources", sanitizeURL(url))
	repo, err := vcs.NewGitRepo(url, local)
	if err != nil {
		return nil, errors.Wrapf(err, "creating git repo handle for %s", url)
	}
	return &GitSource{
		url:      url,
		cacheDir: cacheDir,
		loader:   loader,
		repo:     repo,
		revOf:    make(map[ident.Version]string),
	}, nil
}

func sanitizeURL(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

func (s *GitSource) ensureFetched() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched {
		return nil
	}

	if !s.repo.CheckLocal() {
		if err := s.repo.Get(); err != nil {
			return errors.Wrapf(err, "cloning %s", s.url)
		}
	} else if err := s.repo.Update(); err != nil {
		return errors.Wrapf(err, "updating %s", s.url)
	}

	tags, err := s.repo.Tags()
	if err != nil {
		return errors.Wrapf(err, "listing tags for %s", s.url)
	}
	for _, tag := range tags {
		v, err := ident.NewSemVersion(tag)
		if err != nil {
			continue // non-semver tag, not a candidate version
		}
		s.versions = append(s.versions, v)
		commit, err := s.repo.CommitInfo(tag)
		if err == nil {
			s.revOf[v] = commit.Commit
		}
	}

	branches, err := s.repo.Branches()
	if err != nil {
		return errors.Wrapf(err, "listing branches for %s", s.url)
	}
	for _, b := range branches {
		commit, err := s.repo.CommitInfo(b)
		if err != nil {
			continue
		}
		rev := ident.Revision(commit.Commit)
		s.versions = append(s.versions, rev)
		s.revOf[rev] = commit.Commit
	}

	sort.Slice(s.versions, func(i, j int) bool {
		return s.versions[i].String() < s.versions[j].String()
	})
	s.fetched = true
	return nil
}

func (s *GitSource) ListVersions() ([]ident.Version, error) {
	if err := s.ensureFetched(); err != nil {
		return nil, err
	}
	return s.versions, nil
}

func (s *GitSource) checkout(v ident.Version) error {
	rev, ok := s.revOf[v]
	if !ok {
		return errors.Errorf("no known revision for version %s of %s", v, s.url)
	}
	return s.repo.UpdateVersion(rev)
}

func (s *GitSource) Summary(name string, v ident.Version) (Summary, error) {
	pkg, err := s.Package(name, v)
	if err != nil {
		return Summary{}, err
	}
	return pkg.Summary, nil
}

func (s *GitSource) Package(name string, v ident.Version) (*Package, error) {
	if err := s.ensureFetched(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkout(v); err != nil {
		return nil, err
	}
	pkg, err := s.loader.Load(s.repo.LocalPath(), name, v)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s@%s from %s", name, v, s.url)
	}
	return pkg, nil
}

func (s *GitSource) ExportTo(v ident.Version, dir string) error {
	if err := s.ensureFetched(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkout(v); err != nil {
		return err
	}
	return copyTree(s.repo.LocalPath(), dir)
}

// PreciseFor reports the resolved commit backing v, for building an
// immutable ident.SourceId once a version has been selected.
func (s *GitSource) PreciseFor(v ident.Version) (string, error) {
	if err := s.ensureFetched(); err != nil {
		return "", err
	}
	rev, ok := s.revOf[v]
	if !ok {
		return "", fmt.Errorf("no known revision for version %s", v)
	}
	return rev, nil
}
