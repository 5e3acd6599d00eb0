// Package manifest parses a Cargo.toml-shaped file into the
// source.Package record the rest of the system consumes, the concrete
// ManifestSource the root orchestrator needs to be runnable end-to-end
// rather than only reachable from a test fixture.
//
// Grounded on golang-dep's manifest.go/toml.go split: a `raw*` wire
// shape tagged for TOML unmarshaling, converted into the typed record
// (here source.Package) the rest of the system consumes, the same
// division internal/locktoml already uses for the lockfile.
package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
)

// Name is the on-disk filename this package reads, mirroring
// locktoml.LockName's naming convention for the lockfile it pairs with.
const Name = "Cargo.toml"

// pathRevision mirrors source.PathSource's and workspace.Workspace's
// own synthetic version: a manifest loaded straight off disk has
// exactly one copy to report, never a range of versions a registry
// would offer.
const pathRevision = ident.Revision("path")

// DefaultRegistry is the source an ordinary `name = "1.2"` dependency
// line resolves against absent an explicit path/git table — this
// repository's one well-known registry, grounded on golang-dep's own
// single-implicit-source model (every import path maps to exactly one
// deducible network location without per-dependency configuration).
var DefaultRegistry = ident.Source("https://crates.io", ident.KindRegistry, "", "")

type rawManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Edition string `toml:"edition"`
		Links   string `toml:"links"`
		Build   string `toml:"build"`
	} `toml:"package"`
	Lib struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"lib"`
	Bin               []rawTarget            `toml:"bin"`
	Example           []rawTarget            `toml:"example"`
	Test              []rawTarget            `toml:"test"`
	Bench             []rawTarget            `toml:"bench"`
	Dependencies      map[string]interface{} `toml:"dependencies"`
	BuildDependencies map[string]interface{} `toml:"build-dependencies"`
	DevDependencies   map[string]interface{} `toml:"dev-dependencies"`
	Features          map[string][]string    `toml:"features"`
	Workspace         *rawWorkspace           `toml:"workspace"`
}

// rawWorkspace is a root manifest's `[workspace]` table: glob patterns
// (relative to the manifest's directory) naming member package
// directories, and an optional subset of those a bare `cargo build`
// (no `-p`/`--workspace`) targets.
type rawWorkspace struct {
	Members []string `toml:"members"`
	Default []string `toml:"default-members"`
}

// WorkspaceMembers reports the member-directory glob patterns declared
// by path's `[workspace]` table, if any. ok is false for an ordinary
// package manifest with no such table, distinguishing "not a workspace
// root" from "a workspace root with zero members" (which Load's own
// caller, not this function, should reject).
func WorkspaceMembers(path string) (members, defaultMembers []string, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, false, errors.Wrapf(err, "reading manifest %s", path)
	}
	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, nil, false, errors.Wrapf(err, "parsing manifest %s as TOML", path)
	}
	if raw.Workspace == nil {
		return nil, nil, false, nil
	}
	return raw.Workspace.Members, raw.Workspace.Default, true, nil
}

type rawTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Reader implements the root package's ManifestSource contract.
type Reader struct{}

func (Reader) Load(path string) (*source.Package, error) {
	return Load(path)
}

// Load parses the Cargo.toml at path into a source.Package: its
// identity, its dependency edges by kind (normal/build/dev), its
// feature table, and its targets (explicit declarations plus the
// src/lib.rs, src/main.rs and build.rs path conventions Cargo itself
// falls back to when a target isn't declared).
func Load(path string) (*source.Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}

	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing manifest %s as TOML", path)
	}
	if raw.Package.Name == "" {
		return nil, errors.Errorf("manifest %s: [package].name is required", path)
	}

	root := filepath.Dir(path)
	sid := ident.Source(root, ident.KindPath, "", "")
	id := ident.Package(raw.Package.Name, pathRevision, sid)

	deps, err := allDependencies(path, raw)
	if err != nil {
		return nil, err
	}

	return &source.Package{
		Summary: source.Summary{
			Id:           id,
			Dependencies: deps,
			Features:     featureTable(raw.Features),
			LinksName:    raw.Package.Links,
		},
		Root:    root,
		Edition: raw.Package.Edition,
		Targets: targets(raw, root),
	}, nil
}

func featureTable(raw map[string][]string) map[string]source.FeatureRule {
	out := make(map[string]source.FeatureRule, len(raw))
	for name, rule := range raw {
		out[name] = source.FeatureRule(rule)
	}
	return out
}

// targets assembles the declared bin/example/test/bench targets plus
// the implicit lib/bin/build-script targets Cargo infers from
// well-known paths when the manifest doesn't declare them explicitly.
func targets(raw rawManifest, root string) []source.Target {
	var out []source.Target

	libName := raw.Lib.Name
	if libName == "" {
		libName = raw.Package.Name
	}
	libPath := raw.Lib.Path
	if libPath == "" {
		libPath = "src/lib.rs"
	}
	if fileExists(filepath.Join(root, libPath)) {
		out = append(out, source.Target{Name: libName, Kind: source.TargetLib, Path: libPath})
	}

	for _, t := range raw.Bin {
		out = append(out, source.Target{Name: t.Name, Kind: source.TargetBin, Path: orDefault(t.Path, "src/bin/"+t.Name+".rs")})
	}
	if len(raw.Bin) == 0 && fileExists(filepath.Join(root, "src/main.rs")) {
		out = append(out, source.Target{Name: raw.Package.Name, Kind: source.TargetBin, Path: "src/main.rs"})
	}

	for _, t := range raw.Example {
		out = append(out, source.Target{Name: t.Name, Kind: source.TargetExample, Path: orDefault(t.Path, "examples/"+t.Name+".rs")})
	}
	for _, t := range raw.Test {
		out = append(out, source.Target{Name: t.Name, Kind: source.TargetTest, Path: orDefault(t.Path, "tests/"+t.Name+".rs")})
	}
	for _, t := range raw.Bench {
		out = append(out, source.Target{Name: t.Name, Kind: source.TargetBench, Path: orDefault(t.Path, "benches/"+t.Name+".rs")})
	}

	buildPath := raw.Package.Build
	if buildPath == "" {
		buildPath = "build.rs"
	}
	if fileExists(filepath.Join(root, buildPath)) {
		out = append(out, source.Target{Name: "build-script-build", Kind: source.TargetBuildScript, Path: buildPath})
	}

	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// allDependencies merges the three dependency tables into one sorted
// edge list, tagging each with its DependencyKind.
func allDependencies(path string, raw rawManifest) ([]source.Dependency, error) {
	var deps []source.Dependency

	add := func(table map[string]interface{}, kind source.DependencyKind) error {
		names := make([]string, 0, len(table))
		for name := range table {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dep, err := parseDependency(path, name, table[name], kind)
			if err != nil {
				return err
			}
			deps = append(deps, dep)
		}
		return nil
	}

	if err := add(raw.Dependencies, source.KindNormal); err != nil {
		return nil, err
	}
	if err := add(raw.BuildDependencies, source.KindBuild); err != nil {
		return nil, err
	}
	if err := add(raw.DevDependencies, source.KindDev); err != nil {
		return nil, err
	}
	return deps, nil
}

// parseDependency interprets one dependency table entry, which TOML
// hands back as either a bare version string or a nested table of
// properties — Cargo's own shorthand-vs-detailed dependency syntax.
func parseDependency(manifestPath, name string, raw interface{}, kind source.DependencyKind) (source.Dependency, error) {
	switch v := raw.(type) {
	case string:
		c, err := source.ParseSemverConstraint(v)
		if err != nil {
			return source.Dependency{}, errors.Wrapf(err, "manifest %s: dependency %q", manifestPath, name)
		}
		return source.Dependency{
			Name:                name,
			Source:              DefaultRegistry,
			Requirement:         c,
			Kind:                kind,
			UsesDefaultFeatures: true,
		}, nil
	case map[string]interface{}:
		return parseDependencyTable(manifestPath, name, v, kind)
	default:
		return source.Dependency{}, errors.Errorf("manifest %s: dependency %q has an unrecognized shape %T", manifestPath, name, raw)
	}
}

func parseDependencyTable(manifestPath, name string, t map[string]interface{}, kind source.DependencyKind) (source.Dependency, error) {
	dep := source.Dependency{Name: name, Kind: kind, UsesDefaultFeatures: true}

	if realName, ok := stringField(t, "package"); ok {
		dep.Rename = name
		dep.Name = realName
	}
	if optional, ok := boolField(t, "optional"); ok {
		dep.Optional = optional
	}
	if useDefault, ok := boolField(t, "default-features"); ok {
		dep.UsesDefaultFeatures = useDefault
	}
	dep.FeaturesRequested = stringListField(t, "features")

	switch {
	case hasField(t, "path"):
		p, _ := stringField(t, "path")
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(filepath.Dir(manifestPath), p)
		}
		dep.Source = ident.Source(abs, ident.KindPath, "", "")
		dep.Requirement = source.Any()
	case hasField(t, "git"):
		url, _ := stringField(t, "git")
		branch, _ := stringField(t, "branch")
		if rev, ok := stringField(t, "rev"); ok {
			dep.Source = ident.Source(url, ident.KindGit, branch, "")
			dep.Requirement = source.ExactRevision{Rev: ident.Revision(rev)}
		} else {
			dep.Source = ident.Source(url, ident.KindGit, branch, "")
			dep.Requirement = source.Any()
		}
	default:
		dep.Source = DefaultRegistry
		version, ok := stringField(t, "version")
		if !ok {
			return source.Dependency{}, errors.Errorf("manifest %s: dependency %q has no version, path, or git source", manifestPath, name)
		}
		c, err := source.ParseSemverConstraint(version)
		if err != nil {
			return source.Dependency{}, errors.Wrapf(err, "manifest %s: dependency %q", manifestPath, name)
		}
		dep.Requirement = c
	}

	return dep, nil
}

func hasField(t map[string]interface{}, key string) bool {
	_, ok := t[key]
	return ok
}

func stringField(t map[string]interface{}, key string) (string, bool) {
	v, ok := t[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(t map[string]interface{}, key string) (bool, bool) {
	v, ok := t[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func stringListField(t map[string]interface{}, key string) []string {
	v, ok := t[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
