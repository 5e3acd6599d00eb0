package resolve

import (
	"fmt"
	"testing"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/registry"
	"github.com/ngiloq6/cargo/internal/source"
)

// fakeSource hosts every version of exactly one package name, mirroring
// the one-source-per-name shape the registry package's own tests use
// (registry_test.go's mkSource): each dependency's Source id is scoped
// to the specific package it names, the way a resolved git or path
// source id always is, and the way a real crates-style registry would
// be modeled per-package by the network collaborator sitting behind
// this same Source interface.
type fakeSource struct {
	versions []ident.Version
	sums     map[string]source.Summary
}

func (f *fakeSource) ListVersions() ([]ident.Version, error) { return f.versions, nil }
func (f *fakeSource) Summary(name string, v ident.Version) (source.Summary, error) {
	return f.sums[v.String()], nil
}
func (f *fakeSource) Package(name string, v ident.Version) (*source.Package, error) { return nil, nil }
func (f *fakeSource) ExportTo(ident.Version, string) error                          { return nil }

type testRegistry struct {
	t   *testing.T
	reg *registry.Registry
}

func newTestRegistry(t *testing.T) *testRegistry {
	return &testRegistry{t: t, reg: registry.New(registry.PreferLatest)}
}

// addPackage registers one version of name, returning the SourceId
// dependents should use to refer to it.
func (tr *testRegistry) addPackage(name, vs string, sum source.Summary) *ident.SourceId {
	tr.t.Helper()
	sid := ident.Source(fmt.Sprintf("registry://crates.test/%s", name), ident.KindRegistry, "", "")

	var fs *fakeSource
	if existing, ok := tr.reg.SourceFor(sid); ok {
		fs = existing.(*fakeSource)
	} else {
		fs = &fakeSource{sums: make(map[string]source.Summary)}
		tr.reg.AddSource(sid, fs)
	}

	v, err := ident.NewSemVersion(vs)
	if err != nil {
		tr.t.Fatal(err)
	}
	sum.Id = ident.Package(name, v, sid)
	fs.versions = append(fs.versions, v)
	fs.sums[vs] = sum
	return sid
}

func mustReq(t *testing.T, s string) source.Constraint {
	t.Helper()
	c, err := source.ParseSemverConstraint(s)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func dep(t *testing.T, name string, sid *ident.SourceId, req string) source.Dependency {
	return source.Dependency{
		Name:                name,
		Source:              sid,
		Requirement:         mustReq(t, req),
		UsesDefaultFeatures: true,
	}
}

func rootPackage(name string, deps ...source.Dependency) *source.Package {
	sid := ident.Source("/workspace/"+name, ident.KindPath, "", "")
	v := ident.Revision("path")
	return &source.Package{
		Summary: source.Summary{
			Id:           ident.Package(name, v, sid),
			Dependencies: deps,
		},
		Root: "/workspace/" + name,
	}
}

func TestSolveLinearChain(t *testing.T) {
	tr := newTestRegistry(t)
	bSid := tr.addPackage("b", "1.0.0", source.Summary{})
	aSid := tr.addPackage("a", "1.0.0", source.Summary{
		Dependencies: []source.Dependency{dep(t, "b", bSid, "^1.0.0")},
	})

	root := rootPackage("root", dep(t, "a", aSid, "^1.0.0"))
	res, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Selections) != 3 {
		t.Fatalf("expected root+a+b selected, got %d: %v", len(res.Selections), res.SortedKeys())
	}
}

func TestSolveDeterministic(t *testing.T) {
	tr := newTestRegistry(t)
	aSid := tr.addPackage("a", "1.0.0", source.Summary{})
	bSid := tr.addPackage("b", "1.0.0", source.Summary{})

	root := rootPackage("root", dep(t, "a", aSid, "*"), dep(t, "b", bSid, "*"))

	res1, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err != nil {
		t.Fatal(err)
	}
	tr.reg.Reset()
	res2, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err != nil {
		t.Fatal(err)
	}
	if !res1.Equal(res2) {
		t.Fatalf("expected repeated solves of the same input to produce equal resolves")
	}
}

func TestSolveCoalescesSharedDependency(t *testing.T) {
	tr := newTestRegistry(t)
	sharedSid := tr.addPackage("shared", "1.2.0", source.Summary{})
	aSid := tr.addPackage("a", "1.0.0", source.Summary{
		Dependencies: []source.Dependency{dep(t, "shared", sharedSid, "^1.0.0")},
	})
	bSid := tr.addPackage("b", "1.0.0", source.Summary{
		Dependencies: []source.Dependency{dep(t, "shared", sharedSid, "^1.2.0")},
	})

	root := rootPackage("root", dep(t, "a", aSid, "*"), dep(t, "b", bSid, "*"))
	res, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err != nil {
		t.Fatal(err)
	}

	var sharedCount int
	for _, sel := range res.Selections {
		if sel.Id.Name == "shared" {
			sharedCount++
		}
	}
	if sharedCount != 1 {
		t.Fatalf("expected exactly one selected version of the shared dependency, got %d", sharedCount)
	}
}

func TestSolveCompatClassesCoexist(t *testing.T) {
	tr := newTestRegistry(t)
	libSid := tr.addPackage("lib", "1.0.0", source.Summary{})
	tr.addPackage("lib", "2.0.0", source.Summary{})
	aSid := tr.addPackage("a", "1.0.0", source.Summary{
		Dependencies: []source.Dependency{dep(t, "lib", libSid, "^1.0.0")},
	})
	bSid := tr.addPackage("b", "1.0.0", source.Summary{
		Dependencies: []source.Dependency{dep(t, "lib", libSid, "^2.0.0")},
	})

	root := rootPackage("root", dep(t, "a", aSid, "*"), dep(t, "b", bSid, "*"))
	res, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err != nil {
		t.Fatal(err)
	}

	var libVersions []string
	for _, sel := range res.Selections {
		if sel.Id.Name == "lib" {
			libVersions = append(libVersions, sel.Id.Version.String())
		}
	}
	if len(libVersions) != 2 {
		t.Fatalf("expected both major versions of lib to coexist, got %v", libVersions)
	}
}

func TestSolveLinksConflictFails(t *testing.T) {
	tr := newTestRegistry(t)
	aSid := tr.addPackage("a", "1.0.0", source.Summary{LinksName: "openssl"})
	bSid := tr.addPackage("b", "1.0.0", source.Summary{LinksName: "openssl"})

	root := rootPackage("root", dep(t, "a", aSid, "*"), dep(t, "b", bSid, "*"))
	_, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err == nil {
		t.Fatalf("expected a links conflict to make the resolution fail")
	}
}

func TestSolveOptionalDependencyActivatedByFeature(t *testing.T) {
	tr := newTestRegistry(t)
	extraSid := tr.addPackage("extra", "1.0.0", source.Summary{})
	extraDep := dep(t, "extra", extraSid, "*")
	extraDep.Optional = true
	aSid := tr.addPackage("a", "1.0.0", source.Summary{
		Dependencies: []source.Dependency{extraDep},
		Features: map[string]source.FeatureRule{
			"extra-feature": {"extra"},
		},
	})

	aDep := dep(t, "a", aSid, "*")
	aDep.FeaturesRequested = []string{"extra-feature"}
	root := rootPackage("root", aDep)

	res, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err != nil {
		t.Fatal(err)
	}
	var sawExtra bool
	for _, sel := range res.Selections {
		if sel.Id.Name == "extra" {
			sawExtra = true
		}
	}
	if !sawExtra {
		t.Fatalf("expected requesting extra-feature to pull in the optional dependency it names")
	}
}

func TestSolveMissingCandidateReportsError(t *testing.T) {
	tr := newTestRegistry(t)
	aSid := tr.addPackage("a", "1.0.0", source.Summary{})

	root := rootPackage("root", dep(t, "a", aSid, "^2.0.0"))
	_, err := Solve(Params{Root: root, Registry: tr.reg, Policy: registry.PreferLatest})
	if err == nil {
		t.Fatalf("expected unsatisfiable requirement to fail resolution")
	}
	if _, ok := err.(*noCandidateError); !ok {
		t.Fatalf("expected *noCandidateError, got %T: %v", err, err)
	}
}
