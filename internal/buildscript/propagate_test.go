package buildscript

import (
	"testing"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/resolve"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
)

func testPkg(name string, targets ...source.Target) *source.Package {
	sid := ident.Source("/workspace/"+name, ident.KindPath, "", "")
	return &source.Package{
		Summary: source.Summary{Id: ident.Package(name, ident.Revision("path-"+name), sid)},
		Targets: targets,
	}
}

func libT() source.Target { return source.Target{Name: "lib", Kind: source.TargetLib} }
func binT(name string) source.Target {
	return source.Target{Name: name, Kind: source.TargetBin}
}
func buildScriptT() source.Target {
	return source.Target{Name: "build-script-build", Kind: source.TargetBuildScript}
}

func loaderFrom(pkgs ...*source.Package) unit.PackageLoader {
	byKey := make(map[string]*source.Package)
	for _, p := range pkgs {
		byKey[p.Id.Key()] = p
	}
	return func(id *ident.PackageId) (*source.Package, error) {
		p, ok := byKey[id.Key()]
		if ok {
			return p, nil
		}
		return nil, errNotFoundForTest(id)
	}
}

type notFoundForTest struct{ id *ident.PackageId }

func (e notFoundForTest) Error() string { return "package not found: " + e.id.String() }
func errNotFoundForTest(id *ident.PackageId) error { return notFoundForTest{id: id} }

// buildGraphWithBuildAndPlugin returns a small graph: root has a build
// script, which depends (as a build-dependency) on codegen, which
// itself has a normal dependency on helper. root's bin unit also
// normally depends on root's own lib target.
func buildGraphWithBuildAndPlugin(t *testing.T) (*unit.UnitGraph, *unit.Unit) {
	t.Helper()
	helper := testPkg("helper", libT())
	codegen := testPkg("codegen", libT())
	root := testPkg("root", binT("root"), libT(), buildScriptT())

	res := &resolve.Resolve{Selections: map[string]*resolve.Selection{
		helper.Id.Key(): {Id: helper.Id, Features: map[string]bool{}},
		codegen.Id.Key(): {Id: codegen.Id, Features: map[string]bool{}, Edges: []resolve.Edge{
			{To: helper.Id, ExternName: "helper", Kind: source.KindNormal, Public: true},
		}},
		root.Id.Key(): {Id: root.Id, Features: map[string]bool{}, Edges: []resolve.Edge{
			{To: codegen.Id, ExternName: "codegen", Kind: source.KindBuild, Public: false},
		}},
	}}

	l := &unit.Lowerer{Resolve: res, Load: loaderFrom(helper, codegen, root), Platform: unit.Host()}
	ug, _, err := l.Lower([]unit.RootRequest{{Pkg: root.Id, Modes: []unit.CompileMode{unit.Build}}})
	if err != nil {
		t.Fatal(err)
	}

	var binUnit *unit.Unit
	for _, u := range ug.Units() {
		if u.Pkg.Name == "root" && u.Target.Kind == source.TargetBin {
			binUnit = u
		}
	}
	if binUnit == nil {
		t.Fatal("expected a root bin unit")
	}
	return ug, binUnit
}

func TestPropagatorAddsOwnBuildScriptToLink(t *testing.T) {
	ug, binUnit := buildGraphWithBuildAndPlugin(t)
	p := NewPropagator(ug)
	prop := p.For(binUnit)

	var sawRoot bool
	for _, t2 := range prop.ToLink {
		if t2.Pkg.Name == "root" {
			sawRoot = true
		}
	}
	if !sawRoot {
		t.Fatalf("expected root's own build-script output to be in ToLink, got %v", prop.ToLink)
	}
}

func TestPropagatorPutsBuildDependenciesInPlugins(t *testing.T) {
	ug, binUnit := buildGraphWithBuildAndPlugin(t)
	p := NewPropagator(ug)
	prop := p.For(binUnit)

	for _, t2 := range prop.ToLink {
		if t2.Pkg.Name == "codegen" || t2.Pkg.Name == "helper" {
			t.Fatalf("expected build-dependency packages to stay out of ToLink, found %s", t2.Pkg.Name)
		}
	}

	// root's build-script compile unit carries the plugin propagation;
	// find it and confirm codegen (root's build-dependency) surfaces in
	// its Plugins.
	var compileUnit *unit.Unit
	for _, u := range ug.Units() {
		if u.Target.Kind == source.TargetBuildScript && u.Mode == unit.Build {
			compileUnit = u
		}
	}
	if compileUnit == nil {
		t.Fatal("expected a build-script compile unit for root")
	}
	compileProp := p.For(compileUnit)
	var sawCodegen bool
	for _, t2 := range compileProp.Plugins {
		if t2.Pkg.Name == "codegen" {
			sawCodegen = true
		}
	}
	if !sawCodegen {
		t.Fatalf("expected codegen to surface in the build-script compile unit's Plugins, got %v", compileProp.Plugins)
	}
}

func TestPropagatorIsMemoizedPerUnit(t *testing.T) {
	ug, binUnit := buildGraphWithBuildAndPlugin(t)
	p := NewPropagator(ug)
	first := p.For(binUnit)
	second := p.For(binUnit)
	if len(first.ToLink) != len(second.ToLink) {
		t.Fatalf("expected repeated calls to return consistent results")
	}
}
