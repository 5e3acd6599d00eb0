package workspace

import (
	"testing"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
)

func memberPkg(t *testing.T, root, name string) *source.Package {
	t.Helper()
	sid := ident.Source(root, ident.KindPath, "", "")
	id := ident.Package(name, pathRevision, sid)
	return &source.Package{
		Summary: source.Summary{Id: id, Features: map[string]source.FeatureRule{}},
		Root:    root,
		Targets: []source.Target{{Name: name, Kind: source.TargetLib, Path: "src/lib.rs"}},
	}
}

func TestNewRejectsEmptyAndDuplicateMembers(t *testing.T) {
	if _, err := New("/ws", nil, nil); err == nil {
		t.Fatal("expected error for zero members")
	}

	a := memberPkg(t, "/ws/a", "a")
	dup := memberPkg(t, "/ws/a2", "a")
	if _, err := New("/ws", []*source.Package{a, dup}, nil); err == nil {
		t.Fatal("expected error for duplicate member name")
	}
}

func TestVirtualRootDependsOnEveryMember(t *testing.T) {
	a := memberPkg(t, "/ws/a", "a")
	b := memberPkg(t, "/ws/b", "b")
	ws, err := New("/ws", []*source.Package{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}

	root := ws.VirtualRoot()
	if len(root.Dependencies) != 2 {
		t.Fatalf("expected 2 edges from the virtual root, got %d", len(root.Dependencies))
	}
	names := map[string]bool{}
	for _, d := range root.Dependencies {
		names[d.Name] = true
		if d.Kind != source.KindNormal {
			t.Fatalf("expected a normal edge to %s, got %s", d.Name, d.Kind)
		}
	}
	if !names["a"] || !names["b"] {
		t.Fatalf("expected edges to both a and b, got %v", root.Dependencies)
	}
}

func TestRootRequestsDefaultsToAllMembersSorted(t *testing.T) {
	a := memberPkg(t, "/ws/a", "zed")
	b := memberPkg(t, "/ws/b", "alpha")
	ws, err := New("/ws", []*source.Package{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}

	reqs, err := ws.RootRequests(nil, []unit.CompileMode{unit.Build})
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 root requests, got %d", len(reqs))
	}
	if reqs[0].Pkg.Key() > reqs[1].Pkg.Key() {
		t.Fatal("expected root requests sorted by package key")
	}
}

func TestRootRequestsNarrowedByExplicitName(t *testing.T) {
	a := memberPkg(t, "/ws/a", "a")
	b := memberPkg(t, "/ws/b", "b")
	ws, err := New("/ws", []*source.Package{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}

	reqs, err := ws.RootRequests([]string{"b"}, []unit.CompileMode{unit.Build})
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 1 || reqs[0].Pkg.Name != "b" {
		t.Fatalf("expected only member b, got %v", reqs)
	}

	if _, err := ws.RootRequests([]string{"missing"}, nil); err == nil {
		t.Fatal("expected error for an unknown member name")
	}
}

func TestNewRejectsMemberOutsideRoot(t *testing.T) {
	a := memberPkg(t, "/ws/a", "a")
	escapee := memberPkg(t, "/etc/passwd-dir", "evil")
	if _, err := New("/ws", []*source.Package{a, escapee}, nil); err == nil {
		t.Fatal("expected error for a member resolving outside the workspace root")
	}
}

func TestHasFilepathPrefix(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"/ws/a", "/ws", true},
		{"/ws/a/b", "/ws", true},
		{"/ws", "/ws", true},
		{"/wsbogus", "/ws", false},
		{"/other/a", "/ws", false},
	}
	for _, c := range cases {
		if got := hasFilepathPrefix(c.path, c.prefix); got != c.want {
			t.Errorf("hasFilepathPrefix(%q, %q) = %v, want %v", c.path, c.prefix, got, c.want)
		}
	}
}

func TestDefaultMembersTableNarrowsBareBuild(t *testing.T) {
	a := memberPkg(t, "/ws/a", "a")
	b := memberPkg(t, "/ws/b", "b")
	ws, err := New("/ws", []*source.Package{a, b}, []string{"a"})
	if err != nil {
		t.Fatal(err)
	}

	reqs, err := ws.RootRequests(nil, []unit.CompileMode{unit.Build})
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 1 || reqs[0].Pkg.Name != "a" {
		t.Fatalf("expected only default member a, got %v", reqs)
	}
}
