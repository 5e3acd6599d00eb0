// Package resolve is a DPLL/CDCL-style backtracking
// resolver that selects one version of every required package and the
// set of active features that jointly satisfy all declared
// constraints.
//
// Grounded on golang-dep's gps solver (solver.go/selection.go/
// version_queue.go/satisfy.go): a work queue of unactivated
// dependencies, most-constrained-first selection, provisional
// activation with undo-on-failure, and a conflict cache keyed by the
// active-set fingerprint that caused a dependency to fail.
package resolve

import (
	"sort"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
)

// Edge is one resolved dependency of a selected package, naming the
// concrete package it points to and the name the parent refers to it
// by (the rename, when present).
type Edge struct {
	To         *ident.PackageId
	ExternName string
	Kind       source.DependencyKind
	Public     bool
}

// Selection is one package's place in the final Resolve: what it
// depends on, and which of its own features are active.
type Selection struct {
	Id       *ident.PackageId
	Edges    []Edge
	Features map[string]bool
	LinksName string
}

// Resolve is the persisted outcome of resolve: for every selected
// PackageId, its resolved dependency edges and activated features.
type Resolve struct {
	Root       *ident.PackageId
	Selections map[string]*Selection // keyed by PackageId.Key()
}

// Get returns the Selection for id, if selected.
func (r *Resolve) Get(id *ident.PackageId) (*Selection, bool) {
	s, ok := r.Selections[id.Key()]
	return s, ok
}

// SortedKeys returns every selected package's key in a fixed,
// byte-stable order — the basis for reproducing a byte-identical
// lockfile across runs.
func (r *Resolve) SortedKeys() []string {
	keys := make([]string, 0, len(r.Selections))
	for k := range r.Selections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether two Resolves select the exact same packages
// with the exact same edges and features — used by the resolver's
// determinism tests and by `cargo`'s "lockfile still satisfies
// manifest" check.
func (r *Resolve) Equal(o *Resolve) bool {
	if len(r.Selections) != len(o.Selections) {
		return false
	}
	for k, sel := range r.Selections {
		osel, ok := o.Selections[k]
		if !ok || !selectionEqual(sel, osel) {
			return false
		}
	}
	return true
}

func selectionEqual(a, b *Selection) bool {
	if a.Id != b.Id || len(a.Edges) != len(b.Edges) || len(a.Features) != len(b.Features) {
		return false
	}
	ae := append([]Edge(nil), a.Edges...)
	be := append([]Edge(nil), b.Edges...)
	sort.Slice(ae, func(i, j int) bool { return ae[i].ExternName < ae[j].ExternName })
	sort.Slice(be, func(i, j int) bool { return be[i].ExternName < be[j].ExternName })
	for i := range ae {
		if ae[i] != be[i] {
			return false
		}
	}
	for f, v := range a.Features {
		if b.Features[f] != v {
			return false
		}
	}
	return true
}
