package unit

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// UnitGraph is the acyclic dependency graph of compile units. Nodes are
// deduplicated by Unit.key() so diamond dependencies (two consumers of
// the same (package, kind, mode, profile) unit) share one Unit, the
// way Cargo's own unit graph shares a `.rlib` build across consumers.
type UnitGraph struct {
	g      *simple.DirectedGraph
	byKey  map[string]*Unit
	deps   map[int64][]UnitDep // node id -> its outgoing UnitDeps, extern-name order preserved
	nextID int64
}

// Roots named by PackageId.Key() are the units the caller explicitly
// requested; every other unit exists only because some root transitively
// needs it.
type Roots struct {
	Units []*Unit
}

func newGraph() *UnitGraph {
	return &UnitGraph{
		g:     simple.NewDirectedGraph(),
		byKey: make(map[string]*Unit),
		deps:  make(map[int64][]UnitDep),
	}
}

// getOrCreate returns the existing Unit matching u's identity fields,
// or inserts u (assigning it a graph node id) and returns it.
func (ug *UnitGraph) getOrCreate(u *Unit) *Unit {
	key := u.key()
	if existing, ok := ug.byKey[key]; ok {
		return existing
	}
	u.id = ug.nextID
	ug.nextID++
	ug.byKey[key] = u
	ug.g.AddNode(u)
	return u
}

// addDep records that from depends on dep.To, wiring both the plain
// graph edge (for topo ordering/cycle checks) and the richer UnitDep
// metadata gonum's edge type has no room for.
func (ug *UnitGraph) addDep(from *Unit, dep UnitDep) {
	for _, existing := range ug.deps[from.ID()] {
		if existing.To == dep.To {
			return // already wired
		}
	}
	ug.deps[from.ID()] = append(ug.deps[from.ID()], dep)
	if !ug.g.HasEdgeFromTo(from.ID(), dep.To.ID()) {
		ug.g.SetEdge(ug.g.NewEdge(from, dep.To))
	}
}

// Deps returns u's outgoing dependencies in deterministic (extern-name)
// order.
func (ug *UnitGraph) Deps(u *Unit) []UnitDep {
	deps := append([]UnitDep(nil), ug.deps[u.ID()]...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].ExternName < deps[j].ExternName })
	return deps
}

// Units returns every unit in the graph, ordered by key for
// deterministic iteration.
func (ug *UnitGraph) Units() []*Unit {
	out := make([]*Unit, 0, len(ug.byKey))
	for _, u := range ug.byKey {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// TopoSorted returns units in dependency-then-dependent order (a
// dependency always precedes everything that depends on it), breaking
// ties by PackageId so build logs are deterministic. A cycle is
// reported as an error rather than broken, since the resolve and
// lowering layers are built never to introduce one.
func (ug *UnitGraph) TopoSorted() ([]*Unit, error) {
	sorted, err := topo.SortStabilized(ug.g, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].(*Unit).key() < nodes[j].(*Unit).key()
		})
	})
	if err != nil {
		return nil, &cycleError{err: err}
	}

	// topo.Sort(Stabilized) over a "from depends on to" edge direction
	// (as wired here: edge A->B means "A depends on B") yields
	// dependents before dependencies; reverse so dependencies come
	// first, matching the scheduler's Waiting->Ready contract.
	out := make([]*Unit, len(sorted))
	for i, n := range sorted {
		out[len(sorted)-1-i] = n.(*Unit)
	}
	return out, nil
}

type cycleError struct{ err error }

func (e *cycleError) Error() string {
	return "unit graph contains a cycle, which is forbidden: " + e.err.Error()
}

func (e *cycleError) Unwrap() error { return e.err }
