package resolve

import (
	"sort"
	"strings"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/registry"
	"github.com/ngiloq6/cargo/internal/source"
)

// Params holds the inputs to one Solve() run.
type Params struct {
	// Root is the workspace/package being built; its Normal, Build AND
	// Dev dependencies all enter the frontier. Dev-deps are resolved
	// only for the root — a transitive dependency's own dev-deps never
	// enter the graph.
	Root *source.Package

	Registry *registry.Registry
	Policy   registry.Policy

	// Hints carries a previously-persisted Resolve (lockfile): for any
	// package name present here and not named in ToChange/ChangeAll,
	// the resolver tries the hinted version first, before falling back
	// to the registry's normal precedence order.
	Hints     map[string]ident.Version
	ToChange  map[string]bool
	ChangeAll bool

	// TargetEval decides whether a target-gated dependency applies to
	// the platform being resolved for; nil means "always true" (no
	// gating), which is correct for a host-only resolve.
	TargetEval func(source.TargetPredicate) bool
}

func (p Params) evalTarget(t source.TargetPredicate) bool {
	if t == "" {
		return true
	}
	if p.TargetEval == nil {
		return true
	}
	return p.TargetEval(t)
}

// pending is one not-yet-activated (parent, Dependency) work item.
type pending struct {
	parent *ident.PackageId // nil for root
	dep    source.Dependency
}

// node is one provisionally (or finally) selected package.
type node struct {
	id              *ident.PackageId
	summary         source.Summary
	features        map[string]bool
	activatedOpt    map[string]bool // optional dep names already enqueued
	depsEnqueued    bool
	edges           []Edge
}

func newNode(sum source.Summary) *node {
	return &node{
		id:           sum.Id,
		summary:      sum,
		features:     make(map[string]bool),
		activatedOpt: make(map[string]bool),
	}
}

// state is the resolver's full provisional solution; clone() gives
// backtracking its undo mechanism — a fresh, independent copy is made
// before trying each candidate, so a failed branch simply discards its
// state rather than requiring an explicit undo log.
type state struct {
	byKey    map[string]*node
	byName   map[string][]*node
	links    map[string]string // linksName -> owning node key
	frontier []pending
}

func newState() state {
	return state{
		byKey:  make(map[string]*node),
		byName: make(map[string][]*node),
		links:  make(map[string]string),
	}
}

func (s state) clone() state {
	ns := state{
		byKey:    make(map[string]*node, len(s.byKey)),
		byName:   make(map[string][]*node, len(s.byName)),
		links:    make(map[string]string, len(s.links)),
		frontier: append([]pending(nil), s.frontier...),
	}
	for k, n := range s.byKey {
		nn := &node{
			id:           n.id,
			summary:      n.summary,
			features:     cloneBoolMap(n.features),
			activatedOpt: cloneBoolMap(n.activatedOpt),
			depsEnqueued: n.depsEnqueued,
			edges:        append([]Edge(nil), n.edges...),
		}
		ns.byKey[k] = nn
	}
	for name, list := range s.byName {
		nl := make([]*node, len(list))
		for i, n := range list {
			nl[i] = ns.byKey[n.id.Key()]
		}
		ns.byName[name] = nl
	}
	for k, v := range s.links {
		ns.links[k] = v
	}
	return ns
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	nm := make(map[string]bool, len(m))
	for k, v := range m {
		nm[k] = v
	}
	return nm
}

// activeSetKey is the sorted "name@version" fingerprint of everything
// currently selected, used to index the conflict cache.
func (s state) activeSetKey() string {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x1f")
}

// findSatisfying returns an already-selected node of dep's real
// package name whose version matches dep's requirement and whose
// source agrees with dep's (post-override) source, if one exists.
func (s state) findSatisfying(dep source.Dependency, effSource *ident.SourceId) *node {
	candidates := s.byName[dep.Name]
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id.Key() < candidates[j].id.Key() })
	for _, n := range candidates {
		if n.id.Source != effSource {
			continue
		}
		if dep.Requirement.Matches(n.id.Version) {
			return n
		}
	}
	return nil
}

type resolver struct {
	params  Params
	cc      *conflictCache
	rootKey string
}

// Solve runs a DPLL/CDCL-style backtracking search to completion, or
// returns the error of the shallowest dependency whose every candidate
// failed, which lists each tried candidate's own (possibly nested)
// failure.
func Solve(p Params) (*Resolve, error) {
	r := &resolver{params: p, cc: newConflictCache()}

	st := newState()
	root := newNode(p.Root.Summary)
	root.depsEnqueued = true
	r.rootKey = root.id.Key()
	st.byKey[root.id.Key()] = root
	st.byName[root.id.Name] = []*node{root}
	if root.summary.LinksName != "" {
		st.links[root.summary.LinksName] = root.id.Key()
	}

	for _, d := range p.Root.Dependencies {
		if d.Optional {
			continue // root's optional deps are skipped; Solve activates none of root's own features (its default feature set included), so nothing pulls them in
		}
		if !p.evalTarget(d.Target) {
			continue
		}
		st.frontier = append(st.frontier, pending{parent: nil, dep: d})
	}

	final, err := r.solve(st)
	if err != nil {
		return nil, err
	}
	return r.materialize(final), nil
}

func (r *resolver) solve(st state) (state, error) {
	if len(st.frontier) == 0 {
		return st, nil
	}

	idx, err := r.pickMostConstrained(st)
	if err != nil {
		return state{}, err
	}
	p := st.frontier[idx]

	next := st.clone()
	next.frontier = append(append([]pending(nil), st.frontier[:idx]...), st.frontier[idx+1:]...)

	effSource := r.params.Registry.EffectiveSource(p.dep.Source)

	if existing := next.findSatisfying(p.dep, effSource); existing != nil {
		if err := r.mergeFeatures(&next, existing, p.dep); err != nil {
			return state{}, err
		}
		return r.solve(next)
	}

	activeKey := next.activeSetKey()
	depKey := p.dep.Name + "|" + p.dep.Requirement.String() + "|" + effSource.FullKey()
	if r.cc.hit(depKey, activeKey) {
		return state{}, &noCandidateError{dep: p.dep}
	}

	candidates, err := r.params.Registry.Query(p.dep)
	if err != nil {
		return state{}, err
	}
	r.preferHinted(p.dep.Name, candidates)

	var tried []triedCandidate
	for _, cand := range candidates {
		branch := next.clone()
		n, err := r.tryActivate(&branch, cand)
		if err != nil {
			tried = append(tried, triedCandidate{id: cand.Summary.Id, err: err})
			continue
		}
		if err := r.mergeFeatures(&branch, n, p.dep); err != nil {
			tried = append(tried, triedCandidate{id: cand.Summary.Id, err: err})
			continue
		}
		result, err := r.solve(branch)
		if err == nil {
			return result, nil
		}
		tried = append(tried, triedCandidate{id: cand.Summary.Id, err: err})
	}

	r.cc.record(depKey, activeKey)
	return state{}, &noCandidateError{dep: p.dep, tried: tried}
}

// pickMostConstrained selects the frontier index with the fewest
// remaining candidates, ties broken by earliest insertion.
// Dependencies already satisfied by an existing selection count as a
// single trivial candidate, so they are picked ahead of any dependency
// with two or more candidates.
func (r *resolver) pickMostConstrained(st state) (int, error) {
	best := -1
	bestCount := -1
	for i, p := range st.frontier {
		effSource := r.params.Registry.EffectiveSource(p.dep.Source)
		var count int
		if st.findSatisfying(p.dep, effSource) != nil {
			count = 1
		} else {
			cands, err := r.params.Registry.Query(p.dep)
			if err != nil {
				return 0, err
			}
			count = len(cands)
		}
		if best == -1 || count < bestCount {
			best, bestCount = i, count
		}
	}
	return best, nil
}

// preferHinted moves the candidate matching a prior lockfile selection
// to the front of cands, so a re-resolve with no manifest change
// reproduces the same selection instead of drifting to a newer
// version the registry's default ordering would otherwise prefer. A
// name listed in ToChange, or ChangeAll, opts out and lets normal
// precedence stand.
func (r *resolver) preferHinted(name string, cands []registry.Candidate) {
	if r.params.Hints == nil || r.params.ChangeAll || r.params.ToChange[name] {
		return
	}
	hint, ok := r.params.Hints[name]
	if !ok {
		return
	}
	for i, c := range cands {
		if c.Summary.Id.Version.String() == hint.String() {
			cands[0], cands[i] = cands[i], cands[0]
			return
		}
	}
}

// tryActivate provisionally selects cand, enforcing coexistence and
// links-uniqueness activation rules before any feature expansion
// happens.
func (r *resolver) tryActivate(st *state, cand registry.Candidate) (*node, error) {
	id := cand.Summary.Id

	for _, existing := range st.byName[id.Name] {
		if existing.id == id {
			return existing, nil
		}
		if !ident.CompatibleClasses(existing.id.Version, id.Version) {
			return nil, &compatClassConflictError{name: id.Name, existing: existing.id, incoming: id}
		}
	}

	if cand.Summary.LinksName != "" {
		if owner, ok := st.links[cand.Summary.LinksName]; ok && owner != id.Key() {
			return nil, &linksConflictError{
				linksName: cand.Summary.LinksName,
				existing:  st.byKey[owner].id,
				incoming:  id,
			}
		}
		st.links[cand.Summary.LinksName] = id.Key()
	}

	n := newNode(cand.Summary)
	st.byKey[id.Key()] = n
	st.byName[id.Name] = append(st.byName[id.Name], n)
	return n, nil
}

// mergeFeatures activates the features a dependency edge requests on
// n, expands feature rules to a fixed point, and enqueues n's own
// base dependencies (the first time n is touched) plus any
// newly-activated optional dependencies.
func (r *resolver) mergeFeatures(st *state, n *node, dep source.Dependency) error {
	requested := append([]string(nil), dep.FeaturesRequested...)
	if dep.UsesDefaultFeatures {
		if _, ok := n.summary.Features["default"]; ok {
			requested = append(requested, "default")
		}
	}

	queue := requested
	var newlyOptional []string
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if n.features[f] {
			continue
		}
		n.features[f] = true
		if rule, ok := n.summary.Features[f]; ok {
			queue = append(queue, rule...)
		}
		for _, d := range n.summary.Dependencies {
			if d.Optional && d.Name == f && !n.activatedOpt[f] {
				n.activatedOpt[f] = true
				newlyOptional = append(newlyOptional, f)
			}
		}
	}

	if !n.depsEnqueued {
		n.depsEnqueued = true
		for _, d := range n.summary.Dependencies {
			if d.Kind == source.KindDev || d.Optional {
				continue
			}
			if !r.params.evalTarget(d.Target) {
				continue
			}
			st.frontier = append(st.frontier, pending{parent: n.id, dep: d})
		}
	}
	for _, fname := range newlyOptional {
		for _, d := range n.summary.Dependencies {
			if d.Optional && d.Name == fname && r.params.evalTarget(d.Target) {
				st.frontier = append(st.frontier, pending{parent: n.id, dep: d})
			}
		}
	}
	return nil
}

// materialize walks the finished state into the persisted Resolve
// shape, computing each node's resolved Edges from its (now fully
// known) dependency list.
func (r *resolver) materialize(st state) *Resolve {
	res := &Resolve{Selections: make(map[string]*Selection, len(st.byKey))}
	if root, ok := st.byKey[r.rootKey]; ok {
		res.Root = root.id
	}
	for key, n := range st.byKey {
		sel := &Selection{
			Id:        n.id,
			Features:  n.features,
			LinksName: n.summary.LinksName,
		}
		for _, d := range n.summary.Dependencies {
			if d.Kind == source.KindDev && key != r.rootKey {
				continue
			}
			if d.Optional && !n.activatedOpt[d.Name] {
				continue
			}
			if !r.params.evalTarget(d.Target) {
				continue
			}
			effSource := r.params.Registry.EffectiveSource(d.Source)
			target := st.findSatisfying(d, effSource)
			if target == nil {
				continue
			}
			sel.Edges = append(sel.Edges, Edge{
				To:         target.id,
				ExternName: d.ExternName(),
				Kind:       d.Kind,
				Public:     !d.Optional,
			})
		}
		sort.Slice(sel.Edges, func(i, j int) bool { return sel.Edges[i].ExternName < sel.Edges[j].ExternName })
		res.Selections[key] = sel
	}
	return res
}
