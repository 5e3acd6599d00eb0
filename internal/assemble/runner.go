package assemble

import "github.com/pkg/errors"

// CfgRunnerCandidate is one `target.'cfg(...)'.runner` entry whose
// predicate the caller has already evaluated against the unit's
// platform — cfg-expression matching itself is a manifest-parsing
// concern, out of scope here (mirrors source.TargetPredicate: this
// package only ever asks "did this already-evaluated predicate match").
type CfgRunnerCandidate struct {
	Expr string // the literal `cfg(...)` key, used only for the error message
	Path string
	Args []string
}

// ResolveRunner implements the tool's target.<triple>.runner /
// target.'cfg(...)'.runner precedence: an explicit per-triple runner
// always wins outright; otherwise exactly one matching cfg-expression
// runner is used, and two or more matching candidates is a hard error
// rather than a silent pick, since which one "wins" would otherwise
// depend on config file read order.
//
// Grounded on original_source/src/cargo/core/compiler/compilation.rs's
// target_runner: same two-tier lookup, same ambiguity-is-fatal policy.
func ResolveRunner(tripleRunner *CfgRunnerCandidate, cfgCandidates []CfgRunnerCandidate) (path string, args []string, ok bool, err error) {
	if tripleRunner != nil {
		return tripleRunner.Path, tripleRunner.Args, true, nil
	}
	switch len(cfgCandidates) {
	case 0:
		return "", nil, false, nil
	case 1:
		return cfgCandidates[0].Path, cfgCandidates[0].Args, true, nil
	default:
		return "", nil, false, errors.Errorf(
			"several matching instances of `target.'cfg(..)'.runner`: %q and %q both match",
			cfgCandidates[0].Expr, cfgCandidates[1].Expr)
	}
}
