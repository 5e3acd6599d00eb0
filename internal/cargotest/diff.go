// Package cargotest collects the small test-support helpers this
// repository's own test suites share: a value differ for readable
// assertion failures, a struct dumper for debugging fixture state, and
// a harness for driving a built cargo binary as a subprocess.
//
// Grounded on golang-dep's internal/test package (diff.go/test.go):
// the same Diff signature and library pairing, and a Helper shaped
// after its subprocess-driving Helper, generalized from a `testdep`
// binary to this repository's own `cargo` one.
package cargotest

import (
	"github.com/d4l3k/messagediff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff compares two values and returns a human-readable difference
// plus whether they're equal. Strings are compared with a
// character-level diff; everything else falls back to a structural
// diff over exported and unexported fields alike.
func Diff(a, b interface{}) (diff string, equal bool) {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		dmp := diffmatchpatch.New()
		d := dmp.DiffMain(as, bs, false)
		return dmp.DiffPrettyText(d), as == bs
	}
	return messagediff.PrettyDiff(a, b)
}
