package resolve

import (
	"bytes"
	"fmt"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
)

// triedCandidate records one candidate the solver attempted for a
// dependency and why it was rejected, so a failure can report every
// candidate considered, not just the last one tried.
type triedCandidate struct {
	id  *ident.PackageId
	err error
}

// noCandidateError reports that no candidate of a dependency could be
// activated, mirroring golang-dep's noVersionError.
type noCandidateError struct {
	dep   source.Dependency
	tried []triedCandidate
}

func (e *noCandidateError) Error() string {
	if len(e.tried) == 0 {
		return fmt.Sprintf("no candidates found for dependency %q matching %s", e.dep.Name, e.dep.Requirement)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "no version of %q satisfies %s and the rest of the current solution:", e.dep.Name, e.dep.Requirement)
	for _, t := range e.tried {
		fmt.Fprintf(&buf, "\n\t%s: %s", t.id, t.err)
	}
	return buf.String()
}

// linksConflictError reports that two selected packages both declare
// the same `links` name.
type linksConflictError struct {
	linksName string
	existing  *ident.PackageId
	incoming  *ident.PackageId
}

func (e *linksConflictError) Error() string {
	return fmt.Sprintf("multiple packages link native library %q: %s and %s", e.linksName, e.existing, e.incoming)
}

// compatClassConflictError reports that two versions of the same
// package collided in the same SemVer-compatibility class.
type compatClassConflictError struct {
	name     string
	existing *ident.PackageId
	incoming *ident.PackageId
}

func (e *compatClassConflictError) Error() string {
	return fmt.Sprintf("package %q has two incompatible versions selected in the same compatibility class: %s and %s", e.name, e.existing, e.incoming)
}
