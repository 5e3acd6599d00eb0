package assemble

import (
	"sync"

	"github.com/ngiloq6/cargo/internal/buildscript"
	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/unit"
)

// OutputTable is the build-output map: a single mutex-protected table
// keyed by (PackageId, CompileKind) every RunCustomBuild unit publishes
// its parsed directives into and every dependent compile unit reads
// back from when assembling its own invocation.
//
// Grounded on gps/source.go's sourceCoordinator: one small mutex
// guarding one map, read far more often than written, rather than a
// sync.Map or per-key locking this table never needs at this scale.
type OutputTable struct {
	mu sync.Mutex
	m  map[string]*buildscript.BuildOutput
}

func NewOutputTable() *OutputTable {
	return &OutputTable{m: make(map[string]*buildscript.BuildOutput)}
}

func outputKey(pkg *ident.PackageId, kind unit.CompileKind) string {
	return pkg.Key() + "\x00" + kind.String()
}

func (t *OutputTable) Set(pkg *ident.PackageId, kind unit.CompileKind, out *buildscript.BuildOutput) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[outputKey(pkg, kind)] = out
}

func (t *OutputTable) Get(pkg *ident.PackageId, kind unit.CompileKind) (*buildscript.BuildOutput, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, ok := t.m[outputKey(pkg, kind)]
	return out, ok
}
