// Package locktoml persists a resolve.Resolve as a deterministic TOML
// lockfile and reads one back into the hint form resolve consumes to reuse
// prior selections.
//
// Grounded on golang-dep's manifest.go/lock.go/toml.go split: a typed
// in-memory form (resolve.Resolve) on one side, a `raw*` wire form
// tagged for `github.com/pelletier/go-toml` on the other, with
// conversion functions named toRaw/fromRaw in between. Byte-for-byte
// determinism comes from always walking Resolve.SortedKeys() rather
// than ranging the map directly.
package locktoml

import (
	"bytes"
	"io"
	"sort"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/ngiloq6/cargo/internal/resolve"
)

// LockName is the on-disk filename, mirroring golang-dep's LockName
// constant for Gopkg.lock.
const LockName = "Cargo.lock"

const lockVersion = 3

type rawLock struct {
	Version  int          `toml:"version"`
	Packages []rawPackage `toml:"package"`
}

type rawPackage struct {
	Name         string          `toml:"name"`
	Version      string          `toml:"version"`
	Source       string          `toml:"source,omitempty"`
	Dependencies []string        `toml:"dependencies,omitempty"`
	LinksName    string          `toml:"links,omitempty"`
	Features     map[string]bool `toml:"features,omitempty"`
}

// Write serializes r deterministically: packages sorted by
// PackageId.Key(), each package's dependency list sorted by the
// referenced package's own display string.
func Write(w io.Writer, r *resolve.Resolve) error {
	raw := rawLock{Version: lockVersion}
	for _, key := range r.SortedKeys() {
		sel := r.Selections[key]
		raw.Packages = append(raw.Packages, toRawPackage(sel))
	}

	buf, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "marshaling lockfile to TOML")
	}
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "writing lockfile")
	}
	return nil
}

func toRawPackage(sel *resolve.Selection) rawPackage {
	rp := rawPackage{
		Name:      sel.Id.Name,
		Version:   sel.Id.Version.String(),
		Source:    sel.Id.Source.String(),
		LinksName: sel.LinksName,
	}
	if len(sel.Features) > 0 {
		rp.Features = sel.Features
	}
	deps := make([]string, 0, len(sel.Edges))
	for _, e := range sel.Edges {
		deps = append(deps, e.To.String())
	}
	sort.Strings(deps)
	rp.Dependencies = deps
	return rp
}

// Hints is a reusability hint : the resolver treats a prior
// lockfile's selections as the starting activation, deviating only
// when the manifest itself requires something incompatible. It does
// not carry the full Edges/Features a resolve.Resolve would, since by
// the time the hints are consulted, resolve recomputes those against the
// (possibly changed) manifest.
type Hints struct {
	Packages []HintedPackage
}

type HintedPackage struct {
	Name    string
	Version string
	Source  string
}

// Read parses a lockfile into reuse hints. The lockfile itself is
// optional, so callers that need to distinguish "missing" from
// "corrupt" should check the returned error explicitly rather than
// treating absence and corruption the same way.
func Read(r io.Reader) (*Hints, error) {
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "reading lockfile")
	}

	var raw rawLock
	if err := toml.Unmarshal(buf.Bytes(), &raw); err != nil {
		return nil, errors.Wrap(err, "parsing lockfile as TOML")
	}

	h := &Hints{Packages: make([]HintedPackage, 0, len(raw.Packages))}
	for _, p := range raw.Packages {
		h.Packages = append(h.Packages, HintedPackage{Name: p.Name, Version: p.Version, Source: p.Source})
	}
	return h, nil
}
