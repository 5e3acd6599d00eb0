package cargotest

import "github.com/davecgh/go-spew/spew"

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump renders v as an indented, deterministic tree of its fields,
// for t.Logf/t.Errorf output on a fixture too large to eyeball as a
// %+v one-liner — fingerprint.Inputs, a resolved unit.UnitGraph, a
// resolve.Resolve's Selections map.
func Dump(v interface{}) string {
	return dumpConfig.Sdump(v)
}
