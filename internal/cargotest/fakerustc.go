package cargotest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteFakeRustc drops a shell script named rustc (and rustdoc, a copy
// of the same script) into dir and returns rustc's path, standing in
// for a real toolchain in tests that exercise the compile pipeline
// without actually invoking one — grounded on distr1-distri's
// integration tests, which drop a fake systemd-sysusers shell script
// on PATH the same way.
//
// The script answers `--version --verbose` and `--print
// target-libdir` with fixed values and otherwise exits 0 without
// writing any output file, which is enough for fingerprint/freshness
// tests that only care whether a unit was invoked.
func WriteFakeRustc(t *testing.T, dir string) string {
	t.Helper()
	script := `#!/bin/sh
for arg in "$@"; do
  case "$prev" in
    --emit) ;;
  esac
  prev="$arg"
done
for i; do
  if [ "$i" = "--version" ]; then
    echo "rustc 1.75.0-fake (cargotest 2024-01-01)"
    exit 0
  fi
  if [ "$i" = "target-libdir" ]; then
    echo "/fake-sysroot/lib"
    exit 0
  fi
done
exit 0
`
	path := filepath.Join(dir, "rustc")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("%+v", fmt.Errorf("writing fake rustc: %w", err))
	}
	rustdoc := filepath.Join(dir, "rustdoc")
	if err := os.WriteFile(rustdoc, []byte(script), 0o755); err != nil {
		t.Fatalf("%+v", fmt.Errorf("writing fake rustdoc: %w", err))
	}
	return path
}
