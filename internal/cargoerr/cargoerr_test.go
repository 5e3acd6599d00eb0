package cargoerr

import (
	"errors"
	"strings"
	"testing"
)

func TestManifestErrorIsFatalAndNamesPackage(t *testing.T) {
	err := Manifest("foo", "missing required field %q", "version")
	if !err.IsFatal() {
		t.Fatal("expected a manifest error to be fatal")
	}
	if !strings.Contains(err.Error(), "foo") || !strings.Contains(err.Error(), "version") {
		t.Fatalf("expected the package name and message in %q", err.Error())
	}
}

func TestIOReadonlyIsNotFatal(t *testing.T) {
	err := IOReadonly(errors.New("read-only file system"), "acquiring cache lock")
	if err.IsFatal() {
		t.Fatal("expected a readonly-filesystem IO error to be non-fatal so the caller can degrade to a shared lock")
	}
}

func TestNetworkRetryableUntilLastAttempt(t *testing.T) {
	cause := errors.New("connection reset")
	retry := Network(cause, 1, 3, "fetching crate")
	if !retry.Retryable() || retry.IsFatal() {
		t.Fatalf("attempt 1 of 3 should be retryable and non-fatal, got retryable=%v fatal=%v", retry.Retryable(), retry.IsFatal())
	}

	last := Network(cause, 3, 3, "fetching crate")
	if last.Retryable() || !last.IsFatal() {
		t.Fatalf("attempt 3 of 3 should exhaust retries and become fatal, got retryable=%v fatal=%v", last.Retryable(), last.IsFatal())
	}
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("boom")
	err := IO(cause, "writing target-dir")
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through to the wrapped cause")
	}
}

func TestCompilationErrorIncludesDiagnostics(t *testing.T) {
	err := Compilation("foo", 101, "error[E0425]: cannot find value `x`")
	if !strings.Contains(err.Error(), "E0425") {
		t.Fatalf("expected captured diagnostics in %q", err.Error())
	}
}

func TestErrorsAsMatchesTaxonomyKind(t *testing.T) {
	var target *Error
	wrapped := fmtWrap(BuildScript("foo", "cargo:rustc-flags=-aaa", "disallowed rustc-flags token %q", "-aaa"))
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to find the *Error in the chain")
	}
	if target.Kind != KindBuildScript {
		t.Fatalf("expected KindBuildScript, got %s", target.Kind)
	}
}

// fmtWrap simulates a caller one layer up re-wrapping with fmt.Errorf's
// %w, the common shape errors.As has to see through.
func fmtWrap(err error) error {
	return wrapOnce{err}
}

type wrapOnce struct{ err error }

func (w wrapOnce) Error() string { return "context: " + w.err.Error() }
func (w wrapOnce) Unwrap() error { return w.err }
