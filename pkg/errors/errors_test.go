package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestIsMatchesWrappedCode(t *testing.T) {
	cause := errors.New("no such row")
	err := NotFound("topic missing", cause)

	if !Is(err, CodeNotFound) {
		t.Fatal("expected Is to match CodeNotFound")
	}
	if Is(err, CodeConflict) {
		t.Fatal("expected Is to not match an unrelated code")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, "failed to upsert topic row")

	if errors.Unwrap(err) != cause {
		t.Fatal("expected Unwrap to return the original cause")
	}
}

func TestErrorStringIncludesMessageAndCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Timeout("dial peer", cause)

	got := err.Error()
	if got == "" {
		t.Fatal("expected a non-empty error string")
	}
	if !strings.Contains(got, "dial peer") || !strings.Contains(got, "timeout") {
		t.Fatalf("expected error string to include message and cause, got %q", got)
	}
}
