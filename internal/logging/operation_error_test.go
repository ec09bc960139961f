package logging

import (
	"errors"
	"testing"
)

func TestOperationErrorFormatsAndUnwraps(t *testing.T) {
	base := errors.New("boom")

	err := NewOperationError("usecase.predict", "req-1", base)
	if err.Error() != "usecase.predict (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match")
	}

	if NewOperationError("noop", "", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestOperationOfReturnsInnermost(t *testing.T) {
	inner := NewOperationError("cache.get", "req", errors.New("down"))
	outer := NewOperationError("usecase.predict", "req", inner)

	if got := OperationOf(outer); got != "cache.get" {
		t.Fatalf("expected innermost operation, got %q", got)
	}
	if got := OperationOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty operation, got %q", got)
	}
}
