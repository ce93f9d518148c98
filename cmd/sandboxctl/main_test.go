package main

import (
	"errors"
	"testing"

	"sandboxctl/internal/sandboxlife"
)

func TestExitCodeFor_ContainerExitIsForwarded(t *testing.T) {
	err := &sandboxlife.ContainerExitError{Code: 17}
	if got := exitCodeFor(err); got != 17 {
		t.Errorf("exitCodeFor(ContainerExitError{17}) = %d, want 17", got)
	}
}

func TestExitCodeFor_UnknownSandboxIsTwo(t *testing.T) {
	err := sandboxlife.ErrUnknownSandbox
	if got := exitCodeFor(err); got != 2 {
		t.Errorf("exitCodeFor(ErrUnknownSandbox) = %d, want 2", got)
	}
}

func TestExitCodeFor_OtherErrorsAreOne(t *testing.T) {
	err := errors.New("boom")
	if got := exitCodeFor(err); got != 1 {
		t.Errorf("exitCodeFor(other) = %d, want 1", got)
	}
}
