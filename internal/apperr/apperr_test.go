package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindAndCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("mark attendance: %w", Validation(CodeInvalidLegType))
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation kind, got %v", KindOf(err))
	}
	if CodeOf(err) != CodeInvalidLegType {
		t.Fatalf("expected %s, got %s", CodeInvalidLegType, CodeOf(err))
	}
}

func TestUnknownErrorsAreStorage(t *testing.T) {
	err := errors.New("connection reset")
	if KindOf(err) != KindStorage {
		t.Fatalf("expected storage kind for untyped error")
	}
	if CodeOf(err) != CodeServerError {
		t.Fatalf("expected server_error code, got %s", CodeOf(err))
	}
}

func TestStorageKeepsCause(t *testing.T) {
	cause := errors.New("pool closed")
	err := Storage("record position", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if CodeOf(err) != CodeServerError {
		t.Fatalf("storage errors must not expose internal detail, got %s", CodeOf(err))
	}
}

func TestDeniedIsUniform(t *testing.T) {
	if !Is(Denied(), CodeAccessDenied) {
		t.Fatalf("expected access_denied code")
	}
}
