package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrServerError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithProvider("openai")

	if GetKind(err) != ErrServerError {
		t.Fatalf("expected kind %s, got %s", ErrServerError, GetKind(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected server_error to be retryable by default")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_Sanitized_StripsCauseAndContext(t *testing.T) {
	t.Parallel()

	err := NewError(ErrAuthentication, "bad key").
		WithCause(errors.New("secret leaked upstream detail")).
		WithContext("raw_body", "sensitive")

	clean := err.Sanitized()
	if clean.Cause != nil {
		t.Fatalf("expected sanitized error to drop cause")
	}
	if clean.Context != nil {
		t.Fatalf("expected sanitized error to drop context")
	}
	if clean.Kind != ErrAuthentication {
		t.Fatalf("expected kind preserved")
	}
}

func TestKindFacts_AuthenticationIsNonRetryable(t *testing.T) {
	t.Parallel()

	err := NewError(ErrAuthentication, "invalid api key")
	if err.Retryable {
		t.Fatalf("authentication errors must not be retryable by default")
	}
	if err.Severity != SeverityCritical {
		t.Fatalf("expected critical severity, got %s", err.Severity)
	}
}
