package utils

import (
	"errors"
	"net/http"
	"testing"
)

func TestAPIErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err      *APIError
		expected int
	}{
		{NewValidationError("bad input", nil), http.StatusBadRequest},
		{NewForbiddenError("not yours", nil), http.StatusForbidden},
		{NewNotFoundError("gone", nil), http.StatusNotFound},
		{NewConflictError("already decided", nil), http.StatusConflict},
		{NewSessionError("login required", nil), http.StatusUnauthorized},
		{NewInternalError("boom", errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.StatusCode(); got != tc.expected {
			t.Fatalf("%s: expected status %d, got %d", tc.err.Type, tc.expected, got)
		}
	}
}

func TestAsAPIErrorPassesThrough(t *testing.T) {
	original := NewConflictError("already decided", nil)
	got := AsAPIError(original)
	if got != original {
		t.Fatalf("APIError must pass through unchanged")
	}
}

func TestAsAPIErrorWrapsSentinel(t *testing.T) {
	got := AsAPIError(ErrorRecordNotFound)
	if got.Type != ErrorTypeNotFound {
		t.Fatalf("record-not-found must map to NotFoundError, got %s", got.Type)
	}
}

func TestAsAPIErrorWrapsPlainErrors(t *testing.T) {
	got := AsAPIError(errors.New("connection reset"))
	if got.Type != ErrorTypeInternal {
		t.Fatalf("plain error must map to InternalError, got %s", got.Type)
	}
	if got.StatusCode() != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got.StatusCode())
	}
}

func TestAsAPIErrorNil(t *testing.T) {
	if AsAPIError(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := errors.New("db down")
	err := NewInternalError("boom", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped cause must be reachable via errors.Is")
	}
}
