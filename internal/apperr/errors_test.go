package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrappedError(t *testing.T) {
	base := InvalidTransition("submission is already DONE")
	wrapped := fmt.Errorf("mark completed: %w", base)

	if got := KindOf(wrapped); got != KindInvalidTransition {
		t.Fatalf("expected %s, got %s", KindInvalidTransition, got)
	}
	if !Is(wrapped, KindInvalidTransition) {
		t.Fatalf("expected Is to match wrapped kind")
	}
	if Is(wrapped, KindValidation) {
		t.Fatalf("did not expect validation kind")
	}
	if !errors.Is(wrapped, &Error{Kind: KindInvalidTransition}) {
		t.Fatalf("expected errors.Is to match on kind")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected internal, got %s", got)
	}
	if Is(nil, KindInternal) {
		t.Fatalf("nil error must not match any kind")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := External("card renderer failed", errors.New("timeout"))
	if err.Error() != "card renderer failed: timeout" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindAuthorization:      http.StatusForbidden,
		KindInvalidTransition:  http.StatusConflict,
		KindConflict:           http.StatusConflict,
		KindValidation:         http.StatusUnprocessableEntity,
		KindNotFound:           http.StatusNotFound,
		KindExternalDependency: http.StatusBadGateway,
		KindUnauthenticated:    http.StatusUnauthorized,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
