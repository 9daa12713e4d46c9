package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsFindsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("load application: %w", NotFound("application not found"))
	if !Is(err, KindNotFound) {
		t.Fatal("expected a not-found error in the chain")
	}
	if Is(err, KindConflict) || Is(errors.New("plain"), KindNotFound) {
		t.Fatal("unexpected kind match")
	}
}

func TestInvalidInputJoinsMessagesInFieldOrder(t *testing.T) {
	err := InvalidInput(FieldErrors{"zip": "zip is required", "city": "city is required"})
	if err.Error() != "city is required; zip is required" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err.HTTPStatus() != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", err.HTTPStatus())
	}
	if fields, ok := err.Details.(FieldErrors); !ok || len(fields) != 2 {
		t.Fatalf("unexpected details %#v", err.Details)
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable("salesforce query", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if err.Error() != "salesforce query: connection reset" || err.HTTPStatus() != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error %q %d", err.Error(), err.HTTPStatus())
	}
	if (&Error{Kind: "teapot"}).HTTPStatus() != http.StatusBadRequest {
		t.Fatal("unmapped kinds should answer 400")
	}
}
