package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsChains(t *testing.T) {
	err := fmt.Errorf("upload: %w", New(KindValidation, "text/plain is not an image"))

	if got := KindOf(err); got != KindValidation {
		t.Fatalf("expected validation kind, got %s", got)
	}
	if !Is(err, KindValidation) {
		t.Fatal("expected Is to match validation")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("expected unknown kind for unclassified error")
	}
}

func TestServerErrorCarriesStatus(t *testing.T) {
	err := Server(500)

	if err.Status != 500 {
		t.Fatalf("expected status 500, got %d", err.Status)
	}
	if err.Title() != "Server error" {
		t.Fatalf("unexpected title %q", err.Title())
	}
	if err.Error() != "server error (status 500): inference server responded with HTTP 500" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMessagePrefersClassifiedText(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindNetwork, "could not reach the inference endpoint", cause)

	if Message(err) != "could not reach the inference endpoint" {
		t.Fatalf("unexpected message %q", Message(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if Message(cause) != cause.Error() {
		t.Fatal("expected raw error text for unclassified errors")
	}
}
