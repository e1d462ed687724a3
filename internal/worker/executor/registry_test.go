package executor

import (
	"context"
	"testing"
)

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewEchoHandler())
	r.MustRegister(NewUppercaseHandler())

	resp, err := r.Execute(context.Background(), &Request{
		ActivityType: "uppercase",
		Input:        []byte(`"hello"`),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.Output) != `"HELLO"` {
		t.Fatalf("got %s", resp.Output)
	}
}

func TestRegistryUnknownActivityType(t *testing.T) {
	r := NewRegistry()
	resp, err := r.Execute(context.Background(), &Request{ActivityType: "missing"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Error == nil || !resp.Error.NonRetryable {
		t.Fatalf("expected non-retryable not-found error, got %+v", resp.Error)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewEchoHandler()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(NewEchoHandler()); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}
