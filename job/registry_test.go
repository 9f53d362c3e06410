package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/xraph/steady"
	"github.com/xraph/steady/job"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition("send-email", func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	})

	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	d, ok := r.Get("send-email")
	if !ok {
		t.Fatal("expected definition to be registered")
	}

	payload, _ := json.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	err := d.Perform(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", got.To, "alice@example.com")
	}
	if got.Subject != "Hello" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Hello")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Fatal("expected no definition for unregistered job")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := job.NewRegistry()

	for _, name := range []string{"job-a", "job-b", "job-c"} {
		def := job.NewDefinition(name, func(_ context.Context, _ struct{}) error { return nil })
		if err := job.RegisterDefinition(r, def); err != nil {
			t.Fatalf("RegisterDefinition(%q): %v", name, err)
		}
	}

	names := r.Names()
	sort.Strings(names)
	if len(names) != 3 {
		t.Fatalf("expected 3 names, got %d", len(names))
	}
	expected := []string{"job-a", "job-b", "job-c"}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	def := job.NewDefinition("typed-job", func(_ context.Context, _ emailPayload) error {
		t.Fatal("perform should not be called with invalid JSON")
		return nil
	})
	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	d, _ := r.Get("typed-job")
	err := d.Perform(context.Background(), []byte(`{invalid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	def := job.NewDefinition("no-payload", func(_ context.Context, _ struct{}) error {
		called = true
		return nil
	})
	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	d, _ := r.Get("no-payload")
	err := d.Perform(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("perform not called with empty payload")
	}
}

func TestRegistry_PerformError(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("perform failed")
	def := job.NewDefinition("failing", func(_ context.Context, _ struct{}) error {
		return want
	})
	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	d, _ := r.Get("failing")
	err := d.Perform(context.Background(), nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRegistry_CarriesHandlers(t *testing.T) {
	r := job.NewRegistry()
	kind := job.NewKind("TransientError", nil)

	def := job.NewDefinition("with-policy",
		func(_ context.Context, _ struct{}) error { return nil },
		job.RetryOn(kind, 3, 0),
	)
	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	d, _ := r.Get("with-policy")
	if len(d.Handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(d.Handlers))
	}
	if d.Handlers[0].Action != job.ActionRetry {
		t.Errorf("action = %q, want %q", d.Handlers[0].Action, job.ActionRetry)
	}
}

func TestRegistry_RejectsMalformedHandlers(t *testing.T) {
	kind := job.NewKind("SomeError", nil)

	tests := []struct {
		name string
		opts []job.Option
	}{
		{"nil kind", []job.Option{job.DiscardOn(nil)}},
		{"duplicate kind", []job.Option{job.DiscardOn(kind), job.RetryOn(kind, 2, 0)}},
		{"rescue without continuation", []job.Option{job.RescueOn(kind, nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := job.NewRegistry()
			def := job.NewDefinition("bad", func(_ context.Context, _ struct{}) error { return nil }, tt.opts...)
			err := job.RegisterDefinition(r, def)
			if !errors.Is(err, steady.ErrInvalidHandlers) {
				t.Fatalf("expected ErrInvalidHandlers, got %v", err)
			}
			if _, ok := r.Get("bad"); ok {
				t.Error("malformed definition must not be registered")
			}
		})
	}
}
