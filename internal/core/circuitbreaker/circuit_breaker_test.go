package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewWithTimeout("redis", time.Hour)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open breaker: err=%v called=%v", err, called)
	}
}

func TestCircuitBreaker_PassesSuccess(t *testing.T) {
	cb := New("mqtt")
	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("Execute() = %v", err)
	}
	if cb.Name() != "mqtt" {
		t.Errorf("Name() = %q", cb.Name())
	}
}
