package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestInvokerError(t *testing.T) {
	cause := errors.New("503 service unavailable")
	err := &InvokerError{Role: RoleCoding, Kind: KindProvider, Attempts: 3, Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	want := "invoke CodingAgent: provider error after 3 attempt(s): 503 service unavailable"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("run: %w", err)
	var target *InvokerError
	if !errors.As(wrapped, &target) || target.Attempts != 3 {
		t.Error("expected errors.As through wrapping")
	}
}

func TestInvokerErrorKind(t *testing.T) {
	if KindProvider.String() != "provider" || KindTimeout.String() != "timeout" || KindMalformed.String() != "malformed_output" {
		t.Error("unexpected kind names")
	}
}

func TestClassifyInvokeError(t *testing.T) {
	live := context.Background()

	expired, cancel := context.WithTimeout(live, 0)
	defer cancel()
	<-expired.Done()

	tests := []struct {
		name   string
		err    error
		parent context.Context
		turn   context.Context
		want   InvokerErrorKind
	}{
		{"provider", errors.New("boom"), live, live, KindProvider},
		{"malformed", fmt.Errorf("wrap: %w", &MalformedOutputError{Role: "r", Reason: "empty"}), live, live, KindMalformed},
		{"turn deadline", errors.New("transport closed"), live, expired, KindTimeout},
		{"deadline from provider", fmt.Errorf("http: %w", context.DeadlineExceeded), live, live, KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyInvokeError(tt.err, tt.parent, tt.turn); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDuplicateRoleError(t *testing.T) {
	err := &DuplicateRoleError{Name: RoleCoding}
	if err.Error() != "duplicate role: CodingAgent" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
