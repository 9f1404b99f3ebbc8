package rpcerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyInvocationWithCause(t *testing.T) {
	cause := errors.New("null pointer")
	surfaced, invocation := Classify(&InvocationError{Method: "Echo.Echo", Cause: cause})
	if !invocation {
		t.Fatal("expect invocation failure")
	}
	if surfaced != cause {
		t.Fatalf("expect cause to be surfaced, got %v", surfaced)
	}
}

func TestClassifyInvocationWithoutCause(t *testing.T) {
	wrapper := &InvocationError{Method: "Echo.Echo"}
	surfaced, invocation := Classify(wrapper)
	if !invocation {
		t.Fatal("expect invocation failure")
	}
	if surfaced != wrapper {
		t.Fatalf("expect wrapper itself, got %v", surfaced)
	}
}

func TestClassifyDirect(t *testing.T) {
	direct := fmt.Errorf("auth: %w", ErrUnauthorized)
	surfaced, invocation := Classify(direct)
	if invocation {
		t.Fatal("expect direct failure")
	}
	if surfaced != direct {
		t.Fatalf("expect error as-is, got %v", surfaced)
	}

	// An invocation error hidden behind another wrapper is a direct failure.
	wrapped := fmt.Errorf("interceptor: %w", &InvocationError{Cause: errors.New("boom")})
	surfaced, invocation = Classify(wrapped)
	if invocation || surfaced != wrapped {
		t.Fatalf("expect wrapped invocation error surfaced as-is, got %v (invocation=%v)", surfaced, invocation)
	}
}

func TestPanicError(t *testing.T) {
	cause := errors.New("boom")
	err := &PanicError{Value: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expect panic error to unwrap to the panicked error")
	}
	if (&PanicError{Value: "oops"}).Error() != "panic: oops" {
		t.Fatal("unexpected panic message")
	}
}

func TestCodeRoundTrip(t *testing.T) {
	cases := []struct {
		err  error
		code int32
	}{
		{nil, CodeOK},
		{fmt.Errorf("%w: Echo.Nope", ErrMethodNotFound), CodeNotFound},
		{ErrRateLimited, CodeRateLimited},
		{ErrTimeout, CodeTimeout},
		{ErrUnauthorized, CodeUnauthorized},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		code := Code(tc.err)
		if code != tc.code {
			t.Errorf("%v: expect code %d, got %d", tc.err, tc.code, code)
		}
		if tc.err == nil || code == CodeInternal {
			continue
		}
		remote := &RemoteError{Code: code, Message: tc.err.Error()}
		if !errors.Is(remote, errors.Unwrap(remote)) || errors.Unwrap(remote) == nil {
			t.Errorf("%v: remote error must unwrap to a sentinel", tc.err)
		}
	}
}
