package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("called %d times, want 1", calls)
	}
}

func TestRetry_SucceedsSecondAttempt(t *testing.T) {
	sentinel := errors.New("transient")
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return sentinel
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("called %d times, want 2", calls)
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	sentinel := &StatusError{StatusCode: 503}
	calls := 0
	err := Retry(context.Background(), 2, func() error {
		calls++
		return sentinel
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 2 {
		t.Errorf("called %d times, want 2", calls)
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Errorf("error chain does not contain StatusError: %v", err)
	}
}

func TestRetry_PermanentErrorsStopImmediately(t *testing.T) {
	permanent := []error{
		ErrUnauthorized,
		ErrNotFound,
		fmt.Errorf("%w: bad json", ErrMalformedResponse),
		&StatusError{StatusCode: 400},
		&StatusError{StatusCode: 422},
	}
	for _, perr := range permanent {
		calls := 0
		err := Retry(context.Background(), 3, func() error {
			calls++
			return perr
		})
		if calls != 1 {
			t.Errorf("%v: called %d times, want 1", perr, calls)
		}
		if !errors.Is(err, perr) {
			t.Errorf("%v: returned %v", perr, err)
		}
	}
}

func TestIsPermanent_RateLimitRetried(t *testing.T) {
	if isPermanent(&StatusError{StatusCode: 429}) {
		t.Error("429 should be retried")
	}
	if isPermanent(&StatusError{StatusCode: 502}) {
		t.Error("502 should be retried")
	}
	if isPermanent(errors.New("connection reset")) {
		t.Error("transport errors should be retried")
	}
}

func TestRetry_ContextCancelledBeforeAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 3, func() error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 0 {
		t.Errorf("called %d times, want 0 (context already cancelled)", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got: %v", err)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sentinel := errors.New("fail")
	calls := 0
	err := Retry(ctx, 10, func() error {
		calls++
		return sentinel
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls < 1 || calls >= 10 {
		t.Errorf("calls = %d, expected between 1 and 9", calls)
	}
}

func TestBackoffDelay_Bounds(t *testing.T) {
	// d(n) ∈ [base*2^n/2, base*2^n)
	for attempt, lo := range []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second} {
		d := backoffDelay(attempt)
		if d < lo || d >= 2*lo {
			t.Errorf("backoffDelay(%d) = %v, expected [%v, %v)", attempt, d, lo, 2*lo)
		}
	}

	d := backoffDelay(10)
	if d >= maxDelay || d < maxDelay/2 {
		t.Errorf("backoffDelay(10) = %v, expected [%v, %v)", d, maxDelay/2, maxDelay)
	}
}
