package waiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUntilResolvesImmediately(t *testing.T) {
	t.Parallel()

	w := New()
	v, err := Until(context.Background(), w, func() (int, bool) { return 42, true })
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

func TestUntilEventuallySucceeds(t *testing.T) {
	t.Parallel()

	w := New(WithTimeout(2 * time.Second))
	tries := 0
	v, err := Until(context.Background(), w, func() (string, bool) {
		tries++
		if tries < 3 {
			return "", false
		}
		return "ready", true
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != "ready" {
		t.Fatalf("got %q, want ready", v)
	}
	if tries < 3 {
		t.Fatalf("expected at least 3 tries, got %d", tries)
	}
}

func TestUntilTimesOut(t *testing.T) {
	t.Parallel()

	w := New(WithTimeout(150 * time.Millisecond))
	_, err := Until(context.Background(), w, func() (int, bool) { return 0, false })
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestUntilRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(WithTimeout(time.Minute))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Until(ctx, w, func() (int, bool) { return 0, false })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
