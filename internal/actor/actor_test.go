package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAsk_RoundTrip(t *testing.T) {
	a := New("echo", 8, func(msg any) (any, error) {
		return msg.(int) * 2, nil
	})
	defer a.Stop()

	got, err := a.Ask(context.Background(), 21)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(int) != 42 {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestAsk_PropagatesHandlerError(t *testing.T) {
	wantErr := errors.New("boom")
	a := New("failing", 8, func(msg any) (any, error) {
		return nil, wantErr
	})
	defer a.Stop()

	if _, err := a.Ask(context.Background(), struct{}{}); !errors.Is(err, wantErr) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestAsk_ContextTimeout(t *testing.T) {
	block := make(chan struct{})
	a := New("slow", 0, func(msg any) (any, error) {
		<-block
		return nil, nil
	})
	defer func() {
		close(block)
		a.Stop()
	}()

	// First message occupies the handler; the second waits in a full
	// mailbox until the context expires.
	go a.Tell(context.Background(), struct{}{})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Ask(ctx, struct{}{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestMailbox_ProcessesSequentially(t *testing.T) {
	var mu sync.Mutex
	var order []int
	a := New("seq", 64, func(msg any) (any, error) {
		mu.Lock()
		order = append(order, msg.(int))
		mu.Unlock()
		return nil, nil
	})

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := a.Tell(ctx, i); err != nil {
			t.Fatalf("tell %d: %v", i, err)
		}
	}
	a.Stop()

	if len(order) != 50 {
		t.Fatalf("expected 50 processed messages, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("message %d processed out of order (got %d)", i, v)
		}
	}
}

func TestTellThenAsk_ObservesTellEffects(t *testing.T) {
	var count int
	a := New("counter", 8, func(msg any) (any, error) {
		switch msg.(type) {
		case string:
			return count, nil
		default:
			count++
			return nil, nil
		}
	})
	defer a.Stop()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := a.Tell(ctx, struct{}{}); err != nil {
			t.Fatalf("tell: %v", err)
		}
	}
	got, err := a.Ask(ctx, "count")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got.(int) != 3 {
		t.Errorf("ask must observe all prior tells from the same sender, got %v", got)
	}
}

func TestStop_DrainsAndRejectsFurtherSends(t *testing.T) {
	a := New("stopping", 8, func(msg any) (any, error) { return nil, nil })
	a.Stop()
	a.Stop() // idempotent

	if _, err := a.Ask(context.Background(), struct{}{}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
