package closer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCloseRunsInLIFOOrder(t *testing.T) {
	c := NewCloser(time.Second)

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		c.Add(func(_ context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("close order = %v, want [3 2 1]", order)
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	c := NewCloser(time.Second)
	c.Add(func(_ context.Context) error { return errors.New("redis close failed") })
	c.Add(func(_ context.Context) error { return nil })

	err := c.Close(context.Background())
	if err == nil {
		t.Fatal("Close() must report collected errors")
	}
}

func TestCloseOnlyOnce(t *testing.T) {
	c := NewCloser(time.Second)

	calls := 0
	c.Add(func(_ context.Context) error {
		calls++
		return nil
	})

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	if calls != 1 {
		t.Errorf("close func calls = %d, want 1", calls)
	}
}

func TestCloseForcesRemainingOnCancel(t *testing.T) {
	c := NewCloser(time.Second)

	forced := make(chan struct{}, 1)
	c.Add(func(ctx context.Context) error {
		select {
		case forced <- struct{}{}:
		default:
		}
		return nil
	})
	c.Add(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Close(ctx)
	if err == nil {
		t.Fatal("Close() must report interrupted shutdown")
	}

	select {
	case <-forced:
	case <-time.After(time.Second):
		t.Fatal("remaining funcs must be force-closed after context cancellation")
	}
}
