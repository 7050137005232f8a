package conn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/product-service/internal/cfg"
	"github.com/DRSN-tech/product-service/pkg/e"
)

type pingResult struct {
	err error
}

type fakePinger struct {
	result atomic.Value
	calls  atomic.Int32
}

func newFakePinger(err error) *fakePinger {
	f := &fakePinger{}
	f.result.Store(pingResult{err: err})
	return f
}

func (f *fakePinger) Ping(_ context.Context) error {
	f.calls.Add(1)
	return f.result.Load().(pingResult).err
}

func (f *fakePinger) setErr(err error) {
	f.result.Store(pingResult{err: err})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{})            {}
func (noopLogger) Infof(format string, args ...interface{})             {}
func (noopLogger) Warnf(format string, args ...interface{})             {}
func (noopLogger) Errorf(err error, format string, args ...interface{}) {}

func testConnCfg() *cfg.ConnCfg {
	return &cfg.ConnCfg{
		ProbeInterval: 10 * time.Millisecond,
		ProbeTimeout:  50 * time.Millisecond,
		MaxAttempts:   3,
	}
}

func TestManagerStartsConnected(t *testing.T) {
	m := NewManager(newFakePinger(nil), newFakePinger(nil), noopLogger{}, testConnCfg())

	if !m.StoreHealthy() {
		t.Error("store should be healthy before first probe")
	}
	if !m.BrokerHealthy() {
		t.Error("broker should be healthy before first probe")
	}
}

func TestManagerProbeTransitions(t *testing.T) {
	store := newFakePinger(nil)
	broker := newFakePinger(nil)
	m := NewManager(store, broker, noopLogger{}, testConnCfg())
	ctx := context.Background()

	store.setErr(errors.New("connection refused"))
	m.probe(ctx, m.store)
	if got := m.StoreState(); got != Disconnected {
		t.Errorf("after first failed probe: state = %v, want %v", got, Disconnected)
	}
	if m.StoreHealthy() {
		t.Error("store should not be healthy after failed probe")
	}

	m.probe(ctx, m.store)
	if got := m.StoreState(); got != Reconnecting {
		t.Errorf("after second failed probe: state = %v, want %v", got, Reconnecting)
	}

	store.setErr(nil)
	m.probe(ctx, m.store)
	if got := m.StoreState(); got != Connected {
		t.Errorf("after recovery: state = %v, want %v", got, Connected)
	}

	// Брокер в переходах хранилища не участвует
	if !m.BrokerHealthy() {
		t.Error("broker state must not be affected by store probes")
	}
}

func TestManagerBackgroundLoopDetectsFailure(t *testing.T) {
	store := newFakePinger(errors.New("dial tcp: connection refused"))
	m := NewManager(store, newFakePinger(nil), noopLogger{}, testConnCfg())

	m.Start(context.Background())
	defer m.Stop()

	deadline := time.After(time.Second)
	for m.StoreHealthy() {
		select {
		case <-deadline:
			t.Fatal("background loop never marked store unhealthy")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !m.BrokerHealthy() {
		t.Error("broker should stay healthy")
	}
}

func TestWaitStoreSucceedsAfterRecovery(t *testing.T) {
	store := newFakePinger(errors.New("connection refused"))
	m := NewManager(store, newFakePinger(nil), noopLogger{}, testConnCfg())

	// Восстанавливаемся после первой неудачной попытки
	go func() {
		time.Sleep(20 * time.Millisecond)
		store.setErr(nil)
	}()

	if err := m.WaitStore(context.Background()); err != nil {
		t.Fatalf("WaitStore() = %v, want nil", err)
	}
	if !m.StoreHealthy() {
		t.Error("store should be healthy after successful wait")
	}
}

func TestWaitStoreExhaustsAttempts(t *testing.T) {
	store := newFakePinger(errors.New("connection refused"))
	m := NewManager(store, newFakePinger(nil), noopLogger{}, testConnCfg())

	err := m.WaitStore(context.Background())
	if !errors.Is(err, e.ErrConnection) {
		t.Fatalf("WaitStore() = %v, want ErrConnection", err)
	}
	if got := store.calls.Load(); got != 3 {
		t.Errorf("ping calls = %d, want 3", got)
	}
	if got := m.StoreState(); got != Disconnected {
		t.Errorf("state after exhaustion = %v, want %v", got, Disconnected)
	}
}

func TestWaitBrokerRespectsContext(t *testing.T) {
	broker := newFakePinger(errors.New("broker not available"))
	m := NewManager(newFakePinger(nil), broker, noopLogger{}, testConnCfg())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.WaitBroker(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitBroker() = %v, want context.Canceled", err)
	}
}
