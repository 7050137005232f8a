package conn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DRSN-tech/product-service/internal/cfg"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/jitter"
	"github.com/DRSN-tech/product-service/pkg/logger"
)

// State — состояние соединения с внешней системой.
// Переходы: Connected → Disconnected → Reconnecting → Connected.
type State int32

const (
	Connected State = iota
	Disconnected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// target — наблюдаемое соединение с его текущим состоянием.
type target struct {
	name   string
	pinger Pinger
	state  atomic.Int32
}

func newTarget(name string, pinger Pinger) *target {
	t := &target{name: name, pinger: pinger}
	t.state.Store(int32(Connected)) // конструктор вызывается после успешного подключения
	return t
}

func (t *target) load() State {
	return State(t.state.Load())
}

// Manager наблюдает за соединениями с хранилищем и брокером.
// Сами хендлы (пул pgx, writer kafka) безопасны для конкурентного использования
// и восстанавливаются внутренне; менеджер периодически их пробует,
// фиксирует переходы состояний и отдаёт их наверх для быстрого отказа.
type Manager struct {
	store    *target
	broker   *target
	logger   logger.Logger
	cfg      *cfg.ConnCfg
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(store Pinger, broker Pinger, logger logger.Logger, cfg *cfg.ConnCfg) *Manager {
	return &Manager{
		store:  newTarget("store", store),
		broker: newTarget("broker", broker),
		logger: logger,
		cfg:    cfg,
		stop:   make(chan struct{}),
	}
}

// Start запускает фоновый цикл health-проб.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx)
	}()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.probe(ctx, m.store)
			m.probe(ctx, m.broker)
		}
	}
}

// probe выполняет одну health-пробу и продвигает машину состояний.
func (m *Manager) probe(ctx context.Context, t *target) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := t.pinger.Ping(probeCtx)
	cancel()

	prev := t.load()
	if err != nil {
		next := Reconnecting
		if prev == Connected {
			next = Disconnected
		}
		t.state.Store(int32(next))

		if prev != next {
			m.logger.Warnf("Connection %s: %s -> %s: %v", t.name, prev, next, err)
		}
		return
	}

	if prev != Connected {
		t.state.Store(int32(Connected))
		m.logger.Infof("Connection %s: %s -> %s", t.name, prev, Connected)
	}
}

func (m *Manager) StoreState() State {
	return m.store.load()
}

func (m *Manager) BrokerState() State {
	return m.broker.load()
}

func (m *Manager) StoreHealthy() bool {
	return m.store.load() == Connected
}

func (m *Manager) BrokerHealthy() bool {
	return m.broker.load() == Connected
}

// WaitStore блокируется, пока хранилище не ответит на пробу,
// делая ограниченное число попыток с экспоненциальным отступлением.
func (m *Manager) WaitStore(ctx context.Context) error {
	return m.wait(ctx, m.store)
}

// WaitBroker — то же для брокера.
func (m *Manager) WaitBroker(ctx context.Context) error {
	return m.wait(ctx, m.broker)
}

func (m *Manager) wait(ctx context.Context, t *target) error {
	const (
		backoffBase = 100 * time.Millisecond
		backoffMax  = 5 * time.Second
	)

	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		err := t.pinger.Ping(probeCtx)
		cancel()

		if err == nil {
			if t.load() != Connected {
				t.state.Store(int32(Connected))
				m.logger.Infof("Connection %s restored", t.name)
			}
			return nil
		}

		t.state.Store(int32(Reconnecting))
		m.logger.Warnf("Connection %s probe failed (attempt %d/%d): %v", t.name, attempt+1, m.cfg.MaxAttempts, err)

		backoff := jitter.ExponentialBackoff(backoffBase, backoffMax, attempt, jitter.DefaultJitter)
		select {
		case <-ctx.Done():
			return e.Wrap("conn.Manager.wait", ctx.Err())
		case <-time.After(backoff):
		}
	}

	t.state.Store(int32(Disconnected))
	return e.Wrap("conn.Manager.wait: "+t.name, e.ErrConnection)
}
