package closer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultForcedTimeout = 2 * time.Second

// Func — функция освобождения одного ресурса.
type Func func(ctx context.Context) error

// Closer закрывает зарегистрированные ресурсы в порядке, обратном регистрации.
// Пока контекст жив, ресурсы закрываются последовательно; после его отмены
// оставшиеся закрываются принудительно и параллельно, с собственным окном forcedTimeout.
type Closer struct {
	mu            sync.Mutex
	funcs         []Func
	once          sync.Once
	forcedTimeout time.Duration
}

func NewCloser(forcedTimeout time.Duration) *Closer {
	if forcedTimeout <= 0 {
		forcedTimeout = defaultForcedTimeout
	}

	return &Closer{forcedTimeout: forcedTimeout}
}

// Add регистрирует функцию закрытия. Потокобезопасно.
func (c *Closer) Add(f Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
}

// Close выполняется не более одного раза; повторные вызовы возвращают nil.
func (c *Closer) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		funcs := c.funcs
		c.mu.Unlock()

		err = c.closeAll(ctx, funcs)
	})

	return err
}

func (c *Closer) closeAll(ctx context.Context, funcs []Func) error {
	var errs []error

	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		done := make(chan error, 1)
		go func() {
			done <- f(ctx)
		}()

		select {
		case closeErr := <-done:
			if closeErr != nil {
				errs = append(errs, closeErr)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("graceful shutdown interrupted with %d/%d resources left: %w",
				i+1, len(funcs), ctx.Err()))
			errs = append(errs, c.closeForced(funcs[:i+1])...)

			return errors.Join(errs...)
		}
	}

	return errors.Join(errs...)
}

// closeForced параллельно закрывает оставшиеся ресурсы, не дольше forcedTimeout.
func (c *Closer) closeForced(funcs []Func) []error {
	forcedCtx, cancel := context.WithTimeout(context.Background(), c.forcedTimeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, f := range funcs {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(forcedCtx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("forced close: %w", err))
				mu.Unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-forcedCtx.Done():
		mu.Lock()
		errs = append(errs, fmt.Errorf("forced close did not finish within %s", c.forcedTimeout))
		mu.Unlock()
	}

	// Отставшие горутины могут дописывать errs после таймаута, отдаём срез-копию
	mu.Lock()
	defer mu.Unlock()
	return append([]error(nil), errs...)
}
