package withdrawal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/transaction"
)

const (
	defaultBackoffBase = 10 * time.Second
	maxAttempts        = 3
)

// Executor settles one withdrawal; satisfied by *Service.
type Executor interface {
	Execute(ctx context.Context, id int64) (*transaction.Transaction, error)
}

// Pool is a fixed set of workers draining the dispatch queue. Unexpected
// execution errors are retried in place with exponential backoff before the
// id is given up on; the next scan will find the row again.
type Pool struct {
	executor    Executor
	queue       <-chan int64
	workers     int
	backoffBase time.Duration
	logger      *logger.Logger
}

func NewPool(executor Executor, queue <-chan int64, workers int, log *logger.Logger) *Pool {
	return &Pool{
		executor:    executor,
		queue:       queue,
		workers:     workers,
		backoffBase: defaultBackoffBase,
		logger:      log,
	}
}

// Start launches the workers and blocks until the queue is closed and drained.
// ctx bounds individual executions, not the pool's lifetime: shutdown is
// "close the queue, then wait", so accepted work always finishes.
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.workers)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			defer wg.Done()
			p.logger.Debugf("Withdrawal worker %d started", n)
			for id := range p.queue {
				p.process(ctx, id)
			}
			p.logger.Debugf("Withdrawal worker %d stopped", n)
		}(i)
	}

	wg.Wait()
}

func (p *Pool) process(ctx context.Context, id int64) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		t, err := p.executor.Execute(ctx, id)
		if err == nil {
			executionsTotal.WithLabelValues(t.Status).Inc()
			return
		}

		if errors.Is(err, transaction.ErrNotFound) {
			// Another worker settled it first, or the row left the
			// executable statuses. Nothing to do.
			p.logger.Debugf("Withdrawal %d no longer executable, skipping", id)
			return
		}

		executionErrorsTotal.Inc()
		if attempt == maxAttempts-1 {
			break
		}

		backoff := p.backoffBase * (1 << attempt)
		p.logger.Errorf("Withdrawal %d execution error (attempt %d/%d), retrying in %s: %v",
			id, attempt+1, maxAttempts, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}

	p.logger.Errorf("Withdrawal %d gave up after %d attempts; will be retried by the next scan", id, maxAttempts)
}
