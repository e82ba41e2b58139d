package withdrawal

import (
	"context"
	"sync"
	"time"

	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/transaction"
)

// Dispatcher scans for executable withdrawals and feeds their ids to the
// worker pool. Two loops run on independent tickers: due PENDING rows, and
// FAILED rows still under the retry cap. Scans overlap harmlessly with
// in-flight executions because the executor's status-scoped lock drops ids
// whose row has already moved on.
type Dispatcher struct {
	repo          *transaction.Repository
	queue         chan<- int64
	dueInterval   time.Duration
	retryInterval time.Duration
	maxRetries    int
	logger        *logger.Logger
}

func NewDispatcher(repo *transaction.Repository, queue chan<- int64, cfg config.WithdrawalConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:          repo,
		queue:         queue,
		dueInterval:   cfg.DueScanInterval,
		retryInterval: cfg.RetryScanInterval,
		maxRetries:    cfg.MaxRetries,
		logger:        log,
	}
}

// Start runs both scan loops until ctx is cancelled, then returns after they
// stop. The caller owns the queue and closes it once Start returns.
func (d *Dispatcher) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		d.scanLoop(ctx, d.dueInterval, "due", d.listDue)
	}()
	go func() {
		defer wg.Done()
		d.scanLoop(ctx, d.retryInterval, "retry", d.listRetryable)
	}()

	wg.Wait()
}

func (d *Dispatcher) scanLoop(ctx context.Context, interval time.Duration, name string, list func(context.Context) ([]transaction.Transaction, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Infof("Withdrawal %s scan started (interval %s)", name, interval)

	for {
		select {
		case <-ctx.Done():
			d.logger.Infof("Withdrawal %s scan stopped", name)
			return
		case <-ticker.C:
			d.scan(ctx, name, list)
		}
	}
}

func (d *Dispatcher) scan(ctx context.Context, name string, list func(context.Context) ([]transaction.Transaction, error)) {
	rows, err := list(ctx)
	if err != nil {
		d.logger.Errorf("Withdrawal %s scan failed: %v", name, err)
		return
	}
	if len(rows) == 0 {
		return
	}

	d.logger.Infof("Withdrawal %s scan found %d transaction(s)", name, len(rows))
	for _, t := range rows {
		select {
		case d.queue <- t.ID:
			dispatchedTotal.WithLabelValues(name).Inc()
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) listDue(ctx context.Context) ([]transaction.Transaction, error) {
	return d.repo.ListDuePendingWithdrawals(ctx, time.Now())
}

func (d *Dispatcher) listRetryable(ctx context.Context) ([]transaction.Transaction, error) {
	return d.repo.ListFailedRetryable(ctx, d.maxRetries)
}
