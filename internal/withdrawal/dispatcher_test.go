package withdrawal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/transaction"
)

func newTestDispatcher(queue chan<- int64) *Dispatcher {
	cfg := config.WithdrawalConfig{
		MaxRetries:        3,
		DueScanInterval:   10 * time.Millisecond,
		RetryScanInterval: 10 * time.Millisecond,
	}
	return NewDispatcher(nil, queue, cfg, logger.New("test"))
}

func stubList(rows ...transaction.Transaction) func(context.Context) ([]transaction.Transaction, error) {
	return func(ctx context.Context) ([]transaction.Transaction, error) {
		return rows, nil
	}
}

func TestDispatcherScanEnqueuesFoundIDs(t *testing.T) {
	queue := make(chan int64, 8)
	d := newTestDispatcher(queue)

	d.scan(context.Background(), "due", stubList(
		transaction.Transaction{ID: 3},
		transaction.Transaction{ID: 7},
	))

	close(queue)
	var got []int64
	for id := range queue {
		got = append(got, id)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Errorf("Expected ids [3 7] enqueued in scan order, got %v", got)
	}
}

// A failing scan logs and enqueues nothing; the next tick tries again.
func TestDispatcherScanListError(t *testing.T) {
	queue := make(chan int64, 8)
	d := newTestDispatcher(queue)

	d.scan(context.Background(), "due", func(ctx context.Context) ([]transaction.Transaction, error) {
		return nil, errors.New("connection refused")
	})

	if len(queue) != 0 {
		t.Errorf("Expected nothing enqueued after a failed scan, got %d id(s)", len(queue))
	}
}

func TestDispatcherScanStopsOnCancelWhenQueueFull(t *testing.T) {
	queue := make(chan int64, 1)
	queue <- 99 // fill the queue so the next enqueue blocks
	d := newTestDispatcher(queue)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.scan(ctx, "due", stubList(
			transaction.Transaction{ID: 1},
			transaction.Transaction{ID: 2},
		))
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not return while blocked on a full queue")
	}
}

func TestDispatcherScanLoopEnqueuesOnTick(t *testing.T) {
	queue := make(chan int64, 8)
	d := newTestDispatcher(queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.scanLoop(ctx, 5*time.Millisecond, "due", stubList(transaction.Transaction{ID: 11}))

	select {
	case id := <-queue:
		if id != 11 {
			t.Errorf("Expected id 11 from the scan loop, got %d", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scan loop never enqueued a due withdrawal")
	}
}

func TestDispatcherStartStopsOnCancel(t *testing.T) {
	queue := make(chan int64, 1)
	// Hour-long intervals: Start must stop on cancellation, not on a tick.
	cfg := config.WithdrawalConfig{
		MaxRetries:        3,
		DueScanInterval:   time.Hour,
		RetryScanInterval: time.Hour,
	}
	d := NewDispatcher(nil, queue, cfg, logger.New("test"))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Dispatcher did not stop after context cancellation")
	}
}
