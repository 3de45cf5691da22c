// Package notify delivers lifecycle events to owners, best-effort and off the
// request path. Outcomes are recorded to a DeliveryLog and never surface as
// lifecycle failures.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
)

const (
	DefaultQueueSize      = 256
	DefaultWorkers        = 2
	DefaultDeliverTimeout = 10 * time.Second
)

// Config tunes a Dispatcher.
type Config struct {
	QueueSize      int
	Workers        int
	DeliverTimeout time.Duration
}

// Dispatcher fans events out to deliverers from a bounded queue.
type Dispatcher struct {
	deliverers []Deliverer
	log        DeliveryLog
	logger     *slog.Logger

	workers        int
	deliverTimeout time.Duration
	now            func() time.Time

	mu      sync.RWMutex
	closed  bool
	queue   chan tag.Event
	started sync.Once
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. log may be nil.
func NewDispatcher(cfg Config, deliverers []Deliverer, log DeliveryLog, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = DefaultDeliverTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		deliverers:     deliverers,
		log:            log,
		logger:         logger,
		workers:        cfg.Workers,
		deliverTimeout: cfg.DeliverTimeout,
		now:            time.Now,
		queue:          make(chan tag.Event, cfg.QueueSize),
	}
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
		d.logger.Debug("notification dispatcher started", "workers", d.workers)
	})
}

// Publish enqueues evt without blocking.
func (d *Dispatcher) Publish(_ context.Context, evt tag.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- evt:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to drain, up to ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining notification queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for evt := range d.queue {
		d.dispatch(evt)
	}
}

func (d *Dispatcher) dispatch(evt tag.Event) {
	if evt.Kind == tag.EventScanned && !evt.Record.Settings.InstantAlerts {
		d.record(evt, "", StatusSkipped, nil)
		return
	}
	if len(d.deliverers) == 0 {
		d.record(evt, "", StatusSkipped, nil)
		return
	}

	for _, deliverer := range d.deliverers {
		ctx, cancel := context.WithTimeout(context.Background(), d.deliverTimeout)
		err := deliverer.Deliver(ctx, evt)
		cancel()

		if err != nil {
			d.logger.Warn("notification delivery failed", "kind", evt.Kind, "code", evt.Code, "deliverer", deliverer.Name(), "error", err)
			d.record(evt, deliverer.Name(), StatusFailed, err)
			continue
		}
		d.record(evt, deliverer.Name(), StatusDelivered, nil)
	}
}

func (d *Dispatcher) record(evt tag.Event, deliverer string, status DeliveryStatus, deliveryErr error) {
	if d.log == nil {
		return
	}
	entry := &Delivery{
		EventKind: evt.Kind,
		Code:      evt.Code,
		Deliverer: deliverer,
		Status:    status,
		CreatedAt: d.now(),
	}
	if deliveryErr != nil {
		entry.Error = deliveryErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.deliverTimeout)
	defer cancel()
	if err := d.log.Record(ctx, entry); err != nil {
		d.logger.Error("recording delivery status", "code", evt.Code, "error", err)
	}
}
