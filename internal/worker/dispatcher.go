// Package worker runs webhook deliveries on a bounded pool.
//
// Every accepted work item ends in exactly one terminal record, either
// delivered or failed. A failed attempt with attempts left is retried
// after a backoff as a fresh work item; the retry is only submitted once
// the previous attempt has finished, and sends sharing a lineage are
// additionally serialized.
package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/pkg/metrics"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("dispatcher is closed")

// RequestBuilder builds the signed request for one attempt.
type RequestBuilder interface {
	CreateRequest(ctx context.Context, item *models.WorkItem) (*http.Request, error)
}

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Retry       RetryPolicy
	Observers   []Observer

	// ObserveTimeout bounds each Observer call.
	ObserveTimeout time.Duration
}

type Dispatcher struct {
	sender   RequestBuilder
	client   *http.Client
	logger   *zap.Logger
	opts     Options
	lineages *lineageLocks

	queue chan *models.WorkItem
	quit  chan struct{}

	// ctx is cancelled to abandon sends still running at shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	workers  sync.WaitGroup
	inflight sync.WaitGroup
}

// NewDispatcher starts opts.Workers delivery goroutines sharing client.
func NewDispatcher(sender RequestBuilder, client *http.Client, logger *zap.Logger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Retry == nil {
		opts.Retry = ExponentialBackoff{}
	}
	if opts.ObserveTimeout <= 0 {
		opts.ObserveTimeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:   sender,
		client:   client,
		logger:   logger,
		opts:     opts,
		lineages: newLineageLocks(),
		queue:    make(chan *models.WorkItem, opts.QueueSize),
		quit:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	d.workers.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.run()
	}
	return d
}

// Enqueue hands items to the pool. It blocks while the queue is full and
// returns early if ctx ends or the dispatcher closes; items accepted
// before the error still complete.
func (d *Dispatcher) Enqueue(ctx context.Context, items ...*models.WorkItem) error {
	for _, item := range items {
		if err := d.submit(ctx, item, true); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) submit(ctx context.Context, item *models.WorkItem, fresh bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if fresh {
		d.inflight.Add(1)
	}
	select {
	case d.queue <- item:
		metrics.DispatchQueueSize.WithLabelValues("inprocess").Set(float64(len(d.queue)))
		return nil
	case <-d.quit:
		if fresh {
			d.inflight.Done()
		}
		return ErrClosed
	case <-ctx.Done():
		if fresh {
			d.inflight.Done()
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.workers.Done()
	for {
		select {
		case <-d.quit:
			return
		case item := <-d.queue:
			metrics.DispatchQueueSize.WithLabelValues("inprocess").Set(float64(len(d.queue)))
			d.deliver(item)
		}
	}
}

func (d *Dispatcher) deliver(item *models.WorkItem) {
	unlock := d.lineages.lock(item.ID)
	rec := d.attempt(item)
	unlock()

	d.report(rec)
	if rec.Status == models.DeliveryStatusRetrying {
		d.scheduleRetry(item.NextAttempt())
		return
	}
	d.inflight.Done()
}

// attempt performs one send and classifies the result.
func (d *Dispatcher) attempt(item *models.WorkItem) models.DeliveryRecord {
	start := time.Now()
	rec := models.NewDeliveryRecord(item, models.DeliveryStatusSending)
	defer func() {
		rec.Duration = time.Since(start)
		metrics.DeliveryAttempts.WithLabelValues(string(rec.Status)).Inc()
		metrics.DeliveryDuration.WithLabelValues(string(rec.Status)).Observe(rec.Duration.Seconds())
	}()

	req, err := d.sender.CreateRequest(d.ctx, item)
	if err != nil {
		rec.Status = models.DeliveryStatusFailed
		rec.Reason = models.ReasonRequest
		rec.Error = err.Error()
		return rec
	}

	var derr *models.DeliveryError
	resp, err := d.client.Do(req)
	if err != nil {
		if d.ctx.Err() != nil {
			rec.Status = models.DeliveryStatusFailed
			rec.Reason = models.ReasonShutdown
			rec.Error = err.Error()
			return rec
		}
		derr = &models.DeliveryError{Err: err}
	} else {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		rec.StatusCode = resp.StatusCode

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			rec.Status = models.DeliveryStatusDelivered
			return rec
		case resp.StatusCode == http.StatusGone:
			rec.Status = models.DeliveryStatusFailed
			rec.Reason = models.ReasonGone
			return rec
		}
		derr = &models.DeliveryError{StatusCode: resp.StatusCode}
	}

	rec.Error = derr.Error()
	if item.Attempt() >= d.opts.MaxAttempts {
		rec.Status = models.DeliveryStatusFailed
		rec.Reason = models.ReasonExhausted
		return rec
	}
	rec.Status = models.DeliveryStatusRetrying
	return rec
}

func (d *Dispatcher) scheduleRetry(next *models.WorkItem) {
	metrics.DeliveryRetries.Inc()
	delay := d.opts.Retry.NextDelay(next.Offset)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			if err := d.submit(context.Background(), next, false); err != nil {
				d.abandon(next)
			}
		case <-d.quit:
			d.abandon(next)
		}
	}()
}

// abandon closes a lineage that cannot run because of shutdown.
func (d *Dispatcher) abandon(item *models.WorkItem) {
	rec := models.NewDeliveryRecord(item, models.DeliveryStatusFailed)
	rec.Reason = models.ReasonShutdown
	d.report(rec)
	d.inflight.Done()
}

func (d *Dispatcher) report(rec models.DeliveryRecord) {
	fields := []zap.Field{
		zap.String("work_item_id", rec.WorkItemID),
		zap.String("webhook_id", rec.WebHookID),
		zap.String("user", rec.User),
		zap.Int("attempt", rec.Attempt),
		zap.String("status", string(rec.Status)),
	}
	if rec.StatusCode != 0 {
		fields = append(fields, zap.Int("status_code", rec.StatusCode))
	}
	if rec.Error != "" {
		fields = append(fields, zap.String("error", rec.Error))
	}

	switch rec.Status {
	case models.DeliveryStatusDelivered:
		d.logger.Info("Webhook delivered", fields...)
		metrics.DeliveryOutcomes.WithLabelValues(string(rec.Status), "").Inc()
	case models.DeliveryStatusFailed:
		d.logger.Error("Webhook delivery failed permanently", append(fields, zap.String("reason", rec.Reason))...)
		metrics.DeliveryOutcomes.WithLabelValues(string(rec.Status), rec.Reason).Inc()
	default:
		d.logger.Warn("Webhook delivery failed, retrying", fields...)
	}

	for _, o := range d.opts.Observers {
		d.observe(o, rec)
	}
}

// observe runs o with a deadline of ObserveTimeout.
func (d *Dispatcher) observe(o Observer, rec models.DeliveryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.ObserveTimeout)
	defer cancel()
	o.Observe(ctx, rec)
}

// Close stops accepting work, waits for running sends until ctx ends,
// reports everything still queued or waiting to retry as failed, and
// releases the shared client's connections. Only the first call acts.
func (d *Dispatcher) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		close(d.quit)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		if !waitFor(ctx, &d.workers) {
			err = ctx.Err()
			d.cancel()
			d.workers.Wait()
		}
		d.drain()

		if !waitFor(ctx, &d.inflight) && err == nil {
			err = ctx.Err()
		}
		d.cancel()
		d.client.CloseIdleConnections()
		metrics.DispatchQueueSize.WithLabelValues("inprocess").Set(0)
	})
	return err
}

func (d *Dispatcher) drain() {
	for {
		select {
		case item := <-d.queue:
			d.abandon(item)
		default:
			return
		}
	}
}

func waitFor(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
