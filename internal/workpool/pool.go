// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

// Package workpool runs blocking units of work on a fixed set of worker
// goroutines fed from a bounded queue.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"
)

// DefaultSize is the number of workers used when Options.Size is zero.
const DefaultSize = 4

// DefaultQueue is the queue capacity used when Options.Queue is zero.
const DefaultQueue = 64

// ErrClosed is returned by Submit and Do once Close has been called.
var ErrClosed = errors.New("worker pool closed")

type metrics struct {
	tasks *prometheus.CounterVec
	busy  prometheus.Gauge
}

// newMetrics builds the pool's collectors. A nil registerer leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer, p *Pool) *metrics {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tudu_workpool_queued_tasks",
		Help: "Tasks waiting for a worker",
	}, func() float64 { return float64(p.Pending()) })

	return &metrics{
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tudu_workpool_tasks_total",
			Help: "Tasks run by the worker pool by result",
		}, []string{"result"}),
		busy: f.NewGauge(prometheus.GaugeOpts{
			Name: "tudu_workpool_busy_workers",
			Help: "Workers currently running a task",
		}),
	}
}

// Options configures a Pool.
type Options struct {
	// Size is the number of workers. Zero selects DefaultSize.
	Size int
	// Queue is how many submitted tasks may wait for a worker. Zero selects
	// DefaultQueue.
	Queue int
	// Registerer receives the pool's metrics. Nil disables registration.
	Registerer prometheus.Registerer
}

// Pool is a fixed-size worker pool. Workers share no state; each task runs
// to completion on one worker before that worker takes the next.
type Pool struct {
	size      int
	metrics   *metrics
	tasks     chan func()
	closing   chan struct{}
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a pool. Negative sizes are rejected.
func New(opts Options) (*Pool, error) {
	if opts.Size < 0 || opts.Queue < 0 {
		return nil, oops.Code("WORKPOOL_CONFIG_INVALID").
			With("size", opts.Size).
			With("queue", opts.Queue).
			Errorf("worker pool size and queue must be non-negative")
	}
	if opts.Size == 0 {
		opts.Size = DefaultSize
	}
	if opts.Queue == 0 {
		opts.Queue = DefaultQueue
	}

	p := &Pool{
		size:    opts.Size,
		tasks:   make(chan func(), opts.Queue),
		closing: make(chan struct{}),
	}
	p.metrics = newMetrics(opts.Registerer, p)
	p.wg.Add(opts.Size)
	for i := range opts.Size {
		go p.worker(i)
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task func()) {
	p.metrics.busy.Inc()
	defer p.metrics.busy.Dec()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.tasks.WithLabelValues("panic").Inc()
			slog.Error("worker task panicked", "worker", id, "panic", r)
		}
	}()
	task()
	p.metrics.tasks.WithLabelValues("done").Inc()
}

// Submit queues task, blocking while the queue is full. It returns ErrClosed
// after Close, or ctx.Err() if ctx ends first.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // callers match on context errors
	}
}

// Close stops accepting work, lets queued tasks finish and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// Do runs fn on a worker and waits for its result. If ctx ends first Do
// returns ctx.Err(). fn receives a context that is never canceled, so a task
// that has been queued always runs to completion. A panic in fn is returned
// as an error with code WORKPOOL_TASK_PANIC.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	taskCtx := context.WithoutCancel(ctx)

	err := p.Submit(ctx, func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: oops.Code("WORKPOOL_TASK_PANIC").Errorf("task panicked: %v", r)}
			}
			done <- res
		}()
		res.val, res.err = fn(taskCtx)
	})
	if err != nil {
		var zero T
		return zero, err
	}

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("waiting for worker: %w", ctx.Err())
	}
}
