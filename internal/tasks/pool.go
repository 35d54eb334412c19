// Package tasks runs fire-and-forget background work on a bounded queue
// drained by a fixed set of workers.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/metrics"
)

// Func is one unit of background work. The context carries the per-task
// timeout.
type Func func(ctx context.Context) error

// Submitter is implemented by Pool.
type Submitter interface {
	Submit(name string, fn Func) bool
}

type task struct {
	name string
	fn   Func
}

// Pool executes submitted tasks. Submit never blocks: when the queue is full
// the task is dropped and logged. Errors and panics are logged per task.
type Pool struct {
	queue   chan task
	timeout time.Duration
	logger  *logrus.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(cfg config.TasksConfig, logger *logrus.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		queue:   make(chan task, queueSize),
		timeout: cfg.TaskTimeout,
		logger:  logger,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit queues fn and reports whether it was accepted.
func (p *Pool) Submit(name string, fn Func) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.WithField("task", name).Warn("Task pool stopped, dropping task")
		metrics.TasksSubmitted.WithLabelValues(name, "dropped").Inc()
		return false
	}

	select {
	case p.queue <- task{name: name, fn: fn}:
		metrics.TasksSubmitted.WithLabelValues(name, "queued").Inc()
		metrics.TaskQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		p.logger.WithField("task", name).Warn("Task queue full, dropping task")
		metrics.TasksSubmitted.WithLabelValues(name, "dropped").Inc()
		return false
	}
}

// Stop rejects new tasks, lets the workers drain the queue and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for t := range p.queue {
		metrics.TaskQueueDepth.Set(float64(len(p.queue)))
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.safeCall(ctx, t)
	if err != nil {
		metrics.TasksSubmitted.WithLabelValues(t.name, "failed").Inc()
		p.logger.WithError(err).WithFields(logrus.Fields{
			"task":     t.name,
			"duration": time.Since(start),
		}).Error("Background task failed")
		return
	}

	metrics.TasksSubmitted.WithLabelValues(t.name, "succeeded").Inc()
}

func (p *Pool) safeCall(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.fn(ctx)
}

var _ Submitter = (*Pool)(nil)
