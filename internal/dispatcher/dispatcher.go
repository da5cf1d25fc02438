// Package dispatcher coordinates the worker pool over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/mirowlabs/analysis-service/internal/analysis"
	"github.com/mirowlabs/analysis-service/internal/worker"
)

// Dispatcher owns the queue handle handed to the API and the worker pool
// draining it.
type Dispatcher struct {
	queue analysis.Queue
	pool  []*worker.Worker
}

// New creates a Dispatcher over the given queue and workers.
func New(queue analysis.Queue, pool []*worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, pool: pool}
}

// Run starts every worker and blocks until the context finishes and all
// workers have drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(len(d.pool))
	for _, w := range d.pool {
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue hands a job to the queue, wrapping any rejection for callers.
func (d *Dispatcher) Enqueue(ctx context.Context, item analysis.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
