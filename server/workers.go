package server

import (
	"context"
	"hash/fnv"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrWorkerPoolStopped = errors.New("worker pool stopped")

type Job func(ctx context.Context)

// WorkerPool runs blocking handler work off the read goroutines. Jobs submitted with the
// same key always run on the same worker, in submission order.
type WorkerPool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	queues  []chan Job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(ctx context.Context, workers int, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		ctx:    ctx,
		cancel: cancel,
		queues: make([]chan Job, workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Job, queueSize)
		p.wg.Add(1)
		go p.run(p.queues[i])
	}
	return p
}

// Submit queues job on the worker owning key, waiting for space if that worker is busy
func (p *WorkerPool) Submit(key string, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrWorkerPoolStopped
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	queue := p.queues[h.Sum32()%uint32(len(p.queues))]
	select {
	case queue <- job:
		return nil
	case <-p.ctx.Done():
		return ErrWorkerPoolStopped
	}
}

// Stop rejects new jobs, lets queued ones finish and waits for the workers to exit
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *WorkerPool) run(queue <-chan Job) {
	defer p.wg.Done()
	for job := range queue {
		p.execute(job)
	}
}

func (p *WorkerPool) execute(job Job) {
	defer func() {
		if r := recover(); r != nil {
			logrus.
				WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				Error("Worker job panicked")
		}
	}()
	job(p.ctx)
}
