// Package workerpool runs independent jobs on a bounded number of goroutines.
package workerpool

import (
	"sync"
	"sync/atomic"
)

// Job is a unit of work; a non-nil error is reported by Wait
type Job func() error

// Pool runs at most n jobs at a time. A Pool may be reused after Wait.
type Pool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool

	mu  sync.Mutex
	err error
}

// New creates a pool running at most n jobs concurrently
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: make(chan struct{}, n)}
}

// Size returns the number of concurrent workers
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Add queues jobs without blocking the caller
func (p *Pool) Add(jobs []Job) {
	for _, job := range jobs {
		p.wg.Add(1)
		go func(job Job) {
			p.sem <- struct{}{}
			p.run(job)
		}(job)
	}
}

// AddBlocking queues jobs, blocking until each one has a free worker
func (p *Pool) AddBlocking(jobs []Job) {
	for _, job := range jobs {
		p.wg.Add(1)
		p.sem <- struct{}{}
		go p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		<-p.sem
		p.wg.Done()
	}()
	if p.stopped.Load() {
		return
	}
	if err := job(); err != nil {
		p.mu.Lock()
		if p.err == nil {
			p.err = err
		}
		p.mu.Unlock()
	}
}

// Stop makes every job that has not started yet return immediately
func (p *Pool) Stop() {
	p.stopped.Store(true)
}

// Wait blocks until every queued job has finished and returns the first error
func (p *Pool) Wait() error {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.err
	p.err = nil
	return err
}
