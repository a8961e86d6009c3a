// Package workerpool provides the persistent worker pool GEMM calls hand
// their packing, row-quantization and column-tile tasks to.
//
// Workers are spawned once and reused, so per-call cost is one WaitGroup
// and a handful of channel sends. A Pool satisfies qnbit.Executor.
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type workItem struct {
	fn      func()
	barrier *sync.WaitGroup
}

// Pool is a fixed set of worker goroutines.
type Pool struct {
	size  int
	tasks chan workItem

	// mu orders sends on tasks against Close.
	mu     sync.RWMutex
	closed atomic.Bool
}

// New starts a pool of size workers. size <= 0 uses GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = max(runtime.GOMAXPROCS(0), 1)
	}
	p := &Pool{
		size:  size,
		tasks: make(chan workItem, size*2),
	}
	for range size {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for item := range p.tasks {
		item.fn()
		item.barrier.Done()
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Close stops the workers once queued work drains. Further calls run
// inline on the caller's goroutine. Close is idempotent and safe to call
// while other goroutines are submitting work.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return
	}
	p.closed.Store(true)
	close(p.tasks)
}

// submit queues item, or runs it on the caller when the pool is closed.
func (p *Pool) submit(item workItem) {
	p.mu.RLock()
	if p.closed.Load() {
		p.mu.RUnlock()
		item.fn()
		item.barrier.Done()
		return
	}
	p.tasks <- item
	p.mu.RUnlock()
}

// ParallelFor calls fn(i) for every i in [0, n) and blocks until all calls
// return. Workers claim indices from a shared counter, so uneven tasks
// balance out.
func (p *Pool) ParallelFor(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)
	if workers == 1 || p.closed.Load() {
		for i := range n {
			fn(i)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		p.submit(workItem{
			fn: func() {
				for {
					i := int(next.Add(1)) - 1
					if i >= n {
						return
					}
					fn(i)
				}
			},
			barrier: &wg,
		})
	}
	wg.Wait()
}

// ParallelForRange splits [0, n) into at most Size contiguous ranges and
// calls fn(start, end) for each.
func (p *Pool) ParallelForRange(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)
	if workers == 1 || p.closed.Load() {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		p.submit(workItem{
			fn:      func() { fn(start, end) },
			barrier: &wg,
		})
	}
	wg.Wait()
}
