package worker

import (
	"errors"
	"sync"
)

// WorkerPool contains a fixed set of workers which are started (each in
// their own goroutine) when the pool is started. The contained WaitGroup
// is automatically controlled by the WorkerPool.
type WorkerPool struct {
	workers []Worker
	Wg      sync.WaitGroup

	// mutex serialises lifecycle transitions against wakeup attempts so a
	// wakeup can never send on a wakeup channel the pool just closed.
	mutex   sync.Mutex
	started bool
	closed  bool
}

// NewWorkerPool creates a new WorkerPool struct
// and initialises the 'workers' slice.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0)}
}

// Start cycles through all the workers
// currently inside the WorkerPool and creates
// a goroutine for each. The 'Start' method of
// each worker is executed concurrently.
//
// Start does NOT block, however consumers
// can wait on the WaitGroup in the pool if they
// wish.
func (pool *WorkerPool) Start() error {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.Wg.Add(1)
		go func(wg *sync.WaitGroup, w Worker) {
			defer wg.Done()
			w.Start()
		}(&pool.Wg, worker)
	}

	return nil
}

// PushWorker inserts the workers provided in to the worker pool. Workers
// can only be pushed before the pool is started.
func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if pool.started {
		return errors.New("cannot push worker to already started worker pool")
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// Size returns the number of workers attached to this pool.
func (pool *WorkerPool) Size() int {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	return len(pool.workers)
}

// WakeupWorkers will search for sleeping workers in the pool
// and will send on their WakeupChannel to wake up sleeping workers.
func (pool *WorkerPool) WakeupWorkers() error {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if !pool.started {
		return errors.New("cannot wakeup workers on worker pool that is not started")
	}
	if pool.closed {
		return errors.New("cannot wakeup workers on a closed worker pool")
	}

	for _, w := range pool.workers {
		if w.Status() == Sleeping {
			select {
			case w.WakeupChan() <- 1:
			default:
			}
		}
	}

	return nil
}

// Close will cycle through all the workers inside this
// worker pool and close their wakeup channels, waiting
// for all worker goroutines to finish before returning.
func (pool *WorkerPool) Close() {
	pool.mutex.Lock()
	if !pool.started || pool.closed {
		pool.mutex.Unlock()
		return
	}

	pool.closed = true
	for _, w := range pool.workers {
		w.Close()
	}
	pool.mutex.Unlock()

	pool.Wg.Wait()

	pool.mutex.Lock()
	pool.started = false
	pool.closed = false
	pool.mutex.Unlock()
}