package worker

import (
	"sync/atomic"

	"github.com/katvier/naia/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type WorkerWakeupChan chan int
type WorkerStatus int

// Task is the unit of work a worker executes when awake. The boolean
// return indicates whether any work was actually performed; a worker
// will keep invoking its task until it reports no work remaining, at
// which point the worker goes back to sleep.
type Task func(Worker) (bool, error)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Sleep() bool
	Close()
}

type taskWorker struct {
	label      string
	task       Task
	wakeupChan WorkerWakeupChan

	// currentStatus is written by the worker goroutine and read by any
	// goroutine waking the pool, so access must be atomic.
	currentStatus atomic.Int32
}

func NewWorker(label string, task Task) *taskWorker {
	worker := &taskWorker{
		label:      label,
		task:       task,
		wakeupChan: make(WorkerWakeupChan),
	}
	worker.setStatus(Sleeping)

	return worker
}

// Start runs this worker's task until it reports that no further work is
// available, then puts the worker to sleep until it's woken up via it's
// wakeup channel. Start only returns once the wakeup channel is closed.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker with label %v\n", worker.label)
	for {
		worker.setStatus(Working)
		for {
			didWork, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker with label %v has reported an error(%T): %v\n", worker.label, err, err.Error())
				break
			}

			if !didWork {
				break
			}
		}

		if !worker.Sleep() {
			return
		}
	}
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return WorkerStatus(worker.currentStatus.Load())
}

func (worker *taskWorker) setStatus(status WorkerStatus) {
	worker.currentStatus.Store(int32(status))
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the Worker by closing the WakeChan.
// Note that this does not interupt currently running
// goroutines.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

// Sleep puts a worker to sleep until it's wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.setStatus(Sleeping)

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.setStatus(Working)
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
		worker.setStatus(Finished)
	}

	return isAlive
}
