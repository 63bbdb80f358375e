// Package downloads implements the concurrent download queue: a bounded
// pool of workers draining a FIFO job queue, with cooperative cancellation
// and a bounded history of finished jobs.
//
// The service mutex is the single dispatch authority: workers claim jobs,
// report progress, and the run loop applies terminal transitions all under
// the same lock, so no job can be claimed twice and snapshots are always
// consistent. The resolve and download work itself runs outside the lock.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/katvier/naia/internal/event"
	"github.com/katvier/naia/internal/media"
	"github.com/katvier/naia/internal/provider"
	"github.com/katvier/naia/pkg/logger"
	"github.com/katvier/naia/pkg/worker"
)

type (
	// Resolver is the link resolution capability the queue depends on.
	Resolver interface {
		Resolve(ctx context.Context, ref media.EpisodeReference, preferred ...string) (*provider.DirectLink, error)
	}

	// Engine performs the actual media transfer for a resolved link,
	// reporting progress as a percentage through the supplied callback.
	Engine interface {
		Download(ctx context.Context, link *provider.DirectLink, outputPath string, onProgress func(percent float64)) error
	}

	// Config tunes the download service. Zero values fall back to the
	// package defaults.
	Config struct {
		// WorkerCount bounds how many episodes download concurrently.
		WorkerCount int

		// MaxHistory bounds how many finished jobs the status output
		// remembers.
		MaxHistory int

		// OutputDir is the directory downloaded episodes are written to.
		OutputDir string
	}

	// completion is the message a worker sends to the run loop once a
	// claimed job has finished processing, successfully or not.
	completion struct {
		id  JobID
		err error
	}

	// DownloadService owns the job queue and its worker pool. Construct
	// with New, then call Run to begin processing.
	DownloadService struct {
		mutex   sync.Mutex
		jobs    []*Job
		history []*Job
		nextID  JobID
		runCtx  context.Context

		config      Config
		resolver    Resolver
		engine      Engine
		workerPool  *worker.WorkerPool
		completions chan completion
		eventBus    event.EventDispatcher

		logger logger.Logger
	}
)

const (
	DefaultWorkerCount = 3
	DefaultMaxHistory  = 10

	// workerWakeupInterval guards against a wakeup racing a worker which
	// was observed awake but went to sleep before the signal landed.
	workerWakeupInterval = time.Second * 2
)

// ErrJobNotFound indicates no job with the given ID exists in the active
// set or the history.
var ErrJobNotFound = errors.New("no job with this ID exists")

// New constructs a download service with config's worker count, history
// bound and output directory, resolving links through resolver and
// transferring media through engine.
func New(config Config, resolver Resolver, engine Engine, eventBus event.EventDispatcher) *DownloadService {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultWorkerCount
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultMaxHistory
	}

	service := &DownloadService{
		config:      config,
		resolver:    resolver,
		engine:      engine,
		workerPool:  worker.NewWorkerPool(),
		completions: make(chan completion),
		eventBus:    eventBus,
		logger:      logger.Get("Downloads"),
	}

	for i := 0; i < config.WorkerCount; i++ {
		service.workerPool.PushWorker(worker.NewWorker(fmt.Sprintf("Download:%d", i), service.processNext))
	}

	return service
}

// Run starts the worker pool and processes completion messages until the
// context is cancelled. It blocks; run it in its own goroutine.
func (service *DownloadService) Run(ctx context.Context) error {
	service.mutex.Lock()
	service.runCtx = ctx
	service.mutex.Unlock()

	if err := service.workerPool.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(workerWakeupInterval)
	defer ticker.Stop()

	for {
		select {
		case comp := <-service.completions:
			service.finalize(comp)
		case <-ticker.C:
			service.workerPool.WakeupWorkers()
		case <-ctx.Done():
			// Workers may be mid-job and blocked on the completions
			// channel; keep draining while the pool shuts down.
			closed := make(chan struct{})
			go func() {
				service.workerPool.Close()
				close(closed)
			}()

			for {
				select {
				case comp := <-service.completions:
					service.finalize(comp)
				case <-closed:
					return nil
				}
			}
		}
	}
}

// Add admits one independent download job per given episode at the back of
// the queue, returning their IDs in submission order. References are never
// bundled: N references always produce N jobs.
func (service *DownloadService) Add(refs ...media.EpisodeReference) []JobID {
	if len(refs) == 0 {
		return nil
	}

	ids := make([]JobID, 0, len(refs))
	service.mutex.Lock()
	for _, ref := range refs {
		service.nextID++
		job := newJob(service.nextID, ref)
		service.jobs = append(service.jobs, job)
		ids = append(ids, job.id)

		service.logger.Emit(logger.NEW, "Queued job %d for %v\n", job.id, ref)
	}
	service.mutex.Unlock()

	service.eventBus.Dispatch(event.QueueUpdateEvent, nil)
	service.workerPool.WakeupWorkers()

	return ids
}

// Cancel requests cancellation of the job with the given ID. A queued job
// is cancelled immediately; a job being processed has its context torn down
// and reaches the Cancelled state once its worker notices. Cancelling an
// already-finished job is a no-op.
func (service *DownloadService) Cancel(id JobID) error {
	service.mutex.Lock()

	for i, job := range service.jobs {
		if job.id != id {
			continue
		}

		if job.state == Queued {
			service.completeLocked(i, job, Cancelled, nil)
			service.mutex.Unlock()

			service.eventBus.Dispatch(event.QueueUpdateEvent, nil)
			service.eventBus.Dispatch(event.DownloadCompleteEvent, int64(job.id))
			return nil
		}

		job.cancelRequested = true
		if job.cancel != nil {
			job.cancel()
		}
		service.mutex.Unlock()

		service.logger.Emit(logger.REMOVE, "Cancellation requested for in-flight job %d\n", id)
		return nil
	}

	for _, job := range service.history {
		if job.id == id {
			service.mutex.Unlock()
			return nil
		}
	}

	service.mutex.Unlock()
	return ErrJobNotFound
}

// Snapshot returns a consistent view of the active queue and the finished
// history, taken under a single lock acquisition.
func (service *DownloadService) Snapshot() Status {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	status := Status{
		Active:    make([]JobSnapshot, len(service.jobs)),
		Completed: make([]JobSnapshot, len(service.history)),
	}

	for i, job := range service.jobs {
		status.Active[i] = job.snapshot()
	}
	for i, job := range service.history {
		status.Completed[i] = job.snapshot()
	}

	return status
}

// Job returns the snapshot of a single job, from the active set or the
// history.
func (service *DownloadService) Job(id JobID) (JobSnapshot, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	for _, job := range service.jobs {
		if job.id == id {
			return job.snapshot(), nil
		}
	}
	for _, job := range service.history {
		if job.id == id {
			return job.snapshot(), nil
		}
	}

	return JobSnapshot{}, ErrJobNotFound
}

// processNext is the worker task: claim the oldest queued job, resolve and
// download it, and report the outcome to the run loop. Reports no work when
// the queue holds no claimable job.
func (service *DownloadService) processNext(w worker.Worker) (bool, error) {
	job, ctx := service.claimNext()
	if job == nil {
		return false, nil
	}

	err := service.process(ctx, job)

	// The run loop consumes completions even while shutting down, so an
	// unconditional send cannot deadlock the pool teardown.
	service.completions <- completion{id: job.id, err: err}

	return true, nil
}

// claimNext transfers the oldest queued job to this worker, moving it to
// Resolving and arming its cancellation context. Nil when nothing is
// claimable or the service is not running yet.
func (service *DownloadService) claimNext() (*Job, context.Context) {
	service.mutex.Lock()

	if service.runCtx == nil {
		service.mutex.Unlock()
		return nil, nil
	}

	for _, job := range service.jobs {
		if job.state != Queued {
			continue
		}

		ctx, cancel := context.WithCancel(service.runCtx)
		job.state = Resolving
		job.cancel = cancel
		service.mutex.Unlock()

		service.eventBus.Dispatch(event.DownloadUpdateEvent, int64(job.id))
		return job, ctx
	}

	service.mutex.Unlock()
	return nil, nil
}

// process runs one claimed job end to end: resolve a direct link, then hand
// it to the download engine. Returns the error which decides the job's
// terminal state.
func (service *DownloadService) process(ctx context.Context, job *Job) error {
	service.logger.Emit(logger.INFO, "Resolving link for job %d (%v)\n", job.id, job.ref)
	link, err := service.resolver.Resolve(ctx, job.ref)
	if err != nil {
		return err
	}

	service.mutex.Lock()
	if job.cancelRequested {
		service.mutex.Unlock()
		return context.Canceled
	}
	job.state = Downloading
	job.provider = link.Provider
	service.mutex.Unlock()
	service.eventBus.Dispatch(event.DownloadUpdateEvent, int64(job.id))

	outputPath := filepath.Join(service.config.OutputDir, job.ref.FileName())
	service.logger.Emit(logger.INFO, "Downloading job %d via %s to %s\n", job.id, link.Provider, outputPath)

	return service.engine.Download(ctx, link, outputPath, func(percent float64) {
		service.setProgress(job, percent)
	})
}

// finalize applies a job's terminal transition: out of the active set and
// in to the bounded history.
func (service *DownloadService) finalize(comp completion) {
	service.mutex.Lock()

	var job *Job
	index := -1
	for i, candidate := range service.jobs {
		if candidate.id == comp.id {
			job, index = candidate, i
			break
		}
	}

	if job == nil {
		// Cancelled while queued; Cancel already finalized it.
		service.mutex.Unlock()
		return
	}

	state := Completed
	switch {
	case job.cancelRequested || errors.Is(comp.err, context.Canceled):
		state = Cancelled
	case comp.err != nil:
		state = Failed
	}

	service.completeLocked(index, job, state, comp.err)
	service.mutex.Unlock()

	switch state {
	case Completed:
		service.logger.Emit(logger.SUCCESS, "Job %d completed\n", job.id)
	case Cancelled:
		service.logger.Emit(logger.REMOVE, "Job %d cancelled\n", job.id)
	default:
		service.logger.Emit(logger.ERROR, "Job %d failed: %v\n", job.id, comp.err)
	}

	service.eventBus.Dispatch(event.QueueUpdateEvent, nil)
	service.eventBus.Dispatch(event.DownloadCompleteEvent, int64(job.id))
}

// completeLocked moves jobs[index] to the given terminal state and in to
// the history, trimming the history to its bound. Caller must hold the
// service mutex.
func (service *DownloadService) completeLocked(index int, job *Job, state JobState, cause error) {
	job.state = state
	job.finishedAt = time.Now()
	if state == Completed {
		job.progress = 100
	}
	if state == Failed {
		job.err = cause
	}
	if job.cancel != nil {
		job.cancel()
		job.cancel = nil
	}

	service.jobs = append(service.jobs[:index], service.jobs[index+1:]...)
	service.history = append([]*Job{job}, service.history...)
	if len(service.history) > service.config.MaxHistory {
		service.history = service.history[:service.config.MaxHistory]
	}
}

// setProgress records a progress report for a job, dropping reports which
// arrive after the job left the Downloading state.
func (service *DownloadService) setProgress(job *Job, percent float64) {
	service.mutex.Lock()
	if job.state != Downloading {
		service.mutex.Unlock()
		return
	}

	job.progress = percent
	service.mutex.Unlock()

	service.eventBus.Dispatch(event.DownloadProgressEvent, int64(job.id))
}
