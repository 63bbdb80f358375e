// Exercises the download queue end to end against stubbed resolution and
// transfer backends: admission, the worker bound, backfill, cancellation
// of queued and in-flight jobs, and the bounded history.
package downloads_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katvier/naia/internal/downloads"
	"github.com/katvier/naia/internal/event"
	"github.com/katvier/naia/internal/media"
	"github.com/katvier/naia/internal/provider"
	"github.com/katvier/naia/pkg/logger"
)

func init() {
	logger.SetMinLoggingLevel(logger.FATAL)
}

var errExpected = errors.New("test: expected error")

// stubResolver hands back a canned link (or error) for every episode.
type stubResolver struct {
	err error
}

func (stub *stubResolver) Resolve(ctx context.Context, ref media.EpisodeReference, preferred ...string) (*provider.DirectLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stub.err != nil {
		return nil, stub.err
	}

	return &provider.DirectLink{URL: "https://cdn.example/" + ref.Slug, Provider: "VOE"}, nil
}

// stubEngine tracks transfer concurrency and can hold transfers open until
// released, so tests can observe the queue mid-flight.
type stubEngine struct {
	mutex     sync.Mutex
	active    int
	maxActive int
	completed int

	// block, when non-nil, holds every transfer open until closed.
	block chan struct{}
}

func (stub *stubEngine) Download(ctx context.Context, _ *provider.DirectLink, _ string, onProgress func(float64)) error {
	stub.mutex.Lock()
	stub.active++
	if stub.active > stub.maxActive {
		stub.maxActive = stub.active
	}
	block := stub.block
	stub.mutex.Unlock()

	defer func() {
		stub.mutex.Lock()
		stub.active--
		stub.mutex.Unlock()
	}()

	if onProgress != nil {
		onProgress(42.5)
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stub.mutex.Lock()
	stub.completed++
	stub.mutex.Unlock()
	return nil
}

func (stub *stubEngine) activeCount() int {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return stub.active
}

func (stub *stubEngine) stats() (maxActive int, completed int) {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return stub.maxActive, stub.completed
}

func episodeRef(index int) media.EpisodeReference {
	return media.EpisodeReference{
		Site:     media.SiteAniworld,
		Slug:     "test-anime",
		Season:   1,
		Episode:  index,
		Language: media.GermanDub,
	}
}

// startService constructs and runs a download service, tearing it down when
// the test completes.
func startService(t *testing.T, config downloads.Config, resolver downloads.Resolver, engine downloads.Engine) *downloads.DownloadService {
	if config.OutputDir == "" {
		config.OutputDir = t.TempDir()
	}

	service := downloads.New(config, resolver, engine, event.New())

	wg := sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		assert.Nil(t, service.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return service
}

func awaitState(t *testing.T, service *downloads.DownloadService, id downloads.JobID, state downloads.JobState) {
	t.Helper()
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		snapshot, err := service.Job(id)
		assert.Nil(c, err)
		assert.Equal(c, state, snapshot.State)
	}, time.Second*5, time.Millisecond*10)
}

func Test_Add_OneJobPerReferenceInSubmissionOrder(t *testing.T) {
	t.Parallel()

	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{}, &stubEngine{block: make(chan struct{})})

	ids := service.Add(episodeRef(1), episodeRef(2), episodeRef(3))
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0]+1, ids[1])
	assert.Equal(t, ids[1]+1, ids[2])

	// A reference submitted again gets its own fresh job (retry is just a
	// fresh add), and a batch is never collapsed in to fewer jobs.
	again := service.Add(episodeRef(1))
	require.Len(t, again, 1)
	assert.Equal(t, ids[2]+1, again[0])

	assert.Empty(t, service.Add())
}

func Test_ClaimedJob_IsResolvedAndTransferred(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{}, engine)

	id := service.Add(episodeRef(1))[0]
	awaitState(t, service, id, downloads.Completed)

	// Exactly one transfer ran for the one job; the worker must route the
	// claimed job through resolution and the engine, not merely park it.
	_, completed := engine.stats()
	assert.Equal(t, 1, completed)

	snapshot, err := service.Job(id)
	require.Nil(t, err)
	assert.Equal(t, "VOE", snapshot.Provider)
	assert.Equal(t, float64(100), snapshot.Progress)
}

func Test_Queue_NeverExceedsWorkerBound(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{block: make(chan struct{})}
	service := startService(t, downloads.Config{WorkerCount: 2}, &stubResolver{}, engine)

	ids := make([]downloads.JobID, 0, 5)
	for i := 1; i <= 5; i++ {
		id := service.Add(episodeRef(i))[0]
		ids = append(ids, id)
	}

	// Exactly two transfers run; the other three jobs stay queued.
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Equal(c, 2, engine.activeCount())

		snapshot := service.Snapshot()
		downloading, queued := 0, 0
		for _, job := range snapshot.Active {
			switch job.State {
			case downloads.Downloading:
				downloading++
				assert.Equal(c, 42.5, job.Progress)
			case downloads.Queued:
				queued++
			}
		}
		assert.Equal(c, 2, downloading)
		assert.Equal(c, 3, queued)
	}, time.Second*5, time.Millisecond*10)

	close(engine.block)
	for _, id := range ids {
		awaitState(t, service, id, downloads.Completed)
	}

	maxActive, completed := engine.stats()
	assert.LessOrEqual(t, maxActive, 2)
	assert.Equal(t, 5, completed)
}

func Test_Queue_BackfillsFinishedWorkers(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	service := startService(t, downloads.Config{WorkerCount: 3, MaxHistory: 20}, &stubResolver{}, engine)

	ids := make([]downloads.JobID, 0, 12)
	for i := 1; i <= 12; i++ {
		id := service.Add(episodeRef(i))[0]
		ids = append(ids, id)
	}

	for _, id := range ids {
		awaitState(t, service, id, downloads.Completed)
	}

	maxActive, completed := engine.stats()
	assert.LessOrEqual(t, maxActive, 3)
	assert.Equal(t, 12, completed)
	assert.Empty(t, service.Snapshot().Active)
}

func Test_Cancel_QueuedJobIsCancelledImmediately(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{block: make(chan struct{})}
	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{}, engine)

	blocked := service.Add(episodeRef(1))[0]
	queued := service.Add(episodeRef(2))[0]

	awaitState(t, service, blocked, downloads.Downloading)

	require.Nil(t, service.Cancel(queued))
	snapshot, err := service.Job(queued)
	require.Nil(t, err)
	assert.Equal(t, downloads.Cancelled, snapshot.State)

	// The blocked job is untouched by the cancellation.
	active, err := service.Job(blocked)
	require.Nil(t, err)
	assert.Equal(t, downloads.Downloading, active.State)

	close(engine.block)
	awaitState(t, service, blocked, downloads.Completed)
}

func Test_Cancel_InFlightJobStopsItsTransfer(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{block: make(chan struct{})}
	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{}, engine)

	id := service.Add(episodeRef(1))[0]
	awaitState(t, service, id, downloads.Downloading)

	require.Nil(t, service.Cancel(id))
	awaitState(t, service, id, downloads.Cancelled)

	_, completed := engine.stats()
	assert.Zero(t, completed)
}

func Test_Cancel_UnknownJobReturnsError(t *testing.T) {
	t.Parallel()

	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{}, &stubEngine{})
	assert.ErrorIs(t, service.Cancel(downloads.JobID(999)), downloads.ErrJobNotFound)
}

func Test_Cancel_FinishedJobIsNoOp(t *testing.T) {
	t.Parallel()

	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{}, &stubEngine{})

	id := service.Add(episodeRef(1))[0]
	awaitState(t, service, id, downloads.Completed)

	assert.Nil(t, service.Cancel(id))
	snapshot, err := service.Job(id)
	require.Nil(t, err)
	assert.Equal(t, downloads.Completed, snapshot.State)
}

func Test_FailedResolution_MarksJobFailed(t *testing.T) {
	t.Parallel()

	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{err: errExpected}, &stubEngine{})

	id := service.Add(episodeRef(1))[0]
	awaitState(t, service, id, downloads.Failed)

	snapshot, err := service.Job(id)
	require.Nil(t, err)
	assert.Contains(t, snapshot.Error, errExpected.Error())
}

func Test_Snapshot_ActiveAndHistoryAreDisjoint(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{block: make(chan struct{})}
	service := startService(t, downloads.Config{WorkerCount: 2}, &stubResolver{}, engine)

	ids := make([]downloads.JobID, 0, 6)
	for i := 1; i <= 6; i++ {
		id := service.Add(episodeRef(i))[0]
		ids = append(ids, id)
	}

	// Cancel two queued jobs so the history and the active set are both
	// populated while transfers are held open.
	require.Nil(t, service.Cancel(ids[4]))
	require.Nil(t, service.Cancel(ids[5]))

	snapshot := service.Snapshot()
	seen := make(map[downloads.JobID]bool)
	for _, job := range snapshot.Active {
		seen[job.ID] = true
	}
	for _, job := range snapshot.Completed {
		assert.False(t, seen[job.ID], "job %d appears in both active and history", job.ID)
	}

	close(engine.block)
	for _, id := range ids[:4] {
		awaitState(t, service, id, downloads.Completed)
	}
}

func Test_History_BoundedAndMostRecentFirst(t *testing.T) {
	t.Parallel()

	service := startService(t, downloads.Config{WorkerCount: 1, MaxHistory: 3}, &stubResolver{}, &stubEngine{})

	var last downloads.JobID
	for i := 1; i <= 5; i++ {
		id := service.Add(episodeRef(i))[0]
		awaitState(t, service, id, downloads.Completed)
		last = id
	}

	history := service.Snapshot().Completed
	require.Len(t, history, 3)
	assert.Equal(t, last, history[0].ID)
	assert.Equal(t, last-1, history[1].ID)
	assert.Equal(t, last-2, history[2].ID)
}

func Test_JobSnapshot_CarriesEpisodeDetails(t *testing.T) {
	t.Parallel()

	service := startService(t, downloads.Config{WorkerCount: 1}, &stubResolver{}, &stubEngine{})

	ref := episodeRef(1)
	ref.Title = "Test Anime"
	id := service.Add(ref)[0]
	awaitState(t, service, id, downloads.Completed)

	snapshot, err := service.Job(id)
	require.Nil(t, err)
	assert.Equal(t, "Test Anime", snapshot.Title)
	assert.Equal(t, "VOE", snapshot.Provider)
	assert.Equal(t, float64(100), snapshot.Progress)
	assert.False(t, snapshot.FinishedAt.IsZero())
}
