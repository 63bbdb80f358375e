package downloads

import (
	"fmt"
	"time"

	"github.com/katvier/naia/internal/media"
)

type (
	// JobID uniquely identifies a download job for the lifetime of the
	// service which created it. IDs are allocated sequentially and never
	// reused.
	JobID int64

	// JobState is the lifecycle position of a download job. A job moves
	// strictly forward: Queued -> Resolving -> Downloading -> one of the
	// terminal states, with Cancelled reachable from any non-terminal state.
	JobState int

	// Job is one episode download tracked by the queue. All mutable fields
	// are guarded by the owning service's mutex; external callers only ever
	// see value snapshots.
	Job struct {
		id  JobID
		ref media.EpisodeReference

		state    JobState
		provider string
		progress float64
		err      error

		enqueuedAt time.Time
		finishedAt time.Time

		// cancel tears down the context the job's resolve/download work
		// runs under. Nil until a worker claims the job.
		cancel func()

		// cancelRequested marks a cancel which arrived while the job was
		// still queued or already being processed; it makes cancellation
		// win any race with normal completion.
		cancelRequested bool
	}

	// JobSnapshot is an immutable copy of a job's externally visible state.
	JobSnapshot struct {
		ID       JobID                  `json:"id"`
		Episode  media.EpisodeReference `json:"episode"`
		Title    string                 `json:"title"`
		State    JobState               `json:"state"`
		Provider string                 `json:"provider,omitempty"`
		Progress float64                `json:"progress"`
		Error    string                 `json:"error,omitempty"`

		// Detail is a human readable description of what the job is
		// currently doing, suitable for direct display.
		Detail string `json:"detail"`

		EnqueuedAt time.Time `json:"enqueued_at"`
		FinishedAt time.Time `json:"finished_at,omitempty"`
	}
)

const (
	Queued JobState = iota
	Resolving
	Downloading
	Completed
	Failed
	Cancelled
)

func (state JobState) String() string {
	switch state {
	case Queued:
		return "QUEUED"
	case Resolving:
		return "RESOLVING"
	case Downloading:
		return "DOWNLOADING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	case Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("JobState(%d)", int(state))
	}
}

// IsTerminal reports whether a job in this state has left the active set
// for good.
func (state JobState) IsTerminal() bool {
	return state == Completed || state == Failed || state == Cancelled
}

// MarshalJSON encodes the state as its string form.
func (state JobState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + state.String() + `"`), nil
}

func newJob(id JobID, ref media.EpisodeReference) *Job {
	return &Job{
		id:         id,
		ref:        ref,
		state:      Queued,
		enqueuedAt: time.Now(),
	}
}

// snapshot copies the job's visible state. Caller must hold the service
// mutex.
func (job *Job) snapshot() JobSnapshot {
	snap := JobSnapshot{
		ID:         job.id,
		Episode:    job.ref,
		Title:      job.ref.DisplayTitle(),
		State:      job.state,
		Provider:   job.provider,
		Progress:   job.progress,
		EnqueuedAt: job.enqueuedAt,
		FinishedAt: job.finishedAt,
	}

	if job.err != nil {
		snap.Error = job.err.Error()
	}
	snap.Detail = job.detail()

	return snap
}

// detail describes the job's current step for display. Caller must hold the
// service mutex.
func (job *Job) detail() string {
	switch job.state {
	case Queued:
		return "Waiting in queue"
	case Resolving:
		return "Resolving provider link"
	case Downloading:
		return fmt.Sprintf("Downloading via %s (%.1f%%)", job.provider, job.progress)
	case Completed:
		return "Download complete"
	case Failed:
		if job.err != nil {
			return fmt.Sprintf("Failed: %s", job.err.Error())
		}

		return "Failed"
	case Cancelled:
		return "Cancelled by user"
	default:
		return job.state.String()
	}
}
