package downloads

// Status is a point-in-time view of the download queue: every job still in
// play (queued or being processed) and the bounded tail of recently finished
// ones. Both slices are copies; mutating them has no effect on the queue.
type Status struct {
	// Active holds the non-terminal jobs in admission order.
	Active []JobSnapshot `json:"active"`

	// Completed holds terminal jobs (completed, failed or cancelled), most
	// recently finished first, bounded by the configured history size.
	Completed []JobSnapshot `json:"completed"`
}
