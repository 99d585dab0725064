package jobqueue

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// JobState is the lattice a job record moves through. Transitions only ever
// go forward: NotStarted -> Running -> {Completed, Failed}.
type JobState string

const (
	JobStateNotStarted JobState = "not-started"
	JobStateRunning    JobState = "running"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// JobMetadata is a point-in-time snapshot of a persisted job record. It
// never aliases storage — callers get their own copy.
type JobMetadata struct {
	UID       ulid.ULID
	State     JobState
	Result    *JobError
	Created   time.Time
	Started   *time.Time
	Completed *time.Time
}

// JobInfo pairs a metadata snapshot with the decoded concrete job value
// Pull recovered it as.
type JobInfo[D any] struct {
	Metadata JobMetadata
	Job      Job[D]
}
