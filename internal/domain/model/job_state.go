package model

// jobTransitions lists the allowed target states for each job status.
// paused and running are the only pair that flip back and forth; stopped may be
// requeued so its pending recipients can be resumed.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:    {JobStatusRunning, JobStatusStopped},
	JobStatusRunning:   {JobStatusPaused, JobStatusStopped, JobStatusCompleted, JobStatusError, JobStatusQueued},
	JobStatusPaused:    {JobStatusRunning, JobStatusStopped, JobStatusError},
	JobStatusStopped:   {JobStatusQueued},
	JobStatusCompleted: nil,
	JobStatusError:     nil,
}

// CanTransitionTo reports whether moving from s to next is a legal state change.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further dispatch will happen without operator action.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError || s == JobStatusStopped
}

// IsActive reports whether a scheduler currently owns the job.
func (s JobStatus) IsActive() bool {
	return s == JobStatusRunning || s == JobStatusPaused
}

// SourcesFor returns every status that may legally move to target.
// Persistence uses this list as the compare-and-set guard.
func SourcesFor(target JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{
		JobStatusQueued, JobStatusRunning, JobStatusPaused,
		JobStatusStopped, JobStatusCompleted, JobStatusError,
	} {
		if from.CanTransitionTo(target) {
			out = append(out, from)
		}
	}
	return out
}
