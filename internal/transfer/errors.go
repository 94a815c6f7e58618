package transfer

import "fmt"

// StepError reports a workflow step that exhausted its wait budget or hit a
// control that never appeared. It carries the last-known page signal rather
// than a stack trace so a retry knows the coarse checkpoint the run died at.
// The machine is not resumable mid-state: the recovery path is restarting
// initiation from the first state.
type StepError struct {
	State  State
	Signal string
	Err    error
}

func (e *StepError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("transfer step %s failed at %q: %v", e.State, e.Signal, e.Err)
	}
	return fmt.Sprintf("transfer step %s failed: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
