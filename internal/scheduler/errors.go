package scheduler

import "errors"

// ErrSchedulerStopped is returned when scheduling is attempted after
// Stop.
var ErrSchedulerStopped = errors.New("scheduler has been stopped")
