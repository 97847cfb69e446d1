package relay

import "time"

// DefaultRetrySchedule is the fixed backoff between successive attempts:
// attempt 2 one minute after the first failure, attempt 3 after five, attempt
// 4 after fifteen, no attempt 5. Non-jittered on purpose; event volume is low
// enough that synchronized retries are not a concern. If retry volume grows,
// exponential backoff with jitter is the better general answer.
var DefaultRetrySchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// NextRetryTime returns when the attempt after attemptNumber should run, or
// nil when the schedule is exhausted and the failure is terminal.
func NextRetryTime(attemptNumber int, schedule []time.Duration) *time.Time {
	idx := attemptNumber - 1
	if idx < 0 || idx >= len(schedule) {
		return nil
	}
	t := time.Now().UTC().Add(schedule[idx])
	return &t
}

// IsSuccess treats any 2xx response as a successful delivery; every other
// status is a normal, recorded failure, never an error to the caller.
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
