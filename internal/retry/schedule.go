package retry

import (
	"time"
)

// Schedule maps a message's failure count to the wait before the next delivery pass.
// Counts past the end of the table reuse the last entry.
type Schedule struct {
	delays []time.Duration
}

// DefaultDelays is the delay table used when none is configured.
var DefaultDelays = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// NewSchedule builds a schedule from delays, falling back to DefaultDelays when empty.
func NewSchedule(delays []time.Duration) Schedule {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	cp := make([]time.Duration, len(delays))
	copy(cp, delays)
	return Schedule{delays: cp}
}

// ScheduleFromMillis builds a schedule from millisecond values as found in config files.
func ScheduleFromMillis(ms []int) Schedule {
	delays := make([]time.Duration, 0, len(ms))
	for _, v := range ms {
		delays = append(delays, time.Duration(v)*time.Millisecond)
	}
	return NewSchedule(delays)
}

// DelayFor returns delays[min(retryCount, len-1)]. Negative counts map to the first entry.
func (s Schedule) DelayFor(retryCount int) time.Duration {
	delays := s.delays
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > len(delays)-1 {
		retryCount = len(delays) - 1
	}
	return delays[retryCount]
}

// Len returns the number of entries in the delay table.
func (s Schedule) Len() int {
	if len(s.delays) == 0 {
		return len(DefaultDelays)
	}
	return len(s.delays)
}
