package retry

import (
	"testing"
	"time"
)

func TestSchedule_DefaultTable(t *testing.T) {
	s := NewSchedule(nil)

	tests := []struct {
		retryCount int
		expected   time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 5 * time.Second},
		{3, 10 * time.Second},
		{4, 30 * time.Second},
		{5, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := s.DelayFor(tt.retryCount); got != tt.expected {
			t.Errorf("DelayFor(%d): expected %v, got %v", tt.retryCount, tt.expected, got)
		}
	}
}

func TestScheduleFromMillis(t *testing.T) {
	s := ScheduleFromMillis([]int{10, 20})

	if s.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", s.Len())
	}
	if got := s.DelayFor(0); got != 10*time.Millisecond {
		t.Errorf("Expected 10ms, got %v", got)
	}
	if got := s.DelayFor(7); got != 20*time.Millisecond {
		t.Errorf("Expected last entry 20ms, got %v", got)
	}
}

func TestSchedule_CopiesInput(t *testing.T) {
	delays := []time.Duration{time.Second}
	s := NewSchedule(delays)
	delays[0] = time.Hour

	if got := s.DelayFor(0); got != time.Second {
		t.Errorf("Expected schedule to be unaffected by caller mutation, got %v", got)
	}
}

func TestSchedule_ZeroValueUsesDefaults(t *testing.T) {
	var s Schedule

	if got := s.DelayFor(1); got != 2*time.Second {
		t.Errorf("Expected zero-value schedule to use defaults, got %v", got)
	}
	if s.Len() != len(DefaultDelays) {
		t.Errorf("Expected %d entries, got %d", len(DefaultDelays), s.Len())
	}
}
