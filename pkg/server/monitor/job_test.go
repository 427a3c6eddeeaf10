package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestJobMonitor_RecordSuccess(t *testing.T) {
	jm := NewJobMonitor("retention", time.Hour)
	jm.RecordSuccess(map[string]int{"removed": 3})

	status := jm.Status()
	if !status.Healthy {
		t.Error("Status should be healthy after success")
	}
	if status.Name != "retention" {
		t.Errorf("Name = %q, want retention", status.Name)
	}
	if status.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", status.ConsecutiveErrors)
	}
	if status.LastResult == nil {
		t.Error("LastResult should carry the success detail")
	}
}

func TestJobMonitor_RecordFailure(t *testing.T) {
	jm := NewJobMonitor("retention", time.Hour)
	jm.RecordFailure(errors.New("disk full"))

	status := jm.Status()
	if status.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", status.ConsecutiveErrors)
	}
	if status.LastError != "disk full" {
		t.Errorf("LastError = %q, want %q", status.LastError, "disk full")
	}
	if status.LastAttempt == "" {
		t.Error("LastAttempt should be set")
	}
}

func TestJobMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*JobMonitor)
		expected bool
	}{
		{
			name:     "never succeeded",
			setup:    func(*JobMonitor) {},
			expected: false,
		},
		{
			name: "recent success",
			setup: func(jm *JobMonitor) {
				jm.RecordSuccess(nil)
			},
			expected: true,
		},
		{
			name: "stale success",
			setup: func(jm *JobMonitor) {
				jm.mu.Lock()
				jm.lastSuccess = time.Now().Add(-3 * time.Hour)
				jm.mu.Unlock()
			},
			expected: false,
		},
		{
			name: "three failures tolerated",
			setup: func(jm *JobMonitor) {
				jm.RecordSuccess(nil)
				for i := 0; i < 3; i++ {
					jm.RecordFailure(errors.New("transient"))
				}
			},
			expected: true,
		},
		{
			name: "too many consecutive errors",
			setup: func(jm *JobMonitor) {
				jm.RecordSuccess(nil)
				for i := 0; i < 4; i++ {
					jm.RecordFailure(errors.New("error"))
				}
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm := NewJobMonitor("job", 2*time.Hour)
			tt.setup(jm)
			if got := jm.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJobMonitor_NoStaleness(t *testing.T) {
	jm := NewJobMonitor("gc", 0)
	jm.RecordSuccess(nil)
	jm.mu.Lock()
	jm.lastSuccess = time.Now().Add(-48 * time.Hour)
	jm.mu.Unlock()

	if !jm.IsHealthy() {
		t.Error("Monitor without staleAfter should not go stale")
	}
}
