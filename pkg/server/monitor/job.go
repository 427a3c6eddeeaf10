package monitor

import (
	"sync"
	"time"
)

// JobMonitor tracks the health of a periodic background job.
type JobMonitor struct {
	name       string
	staleAfter time.Duration

	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
	lastDetail        interface{}
}

// NewJobMonitor creates a monitor for the named job. The job is considered
// stale when it hasn't succeeded within staleAfter.
func NewJobMonitor(name string, staleAfter time.Duration) *JobMonitor {
	return &JobMonitor{name: name, staleAfter: staleAfter}
}

// RecordSuccess records a successful run. detail is reported in Status.
func (jm *JobMonitor) RecordSuccess(detail interface{}) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	now := time.Now()
	jm.lastSuccess = now
	jm.lastAttempt = now
	jm.consecutiveErrors = 0
	jm.lastError = ""
	jm.lastDetail = detail
}

// RecordFailure records a failed run.
func (jm *JobMonitor) RecordFailure(err error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.lastAttempt = time.Now()
	jm.consecutiveErrors++
	if err != nil {
		jm.lastError = err.Error()
	}
}

// IsHealthy returns true if the job is working properly.
// Unhealthy conditions:
//   - Never succeeded
//   - Haven't succeeded within staleAfter
//   - More than 3 consecutive failures
func (jm *JobMonitor) IsHealthy() bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.healthyLocked()
}

func (jm *JobMonitor) healthyLocked() bool {
	if jm.lastSuccess.IsZero() {
		return false
	}
	if jm.staleAfter > 0 && time.Since(jm.lastSuccess) > jm.staleAfter {
		return false
	}
	return jm.consecutiveErrors <= 3
}

// JobStatus is the health-check view of a job.
type JobStatus struct {
	Name              string      `json:"name"`
	Healthy           bool        `json:"healthy"`
	LastSuccess       string      `json:"last_success,omitempty"`
	TimeSinceSuccess  string      `json:"time_since_success,omitempty"`
	LastAttempt       string      `json:"last_attempt,omitempty"`
	ConsecutiveErrors int         `json:"consecutive_errors,omitempty"`
	LastError         string      `json:"last_error,omitempty"`
	LastResult        interface{} `json:"last_result,omitempty"`
}

// Status returns current job status for health checks.
func (jm *JobMonitor) Status() JobStatus {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	status := JobStatus{
		Name:       jm.name,
		Healthy:    jm.healthyLocked(),
		LastResult: jm.lastDetail,
	}

	if !jm.lastSuccess.IsZero() {
		status.LastSuccess = jm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(jm.lastSuccess).Round(time.Second).String()
	}

	if !jm.lastAttempt.IsZero() {
		status.LastAttempt = jm.lastAttempt.Format(time.RFC3339)
	}

	if jm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = jm.consecutiveErrors
		status.LastError = jm.lastError
	}

	return status
}
