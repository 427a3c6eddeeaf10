package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StorageMonitor tracks disk usage of the data directory with caching to
// avoid walking it on every request.
type StorageMonitor struct {
	dataDir       string
	maxBytes      int64
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStorageMonitor creates a new storage monitor. maxBytes of 0 means no limit.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		dataDir:       dataDir,
		maxBytes:      maxBytes,
		cacheDuration: 10 * time.Second,
	}
}

// GetUsage returns current storage usage in bytes, refreshed at most every
// 10 seconds.
func (sm *StorageMonitor) GetUsage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.lastCheck.IsZero() && time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := calculateDirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}

	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// GetLimit returns the configured storage limit in bytes.
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// StorageStatus is the /api/storage view of disk usage.
type StorageStatus struct {
	UsedBytes   int64   `json:"used_bytes"`
	LimitBytes  int64   `json:"limit_bytes"`
	UsedPercent float64 `json:"used_percent"`
	OverLimit   bool    `json:"over_limit"`
}

// Status returns usage against the limit.
func (sm *StorageMonitor) Status() (StorageStatus, error) {
	used, err := sm.GetUsage()
	if err != nil {
		return StorageStatus{}, err
	}

	status := StorageStatus{UsedBytes: used, LimitBytes: sm.maxBytes}
	if sm.maxBytes > 0 {
		status.UsedPercent = float64(used) / float64(sm.maxBytes) * 100
		status.OverLimit = used > sm.maxBytes
	}
	return status, nil
}

// calculateDirSize recursively calculates directory size in bytes using
// actual disk usage rather than logical size.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += diskUsage(filePath, info)
		}
		return nil
	})
	return size, err
}
