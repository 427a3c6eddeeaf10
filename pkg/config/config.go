package config

import "time"

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server defaults
const (
	DefaultPort          = "8080"
	DefaultDataDir       = "./data/facilityobs"
	DefaultRegistryFile  = "registry.db"
	DefaultMaxStorageGB  = 1
	DefaultMaxMemoryMB   = 48
	DefaultAssumedOffset = "+05:30"
	DefaultTimezone      = "Local"
)

// HTTP server timeouts
const (
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 30 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Background task intervals
const (
	RetentionInterval    = 1 * time.Hour
	BadgerGCInterval     = 10 * time.Minute
	SessionPurgeInterval = 1 * time.Hour
	JobRetryBaseDelay    = 30 * time.Second
	JobMaxRetries        = 3
	BadgerGCDiscardRatio = 0.5
)

// Ingest timeouts and limits
const (
	IngestTimeout        = 5 * time.Second
	DefaultIngestRate    = 1.0 // readings per second per device
	DefaultIngestBurst   = 10
	MaxFieldsPerReading  = 32
	IngestLimiterIdleTTL = 30 * time.Minute
)

// History and chart limits
const (
	HistoryTimeout     = 10 * time.Second
	RecentHistoryLimit = 1440
	AllHistoryLimit    = 5000
	RecentWindow       = 24 * time.Hour
	DefaultChartPoints = 500
	MaxChartPoints     = 5000
)

// Report limits
const (
	ReportTimeout     = 30 * time.Second
	MaxReportReadings = 200000
)

// Export defaults and limits
const (
	DefaultExportWindow = 24 * time.Hour
	MaxExportWindow     = 366 * 24 * time.Hour
	ImportBatchSize     = 1000
)

// Auth defaults
const (
	SessionCookieName    = "facilityobs_session"
	DefaultSessionTTL    = 7 * 24 * time.Hour
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"
	BcryptCost           = 10
)

// Device status
const (
	DefaultOnlineThreshold = 15 * time.Minute
	DeviceIDRandomBase     = 10000000
	DeviceIDRandomSpan     = 90000000
	MaxProvisionCount      = 100
)
