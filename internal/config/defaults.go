package config

// Default tuning constants for scheduling and monitoring.
const (
	DefaultMonitoringIntervalMs = 5000
	DefaultUsersPerBatch        = 10
	DefaultThinkTimeMs          = 1000
	DefaultThinkTimeJitterMs    = 500
	DefaultSessionDurationMs    = 300000 // 5 minutes
	DefaultActionTimeoutMs      = 30000
	MaxWorkerPoolSize           = 4
)
