package common

// Shared constants to avoid magic strings/numbers.

// HTTP headers and content types
const (
	ContentTypeJSON = "application/json"
)

// API paths
const (
	PathHealthz = "/healthz"
	PathConvert = "/api/convert"
	PathJobs    = "/api/jobs"
	PathFiles   = "/api/files"
)

// Defaults and limits
const (
	DefaultQueueCapacity = 64
	DefaultWorkerCount   = 4
	SQLiteBusyTimeoutMS  = 5000
)
