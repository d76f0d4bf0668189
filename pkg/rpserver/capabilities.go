package rpserver

const (
	// AsyncReportingCapability is whether the v2 API can queue reporting requests on the broker.
	AsyncReportingCapability = "async_reporting"

	// AnalyzerCapability is whether analyzers are reachable over the broker.
	AnalyzerCapability = "analyzer"

	// LogIndexCapability is whether logs are indexed for full-text search.
	LogIndexCapability = "log_index"

	// CacheCapability is whether widget content is cached in redis.
	CacheCapability = "widget_cache"

	// EmailCapability is whether a global SMTP server is configured for notifications.
	EmailCapability = "email"
)
