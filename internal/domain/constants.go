package domain

import "time"

const (
	DefaultMaxQueueSize    = 100
	DefaultMaxConcurrent   = 5
	DefaultProcessInterval = 50 * time.Millisecond
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryBaseDelay  = time.Second
	DefaultRetryMaxDelay   = 30 * time.Second
	DefaultRateLimit       = 60
	DefaultRateLimitWindow = time.Minute
)

// DefaultTrustLevel applies to registrations that declare no provider trust.
const DefaultTrustLevel = TrustMedium
