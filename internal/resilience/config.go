package resilience

import (
	"time"
)

// FromAttempts builds a RetryConfig from the ingest.retry_attempts and an
// optional initial backoff. Zero values keep the defaults.
func FromAttempts(maxAttempts int, initialBackoff time.Duration) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
		if cfg.MaxBackoff < initialBackoff {
			cfg.MaxBackoff = initialBackoff
		}
	}
	return cfg
}
