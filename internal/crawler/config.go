package crawler

import (
	"fmt"
	"time"
)

// Config holds the knobs the crawl core consumes. It is decoupled from Viper so
// the core can be configured and tested independently.
type Config struct {
	MaxConcurrency int
	MaxDepth       int
	MaxItems       int
	RetryLimit     int
	BackoffBase    time.Duration
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be > 0")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be >= 0")
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max_items must be >= 0 (0 means unlimited)")
	}
	if c.RetryLimit < 0 {
		return fmt.Errorf("retry_limit must be >= 0")
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("backoff_base must be >= 0")
	}
	return nil
}
