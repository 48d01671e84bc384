package models

import "time"

// RetryConfig is the fixed configuration schema for the retry policy.
type RetryConfig struct {
	MaxRetries         int           `json:"max_retries"         validate:"min=0"`
	BaseDelay          time.Duration `json:"base_delay"          validate:"min=0"`
	ExponentialBackoff bool          `json:"exponential_backoff"`
	RetryOnPatterns    []string      `json:"retry_on_patterns"`
	SkipOnPatterns     []string      `json:"skip_on_patterns"`
}

// DefaultRetryConfig retries transient infrastructure errors and never
// retries assertion-style errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		ExponentialBackoff: true,
		RetryOnPatterns:    []string{"TimeoutError", "ElementNotFound", "NetworkError"},
		SkipOnPatterns:     []string{"AssertionError", "ValidationError"},
	}
}
