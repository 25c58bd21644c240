package llm

import "time"

// Config selects and configures a Provider.
type Config struct {
	Provider string // "anthropic" | "bedrock" | "local"
	Model    string
	Endpoint string // local provider base URL
	APIKey   string
	Region   string // bedrock
	Timeout  time.Duration
	MaxRetries int
	RateLimitRPS float64
}

// DefaultConfig matches the default retry/timeout posture for
// every outbound suspension point.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: 5,
	}
}
