// Package httpclient builds *http.Client instances with sane connection
// pooling and timeout defaults for the outbound adapters (event
// source primary path, LLM/NER/embedding adapters, deployment adapter,
// notification publisher). Every outbound suspension point goes through
// a client built here so the timeout/retry knobs live in one place.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig controls timeouts and connection pooling for an outbound
// HTTP client.
type ClientConfig struct {
	Timeout                 time.Duration
	MaxRetries               int
	DisableSSLVerification   bool
	MaxIdleConns             int
	IdleConnTimeout          time.Duration
	TLSHandshakeTimeout      time.Duration
	ResponseHeaderTimeout    time.Duration
}

// DefaultClientConfig matches the default bounded-retry posture: a
// total timeout generous enough for a slow upstream, three retries at the
// call site, a small idle connection pool for single-home scale traffic.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
}

// NewClient builds an *http.Client from the given config.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout is a convenience constructor for call sites that
// only need to override the total timeout.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	return NewClient(config)
}
