package constants

import (
	"time"
)

// Redraw pacing
const (
	// CoalesceWindow - minimum spacing between redraws of one progress view (100ms)
	// Also bounds the latency between a state change and its redraw.
	CoalesceWindow = 100 * time.Millisecond

	// TerminalLingerDelay - how long a finished operation stays on screen
	// before the observing view tears itself down (2 seconds)
	TerminalLingerDelay = 2 * time.Second

	// BarRefreshRate - mpb's own refresh rate for terminal bars (~3 times per second)
	BarRefreshRate = 300 * time.Millisecond
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for per-operation snapshot channels
	// Snapshots are full state, so a short buffer is enough; older entries are conflated.
	EventBusDefaultBuffer = 64

	// EventBusMaxBuffer - maximum buffer size for a single subscription
	EventBusMaxBuffer = 1024

	// EventLoopQueueSize - pending task capacity of the UI event loop
	EventLoopQueueSize = 1024
)

// Upload concurrency
const (
	// DefaultMaxConcurrent - files uploaded in parallel by a folder upload (5)
	DefaultMaxConcurrent = 5

	// MaxConcurrentLimit - upper bound accepted from configuration
	MaxConcurrentLimit = 32
)

// Retry configuration
const (
	// MaxRetries - maximum attempts per file for transient errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)
