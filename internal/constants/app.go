package constants

import (
	"time"
)

// Panel API paths
const (
	// ClientAPIPath is the prefix of every panel client API route.
	ClientAPIPath = "/api/client"

	// ServersPath is appended to the panel URL, followed by the server identifier.
	ServersPath = ClientAPIPath + "/servers/"

	// FilesSuffix turns a server root URL into the files API base URL.
	FilesSuffix = "/files"

	// AuthScheme prefixes the API key in the Authorization header.
	AuthScheme = "Bearer "
)

// Metadata cache
const (
	// StatCacheTTL - how long a stat result may be served from cache (10s)
	// Entries are evicted by their own timer; an entry older than this is never served.
	StatCacheTTL = 10 * time.Second
)

// Content read retry policy
const (
	// ReadMaxAttempts - total attempts for a content fetch (1 initial + 2 retries)
	ReadMaxAttempts = 3

	// ReadRetryBaseDelay - backoff unit; retry n waits 2^n * base (200ms, 400ms)
	ReadRetryBaseDelay = 100 * time.Millisecond
)

// Directory reveal engine
const (
	// RevealInterval - one more child becomes visible every tick (12ms)
	RevealInterval = 12 * time.Millisecond
)

// Status poller timings
const (
	// StatusPollInterval - periodic refresh trigger (5s)
	StatusPollInterval = 5 * time.Second

	// StatusSettleDelay - delay before the trailing refresh after a coalesced burst (250ms)
	StatusSettleDelay = 250 * time.Millisecond

	// PowerRefreshDelay - the remote state transition is not instantaneous (750ms)
	PowerRefreshDelay = 750 * time.Millisecond

	// StatusFetchTimeout - upper bound for one resources fetch
	StatusFetchTimeout = 10 * time.Second
)

// HTTP client settings
const (
	// HTTPDialTimeout - TCP connection establishment timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive interval
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle connections stay in the pool
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake timeout
	HTTPTLSHandshakeTimeout = 15 * time.Second

	// HTTPExpectContinueTimeout - wait for 100-continue before sending the body
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPRequestTimeout - overall timeout for a single panel API call
	HTTPRequestTimeout = 120 * time.Second
)

// Panel client API rate limit
//
// The panel throttles client API keys at 240 requests/minute (4 req/sec).
// We target 80% of that to leave headroom for other tools sharing the key.
const (
	PanelRatePerSec       = 3.2
	PanelBurstCapacity    = 60.0
	RateLimitWarnInterval = 10 * time.Second
)

// Event bus buffer sizing
const (
	EventBusDefaultBuffer = 256
	EventBusMaxBuffer     = 4096
)

// Connect flow
const (
	// MinAPIKeyLength - panel client keys are at least 32 characters
	MinAPIKeyLength = 32

	// ServerListMaxPages - stop following pagination after this many pages
	ServerListMaxPages = 50
)

// Log file rotation (lumberjack)
const (
	LogFileMaxSizeMB  = 10
	LogFileMaxBackups = 5
	LogFileMaxAgeDays = 30
)
