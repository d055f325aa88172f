package uploader

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/bitrise-io/go-tus/protocol"
	"github.com/bitrise-io/go-utils/v2/log"
)

const (
	// DefaultRetryAttempts is the number of attempts made for each remote
	// operation before giving up.
	DefaultRetryAttempts = 10

	// DefaultMaxRetryWait caps the exponential backoff between retries.
	DefaultMaxRetryWait = 60 * time.Second

	// DefaultParallelUploads is the number of part uploads UploadMultiple
	// runs concurrently.
	DefaultParallelUploads = 3
)

// RetryConfiguration holds the retry policy and the TLS verification mode
// used by an Uploader. It is constructed once and read-only afterwards.
type RetryConfiguration struct {
	// RetryAttempts is the number of attempts per operation. Must be at
	// least 1.
	RetryAttempts int

	// MaxRetryWait is the ceiling for the exponentially growing wait time
	// between retries.
	MaxRetryWait time.Duration

	// InsecureSkipVerify disables TLS certificate verification for sessions
	// created by the uploader itself. Ignored when the caller supplies its
	// own HTTP client.
	InsecureSkipVerify bool

	// TLSConfig is the TLS configuration for sessions created by the
	// uploader itself. Takes precedence over InsecureSkipVerify. Ignored
	// when the caller supplies its own HTTP client.
	TLSConfig *tls.Config
}

// DefaultRetryConfiguration returns the retry policy used when none is
// configured.
func DefaultRetryConfiguration() RetryConfiguration {
	return RetryConfiguration{
		RetryAttempts: DefaultRetryAttempts,
		MaxRetryWait:  DefaultMaxRetryWait,
	}
}

// Config holds the settings of an Uploader.
type Config struct {
	// Retry is the retry policy. Zero values are replaced by
	// DefaultRetryConfiguration.
	Retry RetryConfiguration

	// HTTPClient is an optional HTTP client to use for all requests. A
	// caller-supplied client is borrowed: it can be shared with other users
	// and is never closed by the uploader. If nil, each call creates its own
	// client and releases its connections when the call returns.
	HTTPClient *http.Client

	// Logger receives progress and failure logs. Defaults to
	// log.NewLogger().
	Logger log.Logger

	// ChunkSize is the size of individual chunks uploaded per PATCH request.
	// Defaults to protocol.DefaultChunkSize.
	ChunkSize int64

	// ParallelUploads is the number of concurrent part uploads in
	// UploadMultiple. Defaults to DefaultParallelUploads.
	ParallelUploads int

	// Headers are additional headers sent with every request.
	Headers map[string]string
}

// Uploader uploads files to a tus server, retrying on communication errors.
type Uploader struct {
	config Config
	logger log.Logger
}

// New creates an Uploader with the given configuration.
func New(config Config) *Uploader {
	if config.Retry.RetryAttempts < 1 {
		config.Retry.RetryAttempts = DefaultRetryAttempts
	}
	if config.Retry.MaxRetryWait <= 0 {
		config.Retry.MaxRetryWait = DefaultMaxRetryWait
	}
	if config.Logger == nil {
		config.Logger = log.NewLogger()
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = protocol.DefaultChunkSize
	}
	if config.ParallelUploads < 1 {
		config.ParallelUploads = DefaultParallelUploads
	}

	return &Uploader{
		config: config,
		logger: config.Logger,
	}
}

// acquireSession returns the HTTP client to use for one call, and a release
// function to be run on every exit path. A borrowed client is released as a
// no-op; an owned one has its idle connections closed.
func (u *Uploader) acquireSession() (*http.Client, func()) {
	if u.config.HTTPClient != nil {
		return u.config.HTTPClient, func() {}
	}

	client := newHTTPClient(u.config.Retry)
	return client, client.CloseIdleConnections
}

// newHTTPClient creates an HTTP client for one upload call. Timeouts are
// handled via contexts on the individual requests.
func newHTTPClient(retry RetryConfiguration) *http.Client {
	tlsConfig := retry.TLSConfig
	if tlsConfig == nil && retry.InsecureSkipVerify {
		tlsConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- caller opted out explicitly
	}

	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			TLSClientConfig:     tlsConfig,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
