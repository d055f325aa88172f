// Package protocol implements the core operations of the tus resumable
// upload protocol: offset and metadata queries, the chunked data transfer
// and the discovery of the server configuration.
package protocol

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-tus/metadata"
	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultChunkSize is the chunk size used by UploadBuffer when the caller
// does not specify one.
const DefaultChunkSize int64 = 4 * 1024 * 1024

// Client performs single tus protocol operations over an HTTP client.
// It never retries; resilience is layered on top by the uploader package.
type Client struct {
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a protocol client using the given HTTP client. The HTTP
// client is borrowed: it is shared with the caller and never closed here.
func NewClient(httpClient *http.Client, logger log.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Offset queries the number of bytes the server already holds for the
// upload at the given location.
func (c *Client) Offset(ctx context.Context, location *url.URL, headers map[string]string) (int64, error) {
	c.logger.Debugf("Getting offset of %q...", location)

	resp, err := c.do(ctx, http.MethodHead, location, nil, headers, nil)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp, c.logger)

	return ParsePositiveIntHeader(resp.Header, HeaderUploadOffset)
}

// Metadata queries the metadata associated with the upload at the given
// location. An upload without metadata yields an empty map.
func (c *Client) Metadata(ctx context.Context, location *url.URL, headers map[string]string) (metadata.Metadata, error) {
	c.logger.Debugf("Getting metadata of %q...", location)

	resp, err := c.do(ctx, http.MethodHead, location, nil, headers, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp, c.logger)

	values, ok := resp.Header[http.CanonicalHeaderKey(HeaderUploadMetadata)]
	if !ok || len(values) == 0 {
		return metadata.Metadata{}, nil
	}

	md, err := metadata.Decode(values[0])
	if err != nil {
		return nil, &ProtocolViolationError{
			Header: HeaderUploadMetadata,
			Value:  values[0],
			Reason: "unable to parse metadata",
			Err:    err,
		}
	}
	return md, nil
}

// Configuration queries the server's configuration via an OPTIONS request to
// the creation endpoint.
func (c *Client) Configuration(ctx context.Context, endpoint *url.URL, headers map[string]string) (*ServerConfiguration, error) {
	c.logger.Debugf("Querying server configuration...")

	resp, err := c.do(ctx, http.MethodOptions, endpoint, nil, headers, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp, c.logger)

	version := resp.Header.Get(HeaderTusVersion)
	if version == "" {
		return nil, &ProtocolViolationError{Header: HeaderTusVersion, Reason: "header not present"}
	}

	config := ServerConfiguration{
		ProtocolVersions: splitCommaList(version),
	}

	if resp.Header.Get(HeaderTusMaxSize) != "" {
		maxSize, err := ParsePositiveIntHeader(resp.Header, HeaderTusMaxSize)
		if err != nil {
			return nil, err
		}
		config.MaxSize = &maxSize
	}

	if extensions := resp.Header.Get(HeaderTusExtension); extensions != "" {
		config.Extensions = splitCommaList(extensions)
	}

	return &config, nil
}

// do sends a single request carrying the Tus-Resumable header plus any
// caller-supplied passthrough headers. Connection failures and HTTP error
// statuses are reported as transport errors; context cancellation is
// propagated as-is.
func (c *Client) do(ctx context.Context, method string, target *url.URL, body io.Reader, headers map[string]string, extraHeaders map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	for key, value := range extraHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set(HeaderTusResumable, Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		closeBody(resp, c.logger)
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	return resp, nil
}

func closeBody(resp *http.Response, logger log.Logger) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		logger.Warnf("Failed to close response body: %s", err)
	}
}
