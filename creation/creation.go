// Package creation implements the creation extension of the tus protocol:
// reserving an upload location on the server via POST before any data is
// transferred.
package creation

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bitrise-io/go-tus/metadata"
	"github.com/bitrise-io/go-tus/protocol"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Client performs upload creation requests over an HTTP client. Like the
// protocol client, it never retries.
type Client struct {
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a creation client using the given HTTP client. The HTTP
// client is borrowed and never closed here.
func NewClient(httpClient *http.Client, logger log.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Create reserves an upload location on the server.
//
// If source is non-nil its total size is determined by seeking to the end
// and sent as Upload-Length; a nil source omits the header, which is how
// partial uploads for the concatenation extension are created. Non-empty
// metadata is encoded into the Upload-Metadata header; an empty map sends no
// header at all, so the server does not see an ambiguous empty value.
//
// The returned location may be relative to the creation endpoint. Resolving
// it is the caller's responsibility.
func (c *Client) Create(ctx context.Context, endpoint *url.URL, source io.Seeker, md metadata.Metadata, headers map[string]string) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	req.Header.Set(protocol.HeaderTusResumable, protocol.Version)

	if source != nil {
		totalSize, err := source.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, err
		}
		req.Header.Set(protocol.HeaderUploadLength, strconv.FormatInt(totalSize, 10))
	}

	if len(md) > 0 {
		encoded, err := metadata.Encode(md)
		if err != nil {
			return nil, err
		}
		req.Header.Set(protocol.HeaderUploadMetadata, encoded)
	}

	c.logger.Debugf("Creating upload...")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &protocol.TransportError{Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("Failed to close response body: %s", err)
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &protocol.TransportError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, &protocol.ProtocolViolationError{
			Value:  strconv.Itoa(resp.StatusCode),
			Reason: "wrong status code, expected 201",
		}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, &protocol.ProtocolViolationError{
			Header: "Location",
			Reason: "upload created, but no location header in response",
		}
	}

	locationURL, err := url.Parse(location)
	if err != nil {
		return nil, &protocol.ProtocolViolationError{
			Header: "Location",
			Value:  location,
			Reason: "unable to parse location header",
			Err:    err,
		}
	}

	return locationURL, nil
}
