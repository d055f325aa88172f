// Package uploader provides resilient, resumable uploads to a tus server:
// every remote operation of the protocol and creation packages is wrapped in
// a bounded exponential-backoff retry policy, and multiple sources can be
// uploaded in parallel and assembled server-side via the concatenation
// extension.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-tus/creation"
	"github.com/bitrise-io/go-tus/metadata"
	"github.com/bitrise-io/go-tus/protocol"
	"golang.org/x/sync/errgroup"
)

// extensionConcatenation is the name the server advertises in Tus-Extension
// when it supports server-side concatenation.
const extensionConcatenation = "concatenation"

// UnsupportedExtensionError is returned when the server lacks a protocol
// extension an operation depends on.
type UnsupportedExtensionError struct {
	Extension string
}

func (e *UnsupportedExtensionError) Error() string {
	return fmt.Sprintf("server does not support the %q extension", e.Extension)
}

// Upload creates an upload at the creation endpoint and transfers the
// contents of source to it, retrying on communication errors.
//
// The returned location is nil if the upload failed; failures are logged
// rather than returned. The returned error is non-nil only when ctx was
// cancelled, which always takes precedence over the swallow-and-log policy.
func (u *Uploader) Upload(ctx context.Context, endpoint string, source io.ReadSeeker, md metadata.Metadata) (*url.URL, error) {
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		u.logger.Errorf("Unable to upload file: %s", err)
		return nil, nil
	}

	// Reject malformed metadata before any network resource is touched.
	if err := metadata.Validate(md); err != nil {
		u.logger.Errorf("Unable to upload file: %s", err)
		return nil, nil
	}

	session, release := u.acquireSession()
	defer release()

	location, err := u.upload(ctx, session, endpointURL, source, md, u.config.Headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.logFailure("upload file", err)
		return nil, nil
	}

	return location, nil
}

// UploadMultiple uploads each source as a partial upload and combines them
// server-side using the concatenation extension, preserving source order.
// At most ParallelUploads transfers are in flight at a time; the first
// failing part cancels the remaining ones.
//
// The result contract is the same as for Upload: nil location on any logged
// failure, and an error only for cancellation.
func (u *Uploader) UploadMultiple(ctx context.Context, endpoint string, sources []io.ReadSeeker, md metadata.Metadata) (*url.URL, error) {
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		u.logger.Errorf("Unable to upload files: %s", err)
		return nil, nil
	}

	if err := metadata.Validate(md); err != nil {
		u.logger.Errorf("Unable to upload files: %s", err)
		return nil, nil
	}

	session, release := u.acquireSession()
	defer release()

	protoClient := protocol.NewClient(session, u.logger)

	var serverConfig *protocol.ServerConfiguration
	err = u.withRetry(ctx, "query configuration", func() error {
		var err error
		serverConfig, err = protoClient.Configuration(ctx, endpointURL, u.config.Headers)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.logFailure("upload files", err)
		return nil, nil
	}

	if !serverConfig.SupportsExtension(extensionConcatenation) {
		u.logFailure("upload files", &UnsupportedExtensionError{Extension: extensionConcatenation})
		return nil, nil
	}

	partHeaders := mergeHeaders(u.config.Headers, map[string]string{
		protocol.HeaderUploadConcat: "partial",
	})

	paths := make([]string, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(u.config.ParallelUploads)

	for i, source := range sources {
		i, source := i, source
		group.Go(func() error {
			location, err := u.upload(groupCtx, session, endpointURL, source, nil, partHeaders)
			if err != nil {
				return fmt.Errorf("upload of a part failed: %w", err)
			}
			paths[i] = location.Path
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.logFailure("upload files", err)
		return nil, nil
	}

	finalHeaders := mergeHeaders(u.config.Headers, map[string]string{
		protocol.HeaderUploadConcat: "final;" + strings.Join(paths, " "),
	})

	createClient := creation.NewClient(session, u.logger)

	var location *url.URL
	err = u.withRetry(ctx, "upload creation", func() error {
		var err error
		// No source: the final upload carries no data of its own.
		location, err = createClient.Create(ctx, endpointURL, nil, md, finalHeaders)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.logFailure("upload files", err)
		return nil, nil
	}

	return endpointURL.ResolveReference(location), nil
}

// Metadata reads back the metadata of an existing upload, retrying on
// communication errors. Nil is returned (and the failure logged) if the
// metadata could not be queried; the error is reserved for cancellation.
func (u *Uploader) Metadata(ctx context.Context, location string) (metadata.Metadata, error) {
	locationURL, err := url.Parse(location)
	if err != nil {
		u.logger.Errorf("Unable to get metadata: %s", err)
		return nil, nil
	}

	session, release := u.acquireSession()
	defer release()

	protoClient := protocol.NewClient(session, u.logger)

	var md metadata.Metadata
	err = u.withRetry(ctx, "query metadata", func() error {
		var err error
		md, err = protoClient.Metadata(ctx, locationURL, u.config.Headers)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.logFailure("get metadata", err)
		return nil, nil
	}

	return md, nil
}

// upload is the error-returning core of Upload, shared with the part uploads
// of UploadMultiple. Creation and transfer are retried independently: a
// flaky creation and a flaky transfer are separate failure domains.
func (u *Uploader) upload(ctx context.Context, session *http.Client, endpointURL *url.URL, source io.ReadSeeker, md metadata.Metadata, headers map[string]string) (*url.URL, error) {
	createClient := creation.NewClient(session, u.logger)

	var location *url.URL
	err := u.withRetry(ctx, "upload creation", func() error {
		var err error
		location, err = createClient.Create(ctx, endpointURL, source, md, headers)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The server may return a location relative to the creation endpoint.
	location = endpointURL.ResolveReference(location)

	protoClient := protocol.NewClient(session, u.logger)

	err = u.withRetry(ctx, "upload", func() error {
		return protoClient.UploadBuffer(ctx, location, source, u.config.ChunkSize, headers)
	})
	if err != nil {
		return nil, err
	}

	return location, nil
}

// logFailure logs a terminal failure, distinguishing exhausted retries from
// errors that were not retried at all.
func (u *Uploader) logFailure(what string, err error) {
	var exhausted *retriesExhaustedError
	if errors.As(err, &exhausted) {
		u.logger.Errorf("Unable to %s, even after retrying: %s", what, exhausted.err)
		return
	}
	u.logger.Errorf("Unable to %s: %s", what, err)
}

func mergeHeaders(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}
