package protocol

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/docker/go-units"
)

// UploadBuffer transfers the contents of source to the upload at the given
// location, in chunks of chunkSize bytes (DefaultChunkSize if zero).
//
// The server's offset is queried up front, so a previously interrupted
// upload resumes where the server left off. After every chunk the offset
// reported by the server is used as the new position: the server may have
// stored fewer bytes than were sent, and its accounting wins over local
// arithmetic.
//
// The source is never closed, but its read cursor is repositioned as a side
// effect.
func (c *Client) UploadBuffer(ctx context.Context, location *url.URL, source io.ReadSeeker, chunkSize int64, headers map[string]string) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	totalSize, err := source.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	// The position in the source the next read would start from.
	// Starts out unknown: the first pass always seeks.
	readOffset := int64(-1)

	serverOffset, err := c.Offset(ctx, location, headers)
	if err != nil {
		return err
	}

	c.logger.Debugf("Resuming upload of %q at offset %d (%s total)...",
		location, serverOffset, units.BytesSize(float64(totalSize)))

	buffer := make([]byte, chunkSize)

	for {
		if serverOffset == totalSize {
			c.logger.Infof("Complete buffer uploaded.")
			return nil
		}

		if serverOffset > totalSize {
			return &ProtocolViolationError{
				Header: HeaderUploadOffset,
				Value:  strconv.FormatInt(serverOffset, 10),
				Reason: "server offset exceeds local size",
			}
		}

		if readOffset != serverOffset {
			if _, err := source.Seek(serverOffset, io.SeekStart); err != nil {
				return err
			}
			readOffset = serverOffset
		}

		n, err := io.ReadFull(source, buffer)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return err
		}
		if n == 0 {
			// The total size was determined up front, so running dry here
			// means the source shrank underneath us.
			return ErrUnexpectedEOF
		}
		chunk := buffer[:n]
		readOffset += int64(n)

		c.logger.Debugf("Uploading %d bytes to %q...", n, location)

		resp, err := c.do(ctx, http.MethodPatch, location, bytes.NewReader(chunk), headers, map[string]string{
			HeaderUploadOffset: strconv.FormatInt(serverOffset, 10),
			"Content-Type":     "application/offset+octet-stream",
		})
		if err != nil {
			return err
		}

		newOffset, err := ParsePositiveIntHeader(resp.Header, HeaderUploadOffset)
		closeBody(resp, c.logger)
		if err != nil {
			return err
		}

		// The loop head validates the value before it is trusted.
		serverOffset = newOffset
	}
}
