package protocol

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Version is the version of the tus protocol this package implements. It is
// sent in the Tus-Resumable header of every request.
const Version = "1.0.0"

// Header names of the tus core protocol and the creation and concatenation
// extensions.
const (
	HeaderTusResumable   = "Tus-Resumable"
	HeaderTusVersion     = "Tus-Version"
	HeaderTusMaxSize     = "Tus-Max-Size"
	HeaderTusExtension   = "Tus-Extension"
	HeaderUploadOffset   = "Upload-Offset"
	HeaderUploadLength   = "Upload-Length"
	HeaderUploadMetadata = "Upload-Metadata"
	HeaderUploadConcat   = "Upload-Concat"
)

// ParsePositiveIntHeader reads the named header and converts it into a
// non-negative integer. A missing, non-numeric or negative header is a
// protocol violation.
func ParsePositiveIntHeader(headers http.Header, name string) (int64, error) {
	value := headers.Get(name)
	if value == "" {
		return 0, &ProtocolViolationError{Header: name, Reason: "header missing"}
	}

	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil || result < 0 {
		return 0, &ProtocolViolationError{
			Header: name,
			Value:  value,
			Reason: fmt.Sprintf("unable to convert %q to a positive integer", value),
		}
	}

	return result, nil
}

// splitCommaList splits a comma-separated header value into its
// whitespace-trimmed elements, preserving order and duplicates.
func splitCommaList(value string) []string {
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
