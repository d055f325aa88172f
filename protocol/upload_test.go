package protocol

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uploadServer is a minimal in-memory tus data endpoint: HEAD reports the
// current offset, PATCH appends the request body. acceptLimit can cap how
// many bytes a single PATCH stores, to exercise partial-write handling.
type uploadServer struct {
	mu           sync.Mutex
	data         []byte
	acceptLimit  int
	patchOffsets []int64
}

func (s *uploadServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		assert.Equal(t, Version, r.Header.Get(HeaderTusResumable))

		switch r.Method {
		case http.MethodHead:
			w.Header().Set(HeaderUploadOffset, strconv.Itoa(len(s.data)))
		case http.MethodPatch:
			assert.Equal(t, "application/offset+octet-stream", r.Header.Get("Content-Type"))

			offset, err := strconv.ParseInt(r.Header.Get(HeaderUploadOffset), 10, 64)
			require.NoError(t, err)
			require.Equal(t, int64(len(s.data)), offset)
			s.patchOffsets = append(s.patchOffsets, offset)

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.Equal(t, int64(len(body)), r.ContentLength)

			if s.acceptLimit > 0 && len(body) > s.acceptLimit {
				body = body[:s.acceptLimit]
			}
			s.data = append(s.data, body...)

			w.Header().Set(HeaderUploadOffset, strconv.Itoa(len(s.data)))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func startUploadServer(t *testing.T, server *uploadServer) (*Client, *url.URL) {
	t.Helper()

	httpServer := httptest.NewServer(server.handler(t))
	t.Cleanup(httpServer.Close)

	location, err := url.Parse(httpServer.URL + "/files/1")
	require.NoError(t, err)

	return NewClient(httpServer.Client(), log.NewLogger()), location
}

func TestUploadBuffer(t *testing.T) {
	server := &uploadServer{}
	client, location := startUploadServer(t, server)

	source := bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03})

	err := client.UploadBuffer(context.Background(), location, source, 3, nil)

	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, server.data)
	assert.Equal(t, []int64{0, 3}, server.patchOffsets)
}

func TestUploadBuffer_Resume(t *testing.T) {
	server := &uploadServer{data: []byte("he")}
	client, location := startUploadServer(t, server)

	source := bytes.NewReader([]byte("hello"))

	err := client.UploadBuffer(context.Background(), location, source, 16, nil)

	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), server.data)
	assert.Equal(t, []int64{2}, server.patchOffsets)
}

func TestUploadBuffer_AlreadyComplete(t *testing.T) {
	server := &uploadServer{data: []byte("hello")}
	client, location := startUploadServer(t, server)

	source := bytes.NewReader([]byte("hello"))

	err := client.UploadBuffer(context.Background(), location, source, 16, nil)

	require.NoError(t, err)
	assert.Empty(t, server.patchOffsets)
}

func TestUploadBuffer_ServerStoresLessThanSent(t *testing.T) {
	// The server truncates every PATCH to two bytes; the client must trust
	// the reported offset and resend from there instead of assuming the
	// whole chunk was stored.
	server := &uploadServer{acceptLimit: 2}
	client, location := startUploadServer(t, server)

	source := bytes.NewReader([]byte("abcdef"))

	err := client.UploadBuffer(context.Background(), location, source, 4, nil)

	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), server.data)
	assert.Equal(t, []int64{0, 2, 4}, server.patchOffsets)
}

func TestUploadBuffer_ServerOffsetExceedsLocalSize(t *testing.T) {
	server := &uploadServer{data: []byte("more data than the client has")}
	client, location := startUploadServer(t, server)

	source := bytes.NewReader([]byte("short"))

	err := client.UploadBuffer(context.Background(), location, source, 16, nil)

	var violation *ProtocolViolationError
	require.ErrorAs(t, err, &violation)
	assert.Empty(t, server.patchOffsets)
}

func TestUploadBuffer_EmptySource(t *testing.T) {
	server := &uploadServer{}
	client, location := startUploadServer(t, server)

	err := client.UploadBuffer(context.Background(), location, bytes.NewReader(nil), 16, nil)

	require.NoError(t, err)
	assert.Empty(t, server.patchOffsets)
}

func TestUploadBuffer_PatchError(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set(HeaderUploadOffset, "0")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(httpServer.Close)

	location, err := url.Parse(httpServer.URL + "/files/1")
	require.NoError(t, err)

	client := NewClient(httpServer.Client(), log.NewLogger())
	err = client.UploadBuffer(context.Background(), location, bytes.NewReader([]byte("data")), 16, nil)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
}
