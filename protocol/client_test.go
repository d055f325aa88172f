package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bitrise-io/go-tus/metadata"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *url.URL) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)

	return NewClient(server.Client(), log.NewLogger()), serverURL
}

func TestOffset(t *testing.T) {
	client, location := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, Version, r.Header.Get(HeaderTusResumable))
		assert.Equal(t, "value", r.Header.Get("X-Custom"))
		w.Header().Set(HeaderUploadOffset, "42")
	})

	offset, err := client.Offset(context.Background(), location, map[string]string{"X-Custom": "value"})

	require.NoError(t, err)
	assert.Equal(t, int64(42), offset)
}

func TestOffset_MissingHeader(t *testing.T) {
	client, location := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.Offset(context.Background(), location, nil)

	var violation *ProtocolViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, HeaderUploadOffset, violation.Header)
}

func TestOffset_HTTPError(t *testing.T) {
	client, location := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Offset(context.Background(), location, nil)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusNotFound, transportErr.StatusCode)
}

func TestOffset_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	server.Close()

	client := NewClient(http.DefaultClient, log.NewLogger())
	_, err = client.Offset(context.Background(), serverURL, nil)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Zero(t, transportErr.StatusCode)
}

func TestMetadata(t *testing.T) {
	client, location := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set(HeaderUploadMetadata, "filename YS50eHQ=,flag")
		w.Header().Set(HeaderUploadOffset, "0")
	})

	md, err := client.Metadata(context.Background(), location, nil)

	require.NoError(t, err)
	assert.Equal(t, metadata.Metadata{
		"filename": metadata.NewStringValue("a.txt"),
		"flag":     metadata.NoValue(),
	}, md)
}

func TestMetadata_NoHeader(t *testing.T) {
	client, location := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderUploadOffset, "0")
	})

	md, err := client.Metadata(context.Background(), location, nil)

	require.NoError(t, err)
	assert.Equal(t, metadata.Metadata{}, md)
}

func TestMetadata_UndecodableHeader(t *testing.T) {
	client, location := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderUploadMetadata, "key one two")
	})

	_, err := client.Metadata(context.Background(), location, nil)

	var violation *ProtocolViolationError
	require.ErrorAs(t, err, &violation)

	var decodeErr *metadata.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestConfiguration(t *testing.T) {
	client, endpoint := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodOptions, r.Method)
		assert.Equal(t, Version, r.Header.Get(HeaderTusResumable))
		w.Header().Set(HeaderTusVersion, "1.0.0, 0.2.2,0.2.1")
		w.Header().Set(HeaderTusMaxSize, "1073741824")
		w.Header().Set(HeaderTusExtension, "creation, concatenation, termination")
		w.WriteHeader(http.StatusNoContent)
	})

	config, err := client.Configuration(context.Background(), endpoint, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "0.2.2", "0.2.1"}, config.ProtocolVersions)
	require.NotNil(t, config.MaxSize)
	assert.Equal(t, int64(1073741824), *config.MaxSize)
	assert.Equal(t, []string{"creation", "concatenation", "termination"}, config.Extensions)
}

func TestConfiguration_OptionalHeadersAbsent(t *testing.T) {
	client, endpoint := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderTusVersion, "1.0.0")
		w.WriteHeader(http.StatusNoContent)
	})

	config, err := client.Configuration(context.Background(), endpoint, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, config.ProtocolVersions)
	assert.Nil(t, config.MaxSize)
	assert.Empty(t, config.Extensions)
}

func TestConfiguration_MissingVersion(t *testing.T) {
	client, endpoint := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.Configuration(context.Background(), endpoint, nil)

	var violation *ProtocolViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, HeaderTusVersion, violation.Header)
}
