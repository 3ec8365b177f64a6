package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
)

func newTestService(t *testing.T, endpoint string) *MistralService {
	t.Helper()

	service, err := NewMistralService(&common.OCRConfig{
		APIKey:         "test-key",
		Endpoint:       endpoint,
		RequestTimeout: "5s",
		RetryAttempts:  3,
		RateLimit:      100,
	}, arbor.NewLogger())
	require.NoError(t, err)

	// Keep retry waits short for tests
	service.retry.InitialBackoff = time.Millisecond
	service.retry.MaxBackoff = 5 * time.Millisecond

	return service
}

func TestExtract_Success(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/ocr", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"# Title\n\nBody text."}]}`))
	}))
	defer server.Close()

	service := newTestService(t, server.URL)

	segments, err := service.Extract(context.Background(), []byte("%PDF-1.4 fake"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "Title", segments[0].Text)
	assert.Equal(t, "Body text.", segments[1].Text)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExtract_TransientFailureThenSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"Recovered content."}]}`))
	}))
	defer server.Close()

	service := newTestService(t, server.URL)

	segments, err := service.Extract(context.Background(), []byte("data"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "Recovered content.", segments[0].Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExtract_PermanentFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"unsupported document"}`))
	}))
	defer server.Close()

	service := newTestService(t, server.URL)

	_, err := service.Extract(context.Background(), []byte("data"), "application/pdf")
	require.Error(t, err)
	assert.False(t, interfaces.IsTransient(err))
	// Permanent failures are not retried
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExtract_RetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	service := newTestService(t, server.URL)

	_, err := service.Extract(context.Background(), []byte("data"), "application/pdf")
	require.Error(t, err)
	assert.True(t, interfaces.IsTransient(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExtract_EmptyContent(t *testing.T) {
	service := newTestService(t, "http://localhost:0")

	_, err := service.Extract(context.Background(), nil, "application/pdf")
	require.Error(t, err)
	assert.True(t, interfaces.IsInputError(err))
}

func TestExtract_ImageUsesImageURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		assert.Contains(t, string(body), `"image_url"`)
		assert.Contains(t, string(body), "data:image/png;base64,")
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"Scanned text."}]}`))
	}))
	defer server.Close()

	service := newTestService(t, server.URL)

	segments, err := service.Extract(context.Background(), []byte{0x89, 0x50, 0x4e, 0x47}, "image/png")
	require.NoError(t, err)
	require.Len(t, segments, 1)
}
