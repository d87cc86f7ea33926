package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent") + "|" + r.Header.Get("X-Token")))
	}))
	defer srv.Close()

	client, err := NewClient(Options{
		UserAgent: "test-agent",
		Headers:   map[string]string{"X-Token": "abc"},
	})
	require.NoError(t, err)

	data, final, err := Get(context.Background(), client, srv.URL+"/path")
	require.NoError(t, err)
	assert.Equal(t, "test-agent|abc", string(data))
	assert.Equal(t, srv.URL+"/path", final)
}

func TestClientInvalidProxy(t *testing.T) {
	_, err := NewClient(Options{Proxy: "://bad"})
	assert.Error(t, err)
}

func TestGetWithRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client, err := NewClient(Options{})
	require.NoError(t, err)

	data, _, err := GetWithRetry(context.Background(), client, srv.URL, 3)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	_, _, err = GetWithRetry(context.Background(), client, srv.URL, 2)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}
