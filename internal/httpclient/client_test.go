package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(base *http.Client) *Client {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	cfg.BaseClient = base
	return New(cfg)
}

func TestFetchFollowsRedirects(t *testing.T) {
	var finalURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landed", http.StatusFound)
	})
	mux.HandleFunc("/landed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("arrived"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	finalURL = srv.URL + "/landed"

	c := testClient(srv.Client())
	res, err := c.Fetch(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, finalURL, res.FinalURL)
	assert.Equal(t, "arrived", string(res.Body))
}

func TestRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient(srv.Client())
	res, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(srv.Client())
	res, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBodySizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 10
	cfg.BaseClient = srv.Client()
	c := New(cfg)

	_, err := c.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestDownloadWritesAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	c := testClient(srv.Client())
	finalURL, contentType, size, err := c.Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", finalURL)
	assert.Equal(t, "video/mp4", contentType)
	assert.Equal(t, int64(7), size)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// No partial file left behind.
	_, err = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML("text/html; charset=utf-8", nil))
	assert.True(t, LooksLikeHTML("", []byte("<!DOCTYPE html><html>")))
	assert.True(t, LooksLikeHTML("", []byte("  \n<html lang=\"en\">")))
	assert.True(t, LooksLikeHTML("application/octet-stream", []byte("<head><title>x</title>")))
	assert.False(t, LooksLikeHTML("video/mp4", []byte{0x00, 0x00, 0x00, 0x18}))
	assert.False(t, LooksLikeHTML("text/plain", []byte("just words")))
}
