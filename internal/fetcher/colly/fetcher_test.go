package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = w.Write([]byte("<html>lista</html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "racecal-test/1.0", Headers: http.Header{"Accept-Language": {"pl"}}})
	body, err := f.Fetch(context.Background(), srv.URL+"/kalendarz")
	require.NoError(t, err)
	assert.Equal(t, "<html>lista</html>", string(body))
	got := <-headers
	assert.Equal(t, "racecal-test/1.0", got.Get("User-Agent"))
	assert.Equal(t, "pl", got.Get("Accept-Language"))

	// Same URL again must hit the network, not the visited store.
	body, err = f.Fetch(context.Background(), srv.URL+"/kalendarz")
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestFetchHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
	assert.False(t, fe.Timeout)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Timeout)
	assert.Zero(t, fe.Status)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, "http://127.0.0.1:1/")
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"X-Trace": {"yes"}}})
	var out outcome
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &out)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	assert.Equal(t, http.StatusOK, out.status)
	assert.Equal(t, "body", string(out.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	assert.Equal(t, http.StatusNotFound, out.status)
	assert.EqualError(t, out.err, "Not Found")
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
