package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls map[string]int
	fail  bool
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls[url]++
	if f.fail {
		return nil, &FetchError{URL: url, Status: 500}
	}
	return []byte("body:" + url), nil
}

func TestPageCacheMemoizesSuccess(t *testing.T) {
	t.Parallel()
	next := &countingFetcher{calls: map[string]int{}}
	cache := NewPageCache(next)

	for range 3 {
		body, err := cache.Fetch(context.Background(), "https://a/1")
		require.NoError(t, err)
		assert.Equal(t, "body:https://a/1", string(body))
	}
	assert.Equal(t, 1, next.calls["https://a/1"])
	assert.Equal(t, 2, cache.hitCount())
	assert.True(t, cache.cached("https://a/1"))
	assert.False(t, cache.cached("https://a/2"))
}

func TestPageCacheDoesNotStoreFailures(t *testing.T) {
	t.Parallel()
	next := &countingFetcher{calls: map[string]int{}, fail: true}
	cache := NewPageCache(next)

	_, err := cache.Fetch(context.Background(), "https://a/1")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	_, err = cache.Fetch(context.Background(), "https://a/1")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls["https://a/1"])
}

func TestPageCachesAreIndependent(t *testing.T) {
	t.Parallel()
	next := &countingFetcher{calls: map[string]int{}}

	_, err := NewPageCache(next).Fetch(context.Background(), "https://a/1")
	require.NoError(t, err)
	_, err = NewPageCache(next).Fetch(context.Background(), "https://a/1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls["https://a/1"])
}
