package muzmo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

type scriptedFetcher struct {
	pages []func() ([]byte, error)
	calls int
}

func (f *scriptedFetcher) FetchInfo(_ context.Context, _ string) ([]byte, error) {
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		return []byte(infoPage(false)), nil
	}
	return f.pages[i]()
}

func (f *scriptedFetcher) BaseURL() *url.URL {
	u, _ := url.Parse("https://rmr.muzmo.cc")
	return u
}

func page(withLink bool) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(infoPage(withLink)), nil }
}

func TestResolverLinkOnThirdAttempt(t *testing.T) {
	fetcher := &scriptedFetcher{pages: []func() ([]byte, error){page(false), page(false), page(true)}}
	resolver := NewResolver(fetcher, 3, 0, nil)

	link, err := resolver.Resolve(context.Background(), "79702189")
	require.NoError(t, err)
	assert.Equal(t, 3, link.AttemptsUsed)
	assert.Equal(t, "https://rmr.muzmo.cc/get/music/20240101/Igor_Talkov_-_Ya_vernus_79702189.mp3", link.URL)
	assert.Equal(t, 3, fetcher.calls)
}

func TestResolverExhausted(t *testing.T) {
	fetcher := &scriptedFetcher{pages: []func() ([]byte, error){page(false), page(false), page(true)}}
	resolver := NewResolver(fetcher, 2, 0, nil)

	link, err := resolver.Resolve(context.Background(), "79702189")
	assert.Nil(t, link)
	require.ErrorIs(t, err, ErrResolutionExhausted)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Attempts)
	assert.Equal(t, "79702189", re.ItemID)
	assert.Equal(t, 2, fetcher.calls)
}

func TestResolverStopsOnFirstSuccess(t *testing.T) {
	fetcher := &scriptedFetcher{pages: []func() ([]byte, error){page(true)}}
	resolver := NewResolver(fetcher, 5, 0, nil)

	link, err := resolver.Resolve(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 1, link.AttemptsUsed)
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolverCountsFetchErrors(t *testing.T) {
	boom := &FetchError{Kind: FetchTransport, URL: "x", Err: errors.New("connection reset")}
	fail := func() ([]byte, error) { return nil, boom }
	fetcher := &scriptedFetcher{pages: []func() ([]byte, error){fail, fail, fail, page(true)}}
	resolver := NewResolver(fetcher, 3, 0, nil)

	_, err := resolver.Resolve(context.Background(), "1")
	require.ErrorIs(t, err, ErrResolutionExhausted)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 3, fetcher.calls)
}

func TestResolverHonoursCancellation(t *testing.T) {
	fetcher := &scriptedFetcher{}
	resolver := NewResolver(fetcher, 3, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := resolver.Resolve(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fetcher.calls)
}

func TestResolverAgainstServer(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		assert.Equal(t, "79702189", r.URL.Query().Get("id"))
		n := calls.Add(1)
		_, _ = w.Write([]byte(infoPage(n >= 3)))
	}))

	link, err := NewResolver(client, 3, 0, nil).Resolve(context.Background(), "79702189")
	require.NoError(t, err)
	assert.Equal(t, 3, link.AttemptsUsed)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, link.URL, "/get/music/")
}
