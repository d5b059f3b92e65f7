package muzmo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liuran001/MuzmoBot-Go/bot/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Options{
		BaseURL:       srv.URL,
		SearchTimeout: 200 * time.Millisecond,
		SearchRetries: 0,
		Limiter:       worker.NewLimiter(10),
	})
	require.NoError(t, err)
	return client
}

func TestFetchSearchPagesPartialFailure(t *testing.T) {
	var gotQuery atomic.Value
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Get("q"))
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		switch start {
		case 0:
			_, _ = w.Write([]byte(resultsPage(0, scenarioNames)))
		case ResultsPerPage:
			w.WriteHeader(http.StatusBadGateway)
		case 2 * ResultsPerPage:
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	results := client.FetchSearchPages(context.Background(), "Игорь Тальков", 3)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Page)
	}
	assert.Equal(t, "Игорь Тальков", gotQuery.Load())

	require.NoError(t, results[0].Err)
	assert.Len(t, ExtractCandidates(bytesReader(results[0].Body)), 8)

	var fe *FetchError
	require.ErrorAs(t, results[1].Err, &fe)
	assert.Equal(t, FetchStatus, fe.Kind)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.ErrorIs(t, results[1].Err, ErrFetchFailed)

	require.ErrorAs(t, results[2].Err, &fe)
	assert.Equal(t, FetchTimeout, fe.Kind)
}

func TestFetchSearchPagesAllFail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	results := client.FetchSearchPages(context.Background(), "abc", 2)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestFetchSearchPagesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := New(Options{BaseURL: base, SearchTimeout: time.Second})
	require.NoError(t, err)

	results := client.FetchSearchPages(context.Background(), "abc", 1)
	require.Len(t, results, 1)
	var fe *FetchError
	require.ErrorAs(t, results[0].Err, &fe)
	assert.Equal(t, FetchTransport, fe.Kind)
}

func TestClientURLs(t *testing.T) {
	client, err := New(Options{BaseURL: "https://rmr.muzmo.cc/"})
	require.NoError(t, err)

	assert.Equal(t, "https://rmr.muzmo.cc/search?q=%D0%BA%D0%B8%D0%BD%D0%BE+%D0%B7%D0%B2%D0%B5%D0%B7%D0%B4%D0%B0&start=30", client.SearchURL("кино звезда", 2))
	assert.Equal(t, "https://rmr.muzmo.cc/info?id=79702189", client.InfoURL("79702189"))
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New(Options{BaseURL: "rmr.muzmo.cc"})
	assert.Error(t, err)
}

func TestFetchInfoSingleRequest(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.FetchInfo(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.Equal(t, int32(1), calls.Load())
}
