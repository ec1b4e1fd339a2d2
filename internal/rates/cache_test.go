package rates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/centsible/centsible/internal/logger"
)

func rateServer(t *testing.T, hits *atomic.Int64, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestCache(t *testing.T, primary, fallback string) *Cache {
	t.Helper()
	log := logger.NewWithWriter(testWriter{t})
	fallbackTemplate := ""
	if fallback != "" {
		fallbackTemplate = fallback + "/%s.json"
	}
	client := NewClient(primary+"/%s.json", fallbackTemplate, 2*time.Second, log)
	return NewCache(client, nil, log)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

const eurTable = `{"date":"2026-02-03","eur":{"usd":0.92,"gbp":1.17}}`

func TestGetRateFetchesAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	primary := rateServer(t, &hits, eurTable, http.StatusOK)
	c := newTestCache(t, primary.URL, "")

	rate, ok := c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, "0.92", rate.String())
	require.Equal(t, int64(1), hits.Load())

	// within TTL: served from cache, no network call
	rate, ok = c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, "0.92", rate.String())
	require.Equal(t, int64(1), hits.Load())
}

func TestGetRateTTLExpiry(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	primary := rateServer(t, &hits, eurTable, http.StatusOK)
	c := newTestCache(t, primary.URL, "")

	fetched := time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)
	now := fetched
	c.Now = func() time.Time { return now }

	_, ok := c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, int64(1), hits.Load())

	// one hour later: still fresh
	now = fetched.Add(time.Hour)
	_, ok = c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, int64(1), hits.Load())

	// 25 hours later: expired at read time, refetched
	now = fetched.Add(25 * time.Hour)
	_, ok = c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, int64(2), hits.Load())
}

func TestGetRateFallbackChain(t *testing.T) {
	t.Parallel()

	var primaryHits, fallbackHits atomic.Int64
	primary := rateServer(t, &primaryHits, `oops`, http.StatusInternalServerError)
	fallback := rateServer(t, &fallbackHits, eurTable, http.StatusOK)
	c := newTestCache(t, primary.URL, fallback.URL)

	rate, ok := c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, "0.92", rate.String())
	require.Equal(t, int64(1), primaryHits.Load())
	require.Equal(t, int64(1), fallbackHits.Load())

	// the fallback's answer was cached under the same key
	rate, ok = c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, "0.92", rate.String())
	require.Equal(t, int64(1), primaryHits.Load())
	require.Equal(t, int64(1), fallbackHits.Load())
}

func TestGetRateAllSourcesFail(t *testing.T) {
	t.Parallel()

	primary := rateServer(t, nil, `gone`, http.StatusNotFound)
	fallback := rateServer(t, nil, `{"not json`, http.StatusOK)
	c := newTestCache(t, primary.URL, fallback.URL)

	_, ok := c.GetRate(context.Background(), "USD", "EUR")
	require.False(t, ok)
}

func TestGetRateStaleServedOnlyAfterSourcesFail(t *testing.T) {
	t.Parallel()

	var mode atomic.Int64 // 0 = healthy, 1 = failing
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mode.Load() == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, eurTable)
	}))
	t.Cleanup(srv.Close)
	c := newTestCache(t, srv.URL, "")

	fetched := time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)
	now := fetched
	c.Now = func() time.Time { return now }

	_, ok := c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)

	// expired and every source down: the stale entry is still an answer
	mode.Store(1)
	now = fetched.Add(26 * time.Hour)
	rate, ok := c.GetRate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	require.Equal(t, "0.92", rate.String())

	// a pair never seen has nothing to fall back to
	_, ok = c.GetRate(context.Background(), "USD", "GBP")
	require.False(t, ok)
}

func TestGetRateMissingBaseInTable(t *testing.T) {
	t.Parallel()

	primary := rateServer(t, nil, `{"eur":{"gbp":1.17}}`, http.StatusOK)
	c := newTestCache(t, primary.URL, "")

	_, ok := c.GetRate(context.Background(), "USD", "EUR")
	require.False(t, ok)
}
