package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenDeny(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 2})
	defer rl.Stop()

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "clients are independent")

	m := rl.GetMetrics()
	assert.Equal(t, int64(1), m.TotalHits)
	assert.Equal(t, int64(2), m.ClientCount)
}

func TestCleanupRemovesIdleClients(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Millisecond, CleanupInterval: time.Hour})
	defer rl.Stop()

	rl.Allow("1.1.1.1")
	time.Sleep(5 * time.Millisecond)
	rl.cleanupStaleEntries()
	assert.Equal(t, 0, rl.ActiveClients())
}

func TestMiddlewareOnlyLimitsWrites(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 1})
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/expenses", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodDelete))
	assert.Equal(t, http.StatusNoContent, do(http.MethodGet))
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
