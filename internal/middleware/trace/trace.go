package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"spendly/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	HeaderRequestID = "X-Request-ID"
)

// Middleware assigns a request ID, exposes it in the response and attaches
// it to the request logger.
type Middleware struct {
	metrics Metrics
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests int64
	// LastResponseTime is the latest request duration in microseconds.
	LastResponseTime int64
}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		logger := log.FromContext(ctx).With(log.NewFields().WithRequestID(requestID).ToSlice()...)
		ctx = log.WithContext(ctx, logger)

		atomic.AddInt64(&m.metrics.TotalRequests, 1)
		next.ServeHTTP(w, r.WithContext(ctx))
		atomic.StoreInt64(&m.metrics.LastResponseTime, time.Since(start).Microseconds())
	})
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:    atomic.LoadInt64(&m.metrics.TotalRequests),
		LastResponseTime: atomic.LoadInt64(&m.metrics.LastResponseTime),
	}
}
