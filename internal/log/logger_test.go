package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Output: &buf, Component: ComponentStore})

	l.Info("hello", FieldCount, 2)
	assert.Contains(t, buf.String(), "component=store")
	assert.Contains(t, buf.String(), "count=2")

	buf.Reset()
	l.WithComponent(ComponentHTTP).Warn("bye")
	assert.Contains(t, buf.String(), "component=http")
	assert.NotContains(t, buf.String(), "component=store")
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Output: &buf})
	l.Info("quiet")
	assert.Empty(t, buf.String())
	l.Error("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestFromContextFallback(t *testing.T) {
	l := FromContext(context.Background())
	assert.Equal(t, "unknown", l.Component())

	mine := Discard()
	assert.Same(t, mine, FromContext(WithContext(context.Background(), mine)))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	h := Middleware(l)(AccessLog(func(*http.Request) string { return "10.0.0.1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		})))

	req := httptest.NewRequest(http.MethodPost, "/expenses", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status_code=422")
	assert.Contains(t, out, "client_ip=10.0.0.1")
	assert.Contains(t, out, "path=/expenses")
}

func TestFieldsBuilder(t *testing.T) {
	tests := []struct {
		name   string
		fields LogFields
		want   map[string]any
	}{
		{
			name:   "request id",
			fields: NewFields().WithRequestID("abc"),
			want:   map[string]any{FieldRequestID: "abc"},
		},
		{
			name:   "empty request id is dropped",
			fields: NewFields().WithRequestID(""),
			want:   map[string]any{},
		},
		{
			name:   "nil error is dropped",
			fields: NewFields().WithOperation(OpDelete).WithError(nil),
			want:   map[string]any{FieldOperation: OpDelete},
		},
		{
			name:   "operation with expense",
			fields: NewFields().WithOperation(OpCreate).WithExpense("e1", 500, "food"),
			want: map[string]any{
				FieldOperation:   OpCreate,
				FieldExpenseID:   "e1",
				FieldAmountCents: int64(500),
				FieldCategory:    "food",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, map[string]any(tt.fields))
			assert.Len(t, tt.fields.ToSlice(), 2*len(tt.want))
		})
	}
}
