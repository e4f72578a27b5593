package device

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"veris/pkg/requestcontext"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{
			name: "desktop chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: "Chrome/120.0.0.0 on Windows 10",
		},
		{
			name: "bot",
			ua:   "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want: "bot",
		},
		{
			name: "empty",
			ua:   "",
			want: "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.ua))
		})
	}
}

func TestMiddlewareStoresSummary(t *testing.T) {
	var got string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Device(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := requestcontext.WithClientMetadata(req.Context(), "203.0.113.7", "curl/8.5.0")
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

	assert.NotEmpty(t, got)
}
