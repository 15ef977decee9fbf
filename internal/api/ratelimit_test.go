package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAllowedOrigin(t *testing.T) {
	patterns := []string{"http://localhost:*", "https://game.example.com", "https://*.example.org"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", false},
		{"http://localhost", true},
		{"http://localhost:5173", true},
		{"http://localhost.evil.com", false},
		{"https://game.example.com", true},
		{"https://other.example.com", false},
		{"https://a.example.org", true},
		{"http://a.example.org", false},
		{"https://evil.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowedOrigin(tt.origin, patterns))
		})
	}

	assert.True(t, IsAllowedOrigin("https://anything", []string{"*"}))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.1.2.3:5555", "10.1.2.3"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "10.1.2.3:5555", "1.1.1.1"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 3.3.3.3 "}, "10.1.2.3:5555", "3.3.3.3"},
		{"real ip", map[string]string{"X-Real-IP": "4.4.4.4"}, "10.1.2.3:5555", "4.4.4.4"},
		{"no port", nil, "10.1.2.3", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestWebSocketRateLimiter(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)

	require.True(t, wrl.Allow("a"))
	require.True(t, wrl.Allow("a"))
	assert.False(t, wrl.Allow("a"))
	assert.True(t, wrl.Allow("b"))
	assert.Equal(t, 2, wrl.ConnectionCount("a"))

	wrl.Release("a")
	assert.Equal(t, 1, wrl.ConnectionCount("a"))
	assert.True(t, wrl.Allow("a"))
	assert.Equal(t, 0, wrl.ConnectionCount("unknown"))
}

func TestIPRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewIPRateLimiter(DefaultRateLimitConfig)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
