package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRealIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		realIP    string
		forwarded string
		want      string
	}{
		{"public X-Real-IP", "203.0.113.7", "", "203.0.113.7"},
		{"private X-Real-IP falls through", "10.0.0.4", "198.51.100.2", "198.51.100.2"},
		{"first public forwarded address", "", "10.1.1.1, 198.51.100.9, 203.0.113.1", "198.51.100.9"},
		{"all private forwarded", "", "10.1.1.1, 192.168.0.2", "10.1.1.1"},
		{"direct connection", "", "", "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			req := httptest.NewRequest("POST", "/webhooks/stripe", nil)
			req.RemoteAddr = "192.0.2.10:4242"
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			c.Request = req

			assert.Equal(t, tt.want, GetRealIP(c))
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		info := ParseUserAgent("")
		assert.Equal(t, "unknown", info.Platform)
		assert.False(t, info.IsBot)
	})

	t.Run("gateway client is a bot", func(t *testing.T) {
		info := ParseUserAgent("Stripe/1.0 (+https://stripe.com/docs/webhooks)")
		assert.True(t, info.IsBot)
		assert.Equal(t, true, info.Fields()["is_bot"])
	})

	t.Run("mobile browser", func(t *testing.T) {
		info := ParseUserAgent("Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36")
		assert.Equal(t, "android", info.Platform)
		assert.Equal(t, "Chrome", info.Browser)
		assert.False(t, info.IsBot)
	})
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	require.NoError(t, err)
	b, err := GenerateSecret(32)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
