package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/timmy/relay/internal/provider"
)

func ginContextWithHeaders(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/", nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c
}

func TestExtractCredentials(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    map[string]string
	}{
		{
			name:    "bearer token",
			headers: map[string]string{"Authorization": "Bearer sk-abc"},
			want:    map[string]string{provider.ProviderOpenAI: "sk-abc"},
		},
		{
			name:    "api key header",
			headers: map[string]string{"X-Api-Key": "sk-def"},
			want:    map[string]string{provider.ProviderOpenAI: "sk-def"},
		},
		{
			name: "bearer wins over api key header",
			headers: map[string]string{
				"Authorization": "Bearer sk-bearer",
				"X-Api-Key":     "sk-header",
			},
			want: map[string]string{provider.ProviderOpenAI: "sk-bearer"},
		},
		{
			name: "both providers",
			headers: map[string]string{
				"X-Api-Key":    "sk-openai",
				"X-Gemini-Key": "gm-key",
			},
			want: map[string]string{
				provider.ProviderOpenAI: "sk-openai",
				provider.ProviderGemini: "gm-key",
			},
		},
		{
			name:    "basic auth is not a bearer credential",
			headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			want:    map[string]string{},
		},
		{
			name:    "no headers",
			headers: map[string]string{},
			want:    map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ginContextWithHeaders(tt.headers)
			got := extractCredentials(c)
			assert.Equal(t, tt.want, got)
		})
	}
}
