package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/relay/internal/provider"
)

// extractCredentials captures provider API keys from the inbound request
// headers. The default provider key comes from Authorization: Bearer or
// X-Api-Key; Gemini models use X-Gemini-Key. Keys live only for the lifetime
// of the request (or the job they are captured into) and are never logged.
func extractCredentials(c *gin.Context) map[string]string {
	creds := make(map[string]string, 2)

	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if key := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); key != "" {
			creds[provider.ProviderOpenAI] = key
		}
	}
	if creds[provider.ProviderOpenAI] == "" {
		if key := c.GetHeader("X-Api-Key"); key != "" {
			creds[provider.ProviderOpenAI] = key
		}
	}
	if key := c.GetHeader("X-Gemini-Key"); key != "" {
		creds[provider.ProviderGemini] = key
	}

	return creds
}
