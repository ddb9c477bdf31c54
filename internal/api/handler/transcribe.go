package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/relay/internal/provider"
)

// TranscribeHandler handles audio transcription passthrough.
type TranscribeHandler struct {
	registry *provider.Registry
}

// NewTranscribeHandler creates a new transcription handler.
// Parameters:
//   - registry: provider registry for client resolution.
//
// Returns:
//   - *TranscribeHandler: initialized handler.
func NewTranscribeHandler(registry *provider.Registry) *TranscribeHandler {
	return &TranscribeHandler{registry: registry}
}

// Transcribe handles POST /api/v1/audio/transcriptions. The multipart body is
// forwarded to the provider and the provider's JSON response is returned as-is.
func (h *TranscribeHandler) Transcribe(c *gin.Context) {
	model := c.PostForm("model")
	if model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	language := c.PostForm("language")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	creds := extractCredentials(c)
	client, _, err := h.registry.ClientFor(model, creds)
	if err != nil {
		if errors.Is(err, provider.ErrMissingCredential) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, err := client.Transcribe(c.Request.Context(), fileHeader.Filename, file, model, language)
	if err != nil {
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   err.Error(),
				"details": apiErr.Details,
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}
