package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/relay/internal/api/middleware"
	"github.com/timmy/relay/internal/domain"
	"github.com/timmy/relay/internal/provider"
	"github.com/timmy/relay/internal/relay"
)

// SpeechHandler handles speech synthesis endpoints.
type SpeechHandler struct {
	synthesizer *relay.Synthesizer
	registry    *provider.Registry
}

// NewSpeechHandler creates a new speech handler.
// Parameters:
//   - synthesizer: segment synthesis pipeline.
//   - registry: provider registry for client resolution.
//
// Returns:
//   - *SpeechHandler: initialized handler.
func NewSpeechHandler(synthesizer *relay.Synthesizer, registry *provider.Registry) *SpeechHandler {
	return &SpeechHandler{
		synthesizer: synthesizer,
		registry:    registry,
	}
}

// segmentBatchRequest is the body of POST /api/v1/speech/segments.
type segmentBatchRequest struct {
	Model          string           `json:"model" binding:"required"`
	Voice          string           `json:"voice" binding:"required"`
	Format         string           `json:"format"`
	Segments       []domain.Segment `json:"segments" binding:"required"`
	MaxConcurrency int              `json:"max_concurrency"`
	MaxRetries     int              `json:"max_retries"`
}

// SynthesizeSegments handles POST /api/v1/speech/segments. The request
// context doubles as the batch cancellation signal: if the client
// disconnects, all in-flight synthesis is aborted.
func (h *SpeechHandler) SynthesizeSegments(c *gin.Context) {
	var req segmentBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	creds := extractCredentials(c)
	client, _, err := h.registry.ClientFor(req.Model, creds)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	result, err := h.synthesizer.Synthesize(c.Request.Context(), client, &relay.BatchRequest{
		Model:          req.Model,
		Voice:          req.Voice,
		Format:         req.Format,
		Segments:       req.Segments,
		MaxConcurrency: req.MaxConcurrency,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		h.writeSynthesisError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":         result.BatchID,
		"segment_count":    result.SegmentCount,
		"total_characters": result.TotalCharacters,
		"segments":         result.Segments,
	})
}

// speakRequest is the body of POST /api/v1/speech.
type speakRequest struct {
	Model  string  `json:"model" binding:"required"`
	Voice  string  `json:"voice" binding:"required"`
	Input  string  `json:"input" binding:"required"`
	Format string  `json:"format"`
	Speed  float64 `json:"speed"`
}

// Speak handles POST /api/v1/speech: a single-utterance passthrough that
// returns the audio bytes directly.
func (h *SpeechHandler) Speak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	creds := extractCredentials(c)
	client, _, err := h.registry.ClientFor(req.Model, creds)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	format := req.Format
	if format == "" {
		format = "mp3"
	}

	audio, err := client.Speech(c.Request.Context(), &provider.SpeechRequest{
		Model:          req.Model,
		Input:          req.Input,
		Voice:          req.Voice,
		ResponseFormat: format,
		Speed:          req.Speed,
	})
	if err != nil {
		h.writeSynthesisError(c, err)
		return
	}

	c.Data(http.StatusOK, relay.AudioContentType(format), audio)
}

// writeSynthesisError maps pipeline errors onto the response taxonomy:
// admission errors are the caller's fault, cancellations produce no body
// (nobody is listening), everything else is an upstream failure.
func (h *SpeechHandler) writeSynthesisError(c *gin.Context, err error) {
	var admission *relay.AdmissionError
	if errors.As(err, &admission) {
		status := http.StatusBadRequest
		if admission.Limit > 0 {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": admission.Error()})
		return
	}

	if errors.Is(err, context.Canceled) {
		// Client went away mid-batch; log for operability and stop.
		middleware.GetLogger(c).Info("Request cancelled by client")
		c.Abort()
		return
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   err.Error(),
			"details": apiErr.Details,
		})
		return
	}

	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
