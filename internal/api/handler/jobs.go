package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/relay/internal/api/middleware"
	"github.com/timmy/relay/internal/domain"
	"github.com/timmy/relay/internal/jobstore"
	"github.com/timmy/relay/internal/provider"
	"github.com/timmy/relay/internal/relay"
)

// JobHandler handles asynchronous translation job endpoints.
type JobHandler struct {
	processor *relay.Processor
	store     *jobstore.Store
	registry  *provider.Registry
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - processor: job processor used for submission.
//   - store: job store polled for results.
//   - registry: provider registry used for credential admission checks.
//
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(processor *relay.Processor, store *jobstore.Store, registry *provider.Registry) *JobHandler {
	return &JobHandler{
		processor: processor,
		store:     store,
		registry:  registry,
	}
}

// submitRequest is the submission body: chat-style messages or plain text
// with a target language, never both.
type submitRequest struct {
	Model           string               `json:"model" binding:"required"`
	Messages        []domain.ChatMessage `json:"messages"`
	Text            string               `json:"text"`
	TargetLang      string               `json:"target_lang"`
	ReasoningEffort string               `json:"reasoning_effort"`
}

// Submit handles POST /api/v1/jobs/translations. Enqueues the job and
// returns 202 immediately; processing happens in the background and results
// are retrieved by polling.
func (h *JobHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if len(req.Messages) == 0 && req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either messages or text is required"})
		return
	}
	if len(req.Messages) == 0 && req.TargetLang == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_lang is required for text translation"})
		return
	}

	creds := extractCredentials(c)
	if _, _, err := h.registry.ClientFor(req.Model, creds); err != nil {
		if errors.Is(err, provider.ErrMissingCredential) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := h.processor.Submit(domain.JobPayload{
		Model:           req.Model,
		Messages:        req.Messages,
		Text:            req.Text,
		TargetLang:      req.TargetLang,
		ReasoningEffort: req.ReasoningEffort,
	}, creds)

	middleware.GetLogger(c).WithField("job_id", jobID).Info("Translation job accepted")

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": jobID,
		"status": domain.JobStatusQueued,
	})
}

// Poll handles GET /api/v1/jobs/translations/:id. Pending jobs return their
// status as a retry-later signal; terminal jobs return the result or the
// captured error; evicted or unknown ids return 404.
func (h *JobHandler) Poll(c *gin.Context) {
	job, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found or expired"})
		return
	}

	switch job.Status {
	case domain.JobStatusCompleted:
		c.JSON(http.StatusOK, gin.H{
			"status": job.Status,
			"result": job.Result,
		})
	case domain.JobStatusFailed:
		c.JSON(http.StatusOK, gin.H{
			"status": job.Status,
			"error":  job.Error,
		})
	default:
		c.JSON(http.StatusOK, gin.H{"status": job.Status})
	}
}
