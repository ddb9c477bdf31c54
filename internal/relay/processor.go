package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/timmy/relay/internal/domain"
	"github.com/timmy/relay/internal/jobstore"
	"github.com/timmy/relay/internal/logger"
	"github.com/timmy/relay/internal/provider"
)

// ChatCaller issues chat completion calls against one provider route.
// *provider.Client satisfies it.
type ChatCaller interface {
	ChatCompletion(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
	Provider() string
}

// ClientFactory resolves a model and captured credentials to a chat caller
// and its dispatch route.
type ClientFactory func(model string, credentials map[string]string) (ChatCaller, *provider.Route, error)

// ProviderClientFactory adapts the provider registry to a ClientFactory.
// Parameters:
//   - registry: provider dispatch registry.
//
// Returns:
//   - ClientFactory: factory backed by the registry.
func ProviderClientFactory(registry *provider.Registry) ClientFactory {
	return func(model string, credentials map[string]string) (ChatCaller, *provider.Route, error) {
		client, route, err := registry.ClientFor(model, credentials)
		if err != nil {
			return nil, nil, err
		}
		return client, route, nil
	}
}

// ProcessorConfig holds job execution policy.
type ProcessorConfig struct {
	RequestTimeout time.Duration // upstream timeout for one whole-job call
}

// Processor consumes queued jobs and drives them to a terminal state. A job
// is executed fully decoupled from the HTTP request that enqueued it, so
// submission never blocks on provider latency and client disconnects never
// cancel it.
type Processor struct {
	store   *jobstore.Store
	clients ClientFactory
	log     *logger.Logger
	timeout time.Duration
}

// NewProcessor creates a processor.
// Parameters:
//   - store: job store (single source of truth for status).
//   - clients: provider client factory.
//   - log: base logger.
//   - cfg: execution policy; nil uses a 300s upstream timeout.
//
// Returns:
//   - *Processor: initialized processor.
func NewProcessor(store *jobstore.Store, clients ClientFactory, log *logger.Logger, cfg *ProcessorConfig) *Processor {
	timeout := 300 * time.Second
	if cfg != nil && cfg.RequestTimeout > 0 {
		timeout = cfg.RequestTimeout
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Processor{
		store:   store,
		clients: clients,
		log:     log,
		timeout: timeout,
	}
}

// Submit enqueues a job and starts background processing. Returns
// immediately with the fresh job id.
// Parameters:
//   - payload: chat or text translation payload.
//   - credentials: provider name -> API key map from the inbound request.
//
// Returns:
//   - string: job id for polling.
func (p *Processor) Submit(payload domain.JobPayload, credentials map[string]string) string {
	id := p.store.Enqueue(payload, credentials)
	go p.Run(id)
	return id
}

// Run executes one job to a terminal state. It never panics outward: every
// failure is captured into the job record, so a crash in one job cannot
// affect the store or other jobs. Call exactly once per job.
// Parameters:
//   - id: id of a queued job.
//
// Returns: none.
func (p *Processor) Run(id string) {
	job, err := p.store.Claim(id)
	if err != nil {
		p.log.WithField(logger.FieldJobID, id).WithError(err).Warn("Skipping job pickup")
		return
	}

	log := p.log.WithFields(logger.Fields{
		logger.FieldJobID: id,
		"model":           job.Payload.Model,
	})
	log.Info("Job processing started")

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	result, jobErr := p.execute(ctx, &job, log)
	if jobErr != nil {
		if storeErr := p.store.Fail(id, jobErr); storeErr != nil {
			log.WithError(storeErr).Error("Failed to record job failure")
			return
		}
		log.WithField("error_message", jobErr.Message).Warn("Job failed")
		return
	}

	if storeErr := p.store.Complete(id, result); storeErr != nil {
		log.WithError(storeErr).Error("Failed to record job result")
		return
	}
	log.WithField("total_tokens", result.Usage.TotalTokens).Info("Job completed")
}

// execute routes the job to its provider, issues the call and normalizes the
// outcome. A rejected reasoning_effort parameter triggers exactly one
// downgraded retry with the hint stripped.
func (p *Processor) execute(ctx context.Context, job *domain.Job, log *logger.Logger) (*domain.JobResult, *domain.JobError) {
	caller, route, err := p.clients(job.Payload.Model, job.Credentials)
	if err != nil {
		return nil, &domain.JobError{Message: err.Error()}
	}

	req := route.Shape(&job.Payload)
	resp, err := caller.ChatCompletion(ctx, req)
	if err != nil && req.ReasoningEffort != "" && isParamRejected(err, "reasoning") {
		log.Warn("Provider rejected reasoning_effort, retrying without it")
		downgraded := *req
		downgraded.ReasoningEffort = ""
		resp, err = caller.ChatCompletion(ctx, &downgraded)
	}
	if err != nil {
		return nil, toJobError(err)
	}

	return normalizeResult(caller.Provider(), resp), nil
}

// isParamRejected reports whether the error looks like the provider rejecting
// an optional request parameter (capability mismatch, not a real failure).
func isParamRejected(err error, param string) bool {
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != 400 && apiErr.StatusCode != 422 {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	if strings.Contains(msg, strings.ToLower(param)) {
		return true
	}
	for _, phrase := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized request argument",
		"invalid parameter",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// toJobError converts an upstream error into the stored job error shape,
// keeping provider detail when the failure was structured.
func toJobError(err error) *domain.JobError {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return &domain.JobError{
			Message: apiErr.Error(),
			Details: apiErr.Details,
		}
	}
	return &domain.JobError{Message: err.Error()}
}

// normalizeResult maps a provider response into the provider-agnostic result
// shape stored on the job.
func normalizeResult(providerName string, resp *provider.ChatResponse) *domain.JobResult {
	result := &domain.JobResult{
		Provider: providerName,
		Model:    resp.Model,
		Choices:  make([]domain.ResultChoice, 0, len(resp.Choices)),
		Usage: domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, choice := range resp.Choices {
		result.Choices = append(result.Choices, domain.ResultChoice{
			Index:        choice.Index,
			Role:         choice.Message.Role,
			Content:      choice.Message.Content,
			FinishReason: choice.FinishReason,
		})
	}
	return result
}
