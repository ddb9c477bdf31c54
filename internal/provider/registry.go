package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/relay/internal/domain"
)

// Provider discriminants. ProviderOpenAI is the default route; models whose
// identifier starts with "gemini" are routed to ProviderGemini.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrMissingCredential is returned when the inbound request carried no API key
// for the provider the model routes to.
var ErrMissingCredential = errors.New("missing provider credential")

// Route is one entry of the provider dispatch table: endpoint location plus a
// pure shaping function from the normalized payload to the provider request.
type Route struct {
	Name    string
	BaseURL string
	Shape   func(p *domain.JobPayload) *ChatRequest
}

// Config holds provider endpoint configuration.
type Config struct {
	OpenAIBaseURL string
	GeminiBaseURL string
	Timeout       time.Duration
}

// Registry maps provider discriminants to routes and resolves models to
// clients. Routing is by model-name prefix, the convention the relay's
// clients already rely on.
type Registry struct {
	routes  map[string]*Route
	timeout time.Duration
}

// NewRegistry creates a registry with the built-in dispatch table.
// Parameters:
//   - cfg: endpoint configuration; empty base URLs fall back to defaults.
//
// Returns:
//   - *Registry: initialized registry.
func NewRegistry(cfg *Config) *Registry {
	openaiURL := cfg.OpenAIBaseURL
	if openaiURL == "" {
		openaiURL = "https://api.openai.com/v1"
	}
	geminiURL := cfg.GeminiBaseURL
	if geminiURL == "" {
		geminiURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Registry{
		routes: map[string]*Route{
			ProviderOpenAI: {Name: ProviderOpenAI, BaseURL: openaiURL, Shape: shapeOpenAIRequest},
			ProviderGemini: {Name: ProviderGemini, BaseURL: geminiURL, Shape: shapeOpenAIRequest},
		},
		timeout: timeout,
	}
}

// RouteFor resolves the provider route for a model identifier.
func (r *Registry) RouteFor(model string) *Route {
	if strings.HasPrefix(strings.ToLower(model), "gemini") {
		return r.routes[ProviderGemini]
	}
	return r.routes[ProviderOpenAI]
}

// ClientFor resolves the route for a model and builds a client using the
// credential captured for that provider.
// Parameters:
//   - model: target model identifier.
//   - credentials: provider name -> API key map captured at submission.
//
// Returns:
//   - *Client: provider client bound to the resolved route.
//   - *Route: the resolved dispatch entry.
//   - error: ErrMissingCredential when no key was captured for the route.
func (r *Registry) ClientFor(model string, credentials map[string]string) (*Client, *Route, error) {
	route := r.RouteFor(model)
	key := credentials[route.Name]
	if key == "" {
		return nil, nil, fmt.Errorf("%w for provider %s", ErrMissingCredential, route.Name)
	}
	return NewClient(route.Name, route.BaseURL, key, r.timeout), route, nil
}

// translationSystemPrompt wraps plain-text payloads into a single chat
// exchange. Output-only phrasing keeps providers from adding commentary.
const translationSystemPrompt = "You are a professional translator. Translate the user's text into %s. " +
	"Preserve line breaks, placeholders and markup exactly. Output only the translation, nothing else."

// shapeOpenAIRequest converts a normalized job payload into an
// OpenAI-compatible chat request. Chat payloads pass messages through; text
// payloads synthesize a translation instruction around the source text.
func shapeOpenAIRequest(p *domain.JobPayload) *ChatRequest {
	req := &ChatRequest{
		Model:           p.Model,
		ReasoningEffort: p.ReasoningEffort,
	}

	if p.IsChat() {
		req.Messages = make([]ChatMessage, 0, len(p.Messages))
		for _, m := range p.Messages {
			req.Messages = append(req.Messages, ChatMessage{Role: m.Role, Content: m.Content})
		}
		return req
	}

	req.Messages = []ChatMessage{
		{Role: "system", Content: fmt.Sprintf(translationSystemPrompt, p.TargetLang)},
		{Role: "user", Content: p.Text},
	}
	return req
}
