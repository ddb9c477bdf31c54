package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is an HTTP client for one OpenAI-compatible provider endpoint.
// Credentials are supplied per client at construction time and are never
// logged; a fresh client is cheap enough to build per request.
type Client struct {
	rest     *resty.Client
	provider string
	baseURL  string
}

// NewClient creates a client for the given provider route.
// Parameters:
//   - providerName: provider discriminant (used in normalized results).
//   - baseURL: OpenAI-compatible API root, e.g. https://api.openai.com/v1.
//   - apiKey: bearer credential captured from the inbound request.
//   - timeout: per-call HTTP timeout.
//
// Returns:
//   - *Client: initialized provider client.
func NewClient(providerName, baseURL, apiKey string, timeout time.Duration) *Client {
	rest := resty.New()
	rest.SetHeader("Authorization", "Bearer "+apiKey)
	rest.SetHeader("Content-Type", "application/json")
	rest.SetTimeout(timeout)

	return &Client{
		rest:     rest,
		provider: providerName,
		baseURL:  baseURL,
	}
}

// Provider returns the provider discriminant this client talks to.
func (c *Client) Provider() string {
	return c.provider
}

// ChatCompletion issues a chat completion call.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: OpenAI-compatible request body.
//
// Returns:
//   - *ChatResponse: decoded provider response.
//   - error: *APIError on non-2xx responses, transport error otherwise.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.baseURL + "/chat/completions")

	if err != nil {
		return nil, fmt.Errorf("failed to call chat completions API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, newAPIError(httpResp.StatusCode(), httpResp.Body())
	}

	if resp.Error != nil {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode(),
			Message:    resp.Error.Message,
			Details:    resp.Error,
		}
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat completion response (status %d)", httpResp.StatusCode())
	}

	return &resp, nil
}

// Speech synthesizes audio for one input text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: OpenAI-compatible speech request body.
//
// Returns:
//   - []byte: raw audio bytes in the requested format.
//   - error: *APIError on non-2xx responses, transport error otherwise.
func (c *Client) Speech(ctx context.Context, req *SpeechRequest) ([]byte, error) {
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.baseURL + "/audio/speech")

	if err != nil {
		return nil, fmt.Errorf("failed to call speech API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, newAPIError(httpResp.StatusCode(), httpResp.Body())
	}

	audio := httpResp.Body()
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio in speech response (status %d)", httpResp.StatusCode())
	}

	return audio, nil
}

// Transcribe forwards an audio file to the transcription endpoint and returns
// the provider response verbatim. The relay does not reshape transcription
// results.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileName: original upload file name (providers sniff the format from it).
//   - file: audio content.
//   - model: transcription model identifier.
//   - language: optional ISO language hint.
//
// Returns:
//   - json.RawMessage: provider response body, passed through.
//   - error: *APIError on non-2xx responses, transport error otherwise.
func (c *Client) Transcribe(ctx context.Context, fileName string, file io.Reader, model, language string) (json.RawMessage, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetFileReader("file", fileName, file).
		SetFormData(map[string]string{"model": model})
	if language != "" {
		req.SetFormData(map[string]string{"language": language})
	}

	httpResp, err := req.Post(c.baseURL + "/audio/transcriptions")
	if err != nil {
		return nil, fmt.Errorf("failed to call transcription API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, newAPIError(httpResp.StatusCode(), httpResp.Body())
	}

	return json.RawMessage(httpResp.Body()), nil
}
