package domain

import "time"

// JobStatus represents the lifecycle status of a translation job.
// Values include JobStatusQueued, JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ChatMessage is one role/content exchange in a chat-style payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JobPayload is the request body captured at submission time. Exactly one of
// the two shapes is used: Messages for chat-style translation, Text+TargetLang
// for plain-text translation. Model selects the provider route.
type JobPayload struct {
	Model           string        `json:"model"`
	Messages        []ChatMessage `json:"messages,omitempty"`
	Text            string        `json:"text,omitempty"`
	TargetLang      string        `json:"target_lang,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
}

// IsChat reports whether the payload carries chat-style messages.
func (p *JobPayload) IsChat() bool {
	return len(p.Messages) > 0
}

// JobError captures a failure message and optional structured detail from the
// provider response.
type JobError struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ResultChoice is one candidate output in a normalized job result.
type ResultChoice struct {
	Index        int    `json:"index"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// TokenUsage holds provider-reported token counters.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// JobResult is the provider-agnostic result shape stored on completion.
type JobResult struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Choices  []ResultChoice `json:"choices"`
	Usage    TokenUsage     `json:"usage"`
}

// Job represents one long-running translation request tracked by id and
// retrieved via polling. Credentials live only in process memory and are
// never serialized or logged. Once the status leaves processing, exactly one
// of Result/Error is set.
type Job struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	Payload     JobPayload        `json:"payload"`
	Credentials map[string]string `json:"-"`
	Result      *JobResult        `json:"result,omitempty"`
	Error       *JobError         `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
