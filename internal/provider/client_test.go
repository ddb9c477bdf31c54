package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_ChatCompletion(t *testing.T) {
	var gotAuth string
	var gotBody ChatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Bonjour"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 8, "completion_tokens": 2, "total_tokens": 10}
		}`))
	}))
	defer server.Close()

	client := NewClient(ProviderOpenAI, server.URL, "sk-test", 5*time.Second)
	resp, err := client.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer credential, got %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("request body mangled: %+v", gotBody)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Bonjour" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("expected usage decoded, got %+v", resp.Usage)
	}
}

func TestClient_ChatCompletionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached for requests","type":"requests"}}`))
	}))
	defer server.Close()

	client := NewClient(ProviderOpenAI, server.URL, "sk-test", 5*time.Second)
	_, err := client.ChatCompletion(context.Background(), &ChatRequest{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 429 {
		t.Errorf("expected status 429, got %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "Rate limit reached") {
		t.Errorf("expected provider message, got %q", apiErr.Message)
	}
}

func TestClient_ChatCompletionEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","model":"gpt-4o-mini","choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(ProviderOpenAI, server.URL, "sk-test", 5*time.Second)
	_, err := client.ChatCompletion(context.Background(), &ChatRequest{Model: "gpt-4o-mini"})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("expected empty-choices error, got %v", err)
	}
}

func TestClient_Speech(t *testing.T) {
	audio := []byte("fake-mp3-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req SpeechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if req.Voice != "alloy" || req.Input != "hello world" {
			t.Errorf("request body mangled: %+v", req)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer server.Close()

	client := NewClient(ProviderOpenAI, server.URL, "sk-test", 5*time.Second)
	got, err := client.Speech(context.Background(), &SpeechRequest{
		Model: "tts-1",
		Input: "hello world",
		Voice: "alloy",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(audio) {
		t.Errorf("audio bytes mangled: got %q", got)
	}
}

func TestClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("expected model field, got %q", r.FormValue("model"))
		}
		if r.FormValue("language") != "ja" {
			t.Errorf("expected language field, got %q", r.FormValue("language"))
		}
		if _, header, err := r.FormFile("file"); err != nil || header.Filename != "clip.mp3" {
			t.Errorf("expected file part clip.mp3, got %v (err %v)", header, err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"こんにちは"}`))
	}))
	defer server.Close()

	client := NewClient(ProviderOpenAI, server.URL, "sk-test", 5*time.Second)
	raw, err := client.Transcribe(context.Background(), "clip.mp3", strings.NewReader("audio-bytes"), "whisper-1", "ja")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("response is not passed through as JSON: %v", err)
	}
	if decoded.Text != "こんにちは" {
		t.Errorf("unexpected transcription: %q", decoded.Text)
	}
}
