package handler

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/relay/internal/provider"
	"github.com/timmy/relay/internal/relay"
)

func newSpeechTestRouter(t *testing.T, providerHandler http.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(providerHandler)
	t.Cleanup(upstream.Close)

	registry := provider.NewRegistry(&provider.Config{OpenAIBaseURL: upstream.URL, GeminiBaseURL: upstream.URL})
	synth := relay.NewSynthesizer(&relay.SynthesisConfig{
		MaxSegments:    5,
		MaxTotalChars:  500,
		MaxConcurrency: 2,
		MaxRetries:     2,
		BaseDelay:      time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		AttemptTimeout: time.Second,
	}, nil, nil)

	h := NewSpeechHandler(synth, registry)
	r := gin.New()
	r.POST("/api/v1/speech/segments", h.SynthesizeSegments)
	r.POST("/api/v1/speech", h.Speak)
	return r
}

// stubSpeech echoes the requested input as the audio payload so tests can
// verify segment ordering end to end.
func stubSpeech() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req provider.SpeechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		fmt.Fprintf(w, "audio:%s", req.Input)
	}
}

func TestSpeechHandler_SynthesizeSegments(t *testing.T) {
	r := newSpeechTestRouter(t, stubSpeech())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speech/segments", strings.NewReader(`{
		"model": "tts-1",
		"voice": "alloy",
		"segments": [
			{"index": 0, "text": "first"},
			{"index": 1, "text": "second"},
			{"index": 2, "text": "third"}
		]
	}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", "sk-test")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		BatchID         string `json:"batch_id"`
		SegmentCount    int    `json:"segment_count"`
		TotalCharacters int    `json:"total_characters"`
		Segments        []struct {
			Index       int    `json:"index"`
			AudioBase64 string `json:"audio_base64"`
		} `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.NotEmpty(t, body.BatchID)
	assert.Equal(t, 3, body.SegmentCount)
	assert.Equal(t, len("first")+len("second")+len("third"), body.TotalCharacters)
	require.Len(t, body.Segments, 3)

	for i, want := range []string{"first", "second", "third"} {
		audio, err := base64.StdEncoding.DecodeString(body.Segments[i].AudioBase64)
		require.NoError(t, err)
		assert.Equal(t, "audio:"+want, string(audio))
		assert.Equal(t, i, body.Segments[i].Index)
	}
}

func TestSpeechHandler_AdmissionErrors(t *testing.T) {
	called := false
	r := newSpeechTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{
			name:   "missing voice",
			body:   `{"model":"tts-1","segments":[{"index":0,"text":"hi"}]}`,
			status: http.StatusBadRequest,
		},
		{
			name: "too many segments",
			body: `{"model":"tts-1","voice":"alloy","segments":[
				{"index":0,"text":"a"},{"index":1,"text":"b"},{"index":2,"text":"c"},
				{"index":3,"text":"d"},{"index":4,"text":"e"},{"index":5,"text":"f"}
			]}`,
			status: http.StatusRequestEntityTooLarge,
		},
		{
			name:   "blank segment",
			body:   `{"model":"tts-1","voice":"alloy","segments":[{"index":0,"text":"  "}]}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/speech/segments", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Api-Key", "sk-test")
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.False(t, called, "admission rejections must not reach the provider")
}

func TestSpeechHandler_MissingCredential(t *testing.T) {
	r := newSpeechTestRouter(t, stubSpeech())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speech/segments",
		strings.NewReader(`{"model":"tts-1","voice":"alloy","segments":[{"index":0,"text":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSpeechHandler_UpstreamErrorMapsToBadGateway(t *testing.T) {
	r := newSpeechTestRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Unknown voice"}}`))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speech/segments",
		strings.NewReader(`{"model":"tts-1","voice":"nope","segments":[{"index":0,"text":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", "sk-test")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown voice")
}

func TestSpeechHandler_Speak(t *testing.T) {
	r := newSpeechTestRouter(t, stubSpeech())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speech",
		strings.NewReader(`{"model":"tts-1","voice":"alloy","input":"hello there"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sk-test")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "audio:hello there", w.Body.String())
}
