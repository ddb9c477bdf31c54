package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/relay/internal/domain"
	"github.com/timmy/relay/internal/logger"
	"github.com/timmy/relay/internal/provider"
	"github.com/timmy/relay/internal/storage"
)

// SpeechCaller issues speech synthesis calls against one provider route.
// *provider.Client satisfies it.
type SpeechCaller interface {
	Speech(ctx context.Context, req *provider.SpeechRequest) ([]byte, error)
}

// AdmissionError rejects a request before any upstream work begins:
// oversized batches, malformed segments, missing required fields.
type AdmissionError struct {
	Message string
	Limit   int
	Actual  int
}

// Error implements the error interface.
func (e *AdmissionError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%s (limit %d, got %d)", e.Message, e.Limit, e.Actual)
	}
	return e.Message
}

// SynthesisConfig holds segment pipeline policy. All values are tunable
// configuration, not hard-coded law.
type SynthesisConfig struct {
	MaxSegments    int           // admission cap on segment count
	MaxTotalChars  int           // admission cap on combined character count
	MaxConcurrency int           // worker pool width ceiling
	MaxRetries     int           // attempt ceiling per segment
	BaseDelay      time.Duration // first backoff delay
	MaxDelay       time.Duration // backoff cap
	AttemptTimeout time.Duration // upstream timeout per attempt
}

// DefaultSynthesisConfig returns the relay's default pipeline policy.
func DefaultSynthesisConfig() *SynthesisConfig {
	return &SynthesisConfig{
		MaxSegments:    300,
		MaxTotalChars:  40000,
		MaxConcurrency: 4,
		MaxRetries:     3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       4 * time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

// BatchRequest is one segment synthesis batch. MaxConcurrency and MaxRetries
// are optional per-request overrides, clamped to the configured ceilings.
type BatchRequest struct {
	Model          string
	Voice          string
	Format         string
	Segments       []domain.Segment
	MaxConcurrency int
	MaxRetries     int
}

// BatchResult is the ordered outcome of one batch: Segments[i] corresponds to
// the caller's Segments[i] regardless of completion order.
type BatchResult struct {
	BatchID         string
	SegmentCount    int
	TotalCharacters int
	Segments        []domain.SegmentAudio
}

// Synthesizer fans a segment batch out into bounded-concurrency upstream
// calls with per-segment retry. State is per-call; one Synthesizer serves all
// requests concurrently.
type Synthesizer struct {
	cfg     *SynthesisConfig
	archive storage.ObjectStorage
	log     *logger.Logger
}

// NewSynthesizer creates a synthesizer.
// Parameters:
//   - cfg: pipeline policy; nil uses DefaultSynthesisConfig.
//   - archive: optional audio archive; nil disables archiving.
//   - log: base logger.
//
// Returns:
//   - *Synthesizer: initialized synthesizer.
func NewSynthesizer(cfg *SynthesisConfig, archive storage.ObjectStorage, log *logger.Logger) *Synthesizer {
	if cfg == nil {
		cfg = DefaultSynthesisConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Synthesizer{cfg: cfg, archive: archive, log: log}
}

// Synthesize runs one batch. The caller's context is the batch cancellation
// signal: when it is cancelled (client disconnect), in-flight attempts are
// aborted, no new attempts start, and ctx.Err() is returned without any
// failure being reported upstream.
// Parameters:
//   - ctx: request-scoped context; cancelled on client disconnect.
//   - caller: provider speech client for this request's credentials.
//   - req: batch request.
//
// Returns:
//   - *BatchResult: results in the caller's segment order.
//   - error: *AdmissionError before any work, ctx.Err() on cancellation, or
//     the first segment's terminal error after retry exhaustion.
func (s *Synthesizer) Synthesize(ctx context.Context, caller SpeechCaller, req *BatchRequest) (*BatchResult, error) {
	segments, totalChars, err := s.admit(req)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	maxAttempts := clamp(req.MaxRetries, s.cfg.MaxRetries)
	workers := clamp(req.MaxConcurrency, s.cfg.MaxConcurrency)
	if workers > len(segments) {
		workers = len(segments)
	}

	log := s.log.WithFields(logger.Fields{
		logger.FieldBatchID: batchID,
		"segments":          len(segments),
		"total_chars":       totalChars,
		"workers":           workers,
	})
	log.Info("Synthesis batch started")

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Workers race for positions; result slots restore the caller's order.
	pending := make(chan int, len(segments))
	for i := range segments {
		pending <- i
	}
	close(pending)

	results := make([]domain.SegmentAudio, len(segments))
	rawAudio := make([][]byte, len(segments))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range pending {
				if batchCtx.Err() != nil {
					return
				}
				seg := segments[pos]
				audio, segErr := s.synthesizeSegment(batchCtx, caller, req, seg, maxAttempts, log)
				if segErr != nil {
					mu.Lock()
					if firstErr == nil && !errors.Is(segErr, context.Canceled) {
						firstErr = fmt.Errorf("segment %d: %w", seg.Index, segErr)
					}
					mu.Unlock()
					cancel()
					return
				}
				rawAudio[pos] = audio
				results[pos] = domain.SegmentAudio{
					Index:          seg.Index,
					AudioBase64:    base64.StdEncoding.EncodeToString(audio),
					TargetDuration: seg.EffectiveDuration(),
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		// The client is gone; there is no one to report to.
		log.Info("Synthesis batch abandoned, client disconnected")
		return nil, ctx.Err()
	}
	if firstErr != nil {
		log.WithError(firstErr).Warn("Synthesis batch failed")
		return nil, firstErr
	}

	s.archiveBatch(ctx, batchID, req.Format, results, rawAudio, log)

	log.Info("Synthesis batch completed")
	return &BatchResult{
		BatchID:         batchID,
		SegmentCount:    len(segments),
		TotalCharacters: totalChars,
		Segments:        results,
	}, nil
}

// admit validates the batch and enforces the hard size caps before any
// upstream call is issued. Returns cleaned segment copies with trimmed text.
func (s *Synthesizer) admit(req *BatchRequest) ([]domain.Segment, int, error) {
	if req.Model == "" {
		return nil, 0, &AdmissionError{Message: "model is required"}
	}
	if req.Voice == "" {
		return nil, 0, &AdmissionError{Message: "voice is required"}
	}
	if len(req.Segments) == 0 {
		return nil, 0, &AdmissionError{Message: "batch contains no segments"}
	}
	if len(req.Segments) > s.cfg.MaxSegments {
		return nil, 0, &AdmissionError{
			Message: "too many segments",
			Limit:   s.cfg.MaxSegments,
			Actual:  len(req.Segments),
		}
	}

	segments := make([]domain.Segment, len(req.Segments))
	totalChars := 0
	for i, seg := range req.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			return nil, 0, &AdmissionError{Message: fmt.Sprintf("segment %d has empty text", seg.Index)}
		}
		totalChars += len([]rune(seg.Text))
		segments[i] = seg
	}
	if totalChars > s.cfg.MaxTotalChars {
		return nil, 0, &AdmissionError{
			Message: "combined character count too large",
			Limit:   s.cfg.MaxTotalChars,
			Actual:  totalChars,
		}
	}

	return segments, totalChars, nil
}

// synthesizeSegment runs one segment to success or a terminal error, with
// attempt-scoped timeouts and classified exponential backoff in between.
func (s *Synthesizer) synthesizeSegment(ctx context.Context, caller SpeechCaller, req *BatchRequest, seg domain.Segment, maxAttempts int, log *logger.Logger) ([]byte, error) {
	speechReq := &provider.SpeechRequest{
		Model:          req.Model,
		Input:          seg.Text,
		Voice:          req.Voice,
		ResponseFormat: req.Format,
	}

	for attempt := 1; ; attempt++ {
		attemptCtx, cancelAttempt := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		audio, err := caller.Speech(attemptCtx, speechReq)
		cancelAttempt()

		if err == nil {
			return audio, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= maxAttempts || !ShouldRetry(err) {
			return nil, err
		}

		delay := Backoff(attempt, s.cfg.BaseDelay, s.cfg.MaxDelay)
		log.WithFields(logger.Fields{
			"segment":  seg.Index,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).WithError(err).Warn("Segment synthesis attempt failed, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// archiveBatch uploads segment audio to the configured archive and decorates
// results with public URLs. Best effort only: archive trouble is logged and
// never fails a batch the client already paid for.
func (s *Synthesizer) archiveBatch(ctx context.Context, batchID, format string, results []domain.SegmentAudio, rawAudio [][]byte, log *logger.Logger) {
	if s.archive == nil {
		return
	}
	if format == "" {
		format = "mp3"
	}
	contentType := AudioContentType(format)

	for i := range results {
		key := fmt.Sprintf("batches/%s/%03d.%s", batchID, results[i].Index, format)
		reader := bytes.NewReader(rawAudio[i])
		if err := s.archive.Upload(ctx, key, reader, int64(len(rawAudio[i])), contentType); err != nil {
			log.WithField("key", key).WithError(err).Warn("Failed to archive segment audio")
			continue
		}
		results[i].AudioURL = s.archive.GetURL(key)
	}
}

// AudioContentType maps a response format to its MIME type.
func AudioContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// clamp applies a per-request override bounded by the configured ceiling.
func clamp(requested, ceiling int) int {
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}
