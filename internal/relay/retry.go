package relay

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/timmy/relay/internal/provider"
)

// retryableStatuses is the allow-list of transient HTTP statuses: request
// timeout, conflict, too-early, rate limiting, server-side 5xx and the
// Cloudflare gateway codes 520/524.
var retryableStatuses = map[int]bool{
	408: true,
	409: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
	520: true,
	524: true,
}

// transientVocabulary matches provider/transport error text that signals a
// transient condition worth retrying.
var transientVocabulary = []string{
	"timeout",
	"timed out",
	"temporarily unavailable",
	"connection reset",
	"gateway",
	"rate limit",
	"too many requests",
}

// statusTokenPattern finds the first standalone 3-digit HTTP status token in
// an error message. This is a documented low-confidence fallback for errors
// that carry no structured status; structured extraction always runs first.
var statusTokenPattern = regexp.MustCompile(`(?:^|[^0-9])([1-5][0-9]{2})(?:[^0-9]|$)`)

// ShouldRetry classifies an upstream error as retryable or terminal. The
// default is asymmetric on purpose: unknown failure kinds (no extractable
// status, no recognizable network code) are retried, known client errors are
// not — the relay favors availability over fast-fail for the transient
// upstream instability it exists to tolerate.
// Parameters:
//   - err: error returned by an upstream call.
//
// Returns:
//   - bool: true when the caller should retry the attempt.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Cancellation is not a failure; never burn retries on it.
	if errors.Is(err, context.Canceled) {
		return false
	}

	status, found := statusFromError(err)
	if found {
		if status >= 200 && status < 400 {
			return false
		}
		if retryableStatuses[status] {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, word := range transientVocabulary {
		if strings.Contains(msg, word) {
			return true
		}
	}

	if isTransientNetError(err) {
		return true
	}

	// Pure network failure with no structured response: retry.
	return !found
}

// statusFromError extracts an HTTP status from an error, preferring the
// structured provider error and falling back to message sniffing.
func statusFromError(err error) (int, bool) {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}

	match := statusTokenPattern.FindStringSubmatch(err.Error())
	if len(match) == 2 {
		status, convErr := strconv.Atoi(match[1])
		if convErr == nil {
			return status, true
		}
	}
	return 0, false
}

// isTransientNetError reports whether the error carries a known transient
// network error code or is a net-level timeout.
func isTransientNetError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	transientErrnos := []syscall.Errno{
		syscall.ECONNRESET,
		syscall.ECONNABORTED,
		syscall.ETIMEDOUT,
		syscall.EHOSTUNREACH,
		syscall.ENETUNREACH,
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// Backoff returns the delay before retry attempt n (n >= 1):
// min(maxDelay, baseDelay * 2^(n-1)).
// Parameters:
//   - attempt: 1-based attempt number that just failed.
//   - baseDelay: delay before the first retry.
//   - maxDelay: delay cap.
//
// Returns:
//   - time.Duration: backoff delay.
func Backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay || delay <= 0 {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
