package domain

// Segment is one unit of text to synthesize into audio within a batch.
// Segments are immutable once accepted; Index is the caller-supplied ordinal
// used to reassemble output order regardless of completion order.
type Segment struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	// TargetDuration is an optional pacing hint in seconds. When zero it is
	// derived from End-Start if both are present.
	TargetDuration float64 `json:"target_duration,omitempty"`
}

// EffectiveDuration returns the pacing hint for the segment, deriving it from
// the start/end timestamps when no explicit hint was supplied. Returns zero
// when no hint can be derived.
func (s Segment) EffectiveDuration() float64 {
	if s.TargetDuration > 0 {
		return s.TargetDuration
	}
	if s.End > s.Start {
		return s.End - s.Start
	}
	return 0
}

// SegmentAudio is the synthesis result for a single segment, addressed back
// to the caller's ordinal.
type SegmentAudio struct {
	Index          int     `json:"index"`
	AudioBase64    string  `json:"audio_base64"`
	AudioURL       string  `json:"audio_url,omitempty"`
	TargetDuration float64 `json:"target_duration,omitempty"`
}
