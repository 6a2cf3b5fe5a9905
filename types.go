package fruition

import (
	"fmt"
	"strings"
)

const (
	// RefinedLabel is the note written on a row selected by the event refiner.
	// It never collides with observer labels because those are matched, not written.
	RefinedLabel = "FRUITION-CALC"

	// DefaultFruitionWindow is W: windows span 2W+1 seconds centered on the event.
	DefaultFruitionWindow = 50

	// DefaultMaxLookback bounds the seconds searched before an observer mark.
	DefaultMaxLookback = 50

	// DefaultSmoothSpan is the moving-average span of overlay curves.
	DefaultSmoothSpan = 10

	// DefaultMinLeadRows is the minimum row of an event that still gets a window.
	DefaultMinLeadRows = 5

	fruitionKeyword = "fruition"
)

// Recording is one session's raw multichannel voltage series.
type Recording struct {
	SessionID  string      `json:"session_id"`
	Channels   []string    `json:"channels"`
	SampleRate float64     `json:"sample_rate_hz"`
	Samples    [][]float64 `json:"-"` // [channel][sample], volts
}

// ChannelIndex returns the position of the named channel or -1.
func (r *Recording) ChannelIndex(name string) int {
	for i, ch := range r.Channels {
		if ch == name {
			return i
		}
	}
	return -1
}

// SampleCount returns the number of samples per channel.
func (r *Recording) SampleCount() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

// Validate checks the recording is rectangular and has a usable rate.
func (r *Recording) Validate() error {
	if r.SampleRate <= 0 {
		return fmt.Errorf("recording %s: sample rate must be positive, got %v", r.SessionID, r.SampleRate)
	}
	if len(r.Channels) == 0 || len(r.Channels) != len(r.Samples) {
		return fmt.Errorf("recording %s: %d channel names for %d sample rows", r.SessionID, len(r.Channels), len(r.Samples))
	}
	n := len(r.Samples[0])
	for i, row := range r.Samples {
		if len(row) != n {
			return fmt.Errorf("recording %s: channel %s has %d samples, want %d", r.SessionID, r.Channels[i], len(row), n)
		}
	}
	return nil
}

// EventMarker is one observer annotation from a session's timestamp log.
type EventMarker struct {
	Second int    `json:"second"`
	Label  string `json:"label"`
}

// IsFruitionMention reports whether the marker label mentions a fruition.
func (m EventMarker) IsFruitionMention() bool {
	return IsFruitionMention(m.Label)
}

// IsFruitionMention reports whether a note contains "fruition" in any case.
func IsFruitionMention(label string) bool {
	return strings.Contains(strings.ToLower(label), fruitionKeyword)
}

// RefinedEvent is an event index chosen by the refiner.
type RefinedEvent struct {
	Row        int `json:"row"`
	Second     int `json:"second"`
	MentionRow int `json:"mention_row"`
}
