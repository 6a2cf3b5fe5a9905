package fruition

import (
	"fmt"
	"log/slog"
)

// RefineOptions configures RefineEvents.
type RefineOptions struct {
	// MaxLookback is the number of seconds searched before each mention.
	MaxLookback int

	// Dedup collapses mentions that refine to the same row into one event.
	Dedup bool

	Logger *slog.Logger
}

// SkippedMention is a fruition mention that produced no refined event.
type SkippedMention struct {
	Row    int    `json:"row"`
	Second int    `json:"second"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// RefineResult lists the refined events of one table.
type RefineResult struct {
	Mentions int              `json:"mentions"`
	Events   []RefinedEvent   `json:"events"`
	Skipped  []SkippedMention `json:"skipped,omitempty"`
}

// RefineEvents locates, for each row noting a fruition, the row of maximal
// variance in [row-MaxLookback, row) and relabels it RefinedLabel.
// Mentions with an empty or undefined lookback are skipped with
// ErrInsufficientLookback. Without Dedup a row chosen by several mentions
// carries RefinedLabel once per mention.
func RefineEvents(t *PowerTable, opts RefineOptions) RefineResult {
	logger := loggerOrDiscard(opts.Logger)
	lookback := opts.MaxLookback
	if lookback <= 0 {
		lookback = DefaultMaxLookback
	}

	// Mentions are collected first so relabeling cannot hide one.
	var mentions []int
	for row, note := range t.Notes {
		if IsFruitionMention(note) {
			mentions = append(mentions, row)
		}
	}

	res := RefineResult{Mentions: len(mentions)}
	seen := make(map[int]struct{})
	for _, row := range mentions {
		start := row - lookback
		if start < 0 {
			start = 0
		}
		best := argmaxDefined(t.Variance[start:row])
		if best < 0 {
			err := fmt.Errorf("session %s second %d: no defined variance in rows [%d, %d): %w",
				t.SessionID, t.Seconds[row], start, row, ErrInsufficientLookback)
			logger.Warn("skipping fruition mention", "session", t.SessionID, "second", t.Seconds[row], "error", err)
			res.Skipped = append(res.Skipped, SkippedMention{Row: row, Second: t.Seconds[row], Err: err, Reason: err.Error()})
			continue
		}
		refined := start + best
		if _, dup := seen[refined]; dup {
			if opts.Dedup {
				logger.Debug("refined row already selected", "session", t.SessionID, "row", refined, "mention_row", row)
				continue
			}
			// One label per refined event keeps the multiplicity in the persisted notes.
			t.Notes[refined] += noteSeparator + RefinedLabel
		} else {
			t.Notes[refined] = RefinedLabel
			seen[refined] = struct{}{}
		}
		res.Events = append(res.Events, RefinedEvent{Row: refined, Second: t.Seconds[refined], MentionRow: row})
		logger.Debug("refined fruition mention", "session", t.SessionID, "mention_second", t.Seconds[row], "event_second", t.Seconds[refined])
	}
	return res
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
