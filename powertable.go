package fruition

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	// TimeColumn is the header of the second column in persisted power tables.
	TimeColumn = "Time (s)"
	// NotesColumn is the header of the annotation column.
	NotesColumn = "notes"
	// VariancePrefix prefixes the variance channel name in the header.
	VariancePrefix = "Var "

	noteSeparator = "; "
)

// PowerTable is one session's per-second band power, reference variance and notes.
// Row i always holds second i+1.
type PowerTable struct {
	SessionID       string
	Seconds         []int
	Channels        []string
	Power           [][]float64 // [channel][row], NaN when missing
	VarianceChannel string
	Variance        []float64
	Notes           []string
}

// NewPowerTable allocates a table of rows seconds with NaN power and variance.
func NewPowerTable(sessionID string, channels []string, varianceChannel string, rows int) *PowerTable {
	t := &PowerTable{
		SessionID:       sessionID,
		Seconds:         make([]int, rows),
		Channels:        append([]string(nil), channels...),
		Power:           make([][]float64, len(channels)),
		VarianceChannel: varianceChannel,
		Variance:        make([]float64, rows),
		Notes:           make([]string, rows),
	}
	for i := range t.Seconds {
		t.Seconds[i] = i + 1
		t.Variance[i] = math.NaN()
	}
	for c := range t.Power {
		col := make([]float64, rows)
		for i := range col {
			col[i] = math.NaN()
		}
		t.Power[c] = col
	}
	return t
}

// Rows returns the number of seconds in the table.
func (t *PowerTable) Rows() int {
	return len(t.Seconds)
}

// Validate checks the contiguous 1-based second index and column lengths.
func (t *PowerTable) Validate() error {
	n := len(t.Seconds)
	for i, s := range t.Seconds {
		if s != i+1 {
			return fmt.Errorf("power table %s: row %d has second %d, want %d", t.SessionID, i, s, i+1)
		}
	}
	if len(t.Variance) != n || len(t.Notes) != n {
		return fmt.Errorf("power table %s: variance/notes length %d/%d, want %d", t.SessionID, len(t.Variance), len(t.Notes), n)
	}
	if len(t.Power) != len(t.Channels) {
		return fmt.Errorf("power table %s: %d power columns for %d channels", t.SessionID, len(t.Power), len(t.Channels))
	}
	for c, col := range t.Power {
		if len(col) != n {
			return fmt.Errorf("power table %s: channel %s has %d rows, want %d", t.SessionID, t.Channels[c], len(col), n)
		}
	}
	return nil
}

// Index returns the second-to-row lookup for the table.
func (t *PowerTable) Index() TimeIndex {
	ix := make(TimeIndex, len(t.Seconds))
	for row, s := range t.Seconds {
		ix[s] = row
	}
	return ix
}

// ChannelIndex returns the power column of the named channel or -1.
func (t *PowerTable) ChannelIndex(name string) int {
	for i, ch := range t.Channels {
		if ch == name {
			return i
		}
	}
	return -1
}

// Header returns the persisted column names.
func (t *PowerTable) Header() []string {
	header := make([]string, 0, len(t.Channels)+3)
	header = append(header, TimeColumn, VariancePrefix+t.VarianceChannel)
	header = append(header, t.Channels...)
	return append(header, NotesColumn)
}

// SelectChannels returns the power column indices not named in exclude.
func (t *PowerTable) SelectChannels(exclude []string) []int {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}
	out := make([]int, 0, len(t.Channels))
	for i, ch := range t.Channels {
		if _, ok := skip[ch]; ok {
			continue
		}
		out = append(out, i)
	}
	return out
}

// MergeAnnotations writes marker labels onto rows with the same second.
// Several labels on one second are joined with "; ". Markers outside the
// table are returned unmatched.
func (t *PowerTable) MergeAnnotations(markers []EventMarker) []EventMarker {
	ix := t.Index()
	sorted := append([]EventMarker(nil), markers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Second < sorted[j].Second })

	var unmatched []EventMarker
	for _, m := range sorted {
		row, ok := ix.Row(m.Second)
		if !ok {
			unmatched = append(unmatched, m)
			continue
		}
		label := strings.TrimSpace(m.Label)
		if label == "" {
			continue
		}
		if t.Notes[row] == "" {
			t.Notes[row] = label
		} else {
			t.Notes[row] += noteSeparator + label
		}
	}
	return unmatched
}

// RefinedEvents returns the events already tagged with RefinedLabel, in row
// order. A row tagged n times yields n events.
func (t *PowerTable) RefinedEvents() []RefinedEvent {
	var out []RefinedEvent
	for row, note := range t.Notes {
		for range refinedCount(note) {
			out = append(out, RefinedEvent{Row: row, Second: t.Seconds[row], MentionRow: -1})
		}
	}
	return out
}

func refinedCount(note string) int {
	n := 0
	for _, part := range strings.Split(note, noteSeparator) {
		if part == RefinedLabel {
			n++
		}
	}
	return n
}

// TimeIndex maps a second to its row.
type TimeIndex map[int]int

// Row returns the row holding second.
func (ix TimeIndex) Row(second int) (int, bool) {
	row, ok := ix[second]
	return row, ok
}
