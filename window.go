package fruition

import (
	"fmt"
	"math"
)

// WindowOptions configures ExtractWindow.
type WindowOptions struct {
	// HalfWidth is W; windows hold 2W+1 rows.
	HalfWidth int

	// MinLeadRows skips events on rows before it.
	MinLeadRows int

	// SmoothSpan is the centered moving-average span of the curve.
	SmoothSpan int

	// ExcludeColumns names power channels left out of the cross-channel mean.
	ExcludeColumns []string
}

// DefaultExcludeColumns are the frontal and auxiliary channels kept out of
// the alpha mean.
var DefaultExcludeColumns = []string{"Fp1", "Fp2", "F7", "F8", "F3", "F4", "Fz", "ExG 1"}

// DefaultWindowOptions returns the standard window geometry.
func DefaultWindowOptions() WindowOptions {
	return WindowOptions{
		HalfWidth:      DefaultFruitionWindow,
		MinLeadRows:    DefaultMinLeadRows,
		SmoothSpan:     DefaultSmoothSpan,
		ExcludeColumns: append([]string(nil), DefaultExcludeColumns...),
	}
}

// Length returns the number of rows in a full window.
func (o WindowOptions) Length() int {
	return 2*o.HalfWidth + 1
}

// WithDefaults fills unset geometry fields with their defaults and leaves
// ExcludeColumns as given.
func (o WindowOptions) WithDefaults() WindowOptions {
	if o.HalfWidth <= 0 {
		o.HalfWidth = DefaultFruitionWindow
	}
	if o.MinLeadRows < 0 {
		o.MinLeadRows = DefaultMinLeadRows
	}
	if o.SmoothSpan <= 0 {
		o.SmoothSpan = DefaultSmoothSpan
	}
	return o
}

// Curve is a smoothed, unrounded cross-channel mean around one event.
// StartRow and EventRow are table rows, so EventRow-StartRow values of the
// curve precede the event.
type Curve struct {
	Label    string    `json:"label"`
	StartRow int       `json:"start_row"`
	EventRow int       `json:"event_row"`
	Values   []float64 `json:"values"`
}

// EventWindow is one event's collapsed window.
type EventWindow struct {
	Label       string    `json:"label"`
	SessionID   string    `json:"session_id"`
	Ordinal     int       `json:"ordinal"`
	EventRow    int       `json:"event_row"`
	EventSecond int       `json:"event_second"`
	Values      []float64 `json:"values"`
	Curve       Curve     `json:"curve"`
}

// WindowLabel names the window of a session's ordinal-th refined event.
func WindowLabel(sessionID string, ordinal int) string {
	return fmt.Sprintf("%s_Fruition_%d", sessionID, ordinal)
}

// ExtractWindow collapses rows [row-W, row+W] of the selected channels to
// one rounded mean per second.
//
// Events before MinLeadRows return ErrInsufficientLookback and nothing else.
// A clipped window or one with an undefined mean returns the window with nil
// Values, its Curve filled in, and an error wrapping ErrIncompleteWindow.
func ExtractWindow(t *PowerTable, ev RefinedEvent, ordinal int, opts WindowOptions) (*EventWindow, error) {
	opts = opts.WithDefaults()
	label := WindowLabel(t.SessionID, ordinal)
	if ev.Row < 0 || ev.Row >= t.Rows() {
		return nil, fmt.Errorf("window %s: event row %d outside table of %d rows", label, ev.Row, t.Rows())
	}
	if ev.Row < opts.MinLeadRows {
		return nil, fmt.Errorf("window %s: event row %d is within %d rows of the table start: %w",
			label, ev.Row, opts.MinLeadRows, ErrInsufficientLookback)
	}

	lo := ev.Row - opts.HalfWidth
	if lo < 0 {
		lo = 0
	}
	hi := ev.Row + opts.HalfWidth
	if hi > t.Rows()-1 {
		hi = t.Rows() - 1
	}

	cols := t.SelectChannels(opts.ExcludeColumns)
	means := make([]float64, 0, hi-lo+1)
	rowValues := make([]float64, len(cols))
	for row := lo; row <= hi; row++ {
		for i, c := range cols {
			rowValues[i] = t.Power[c][row]
		}
		means = append(means, meanDefined(rowValues))
	}

	w := &EventWindow{
		Label:       label,
		SessionID:   t.SessionID,
		Ordinal:     ordinal,
		EventRow:    ev.Row,
		EventSecond: t.Seconds[ev.Row],
		Curve: Curve{
			Label:    label,
			StartRow: lo,
			EventRow: ev.Row,
			Values:   CenteredRollingMean(means, opts.SmoothSpan),
		},
	}

	if len(means) != opts.Length() {
		return w, fmt.Errorf("window %s: %d of %d rows inside the table: %w", label, len(means), opts.Length(), ErrIncompleteWindow)
	}
	values := make([]float64, len(means))
	for i, m := range means {
		if math.IsNaN(m) {
			return w, fmt.Errorf("window %s: undefined mean at offset %d: %w", label, i-opts.HalfWidth, ErrIncompleteWindow)
		}
		values[i] = math.RoundToEven(m)
	}
	w.Values = values
	return w, nil
}

// WindowTable collects equal-length, fully defined window columns in
// insertion order.
type WindowTable struct {
	length  int
	labels  []string
	columns map[string][]float64
}

// NewWindowTable returns an empty table whose columns hold length rows.
func NewWindowTable(length int) *WindowTable {
	return &WindowTable{length: length, columns: make(map[string][]float64)}
}

// Length returns the number of rows in every column.
func (t *WindowTable) Length() int {
	return t.length
}

// Len returns the number of columns.
func (t *WindowTable) Len() int {
	return len(t.labels)
}

// Labels returns the column labels in insertion order.
func (t *WindowTable) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Column returns the values of the labelled column.
func (t *WindowTable) Column(label string) ([]float64, bool) {
	col, ok := t.columns[label]
	return col, ok
}

// Add appends a column. Columns of the wrong length or with undefined values
// are rejected with ErrIncompleteWindow.
func (t *WindowTable) Add(label string, values []float64) error {
	if len(values) != t.length {
		return fmt.Errorf("column %s has %d rows, want %d: %w", label, len(values), t.length, ErrIncompleteWindow)
	}
	for i, v := range values {
		if !isFinite(v) {
			return fmt.Errorf("column %s row %d is undefined: %w", label, i, ErrIncompleteWindow)
		}
	}
	if _, dup := t.columns[label]; dup {
		return fmt.Errorf("column %s already present", label)
	}
	t.labels = append(t.labels, label)
	t.columns[label] = append([]float64(nil), values...)
	return nil
}

// Merge appends every column of other.
func (t *WindowTable) Merge(other *WindowTable) error {
	if other == nil {
		return nil
	}
	if other.length != t.length {
		return fmt.Errorf("merge window tables: length %d into %d", other.length, t.length)
	}
	for _, label := range other.labels {
		if err := t.Add(label, other.columns[label]); err != nil {
			return fmt.Errorf("merge window tables: %w", err)
		}
	}
	return nil
}

// Without returns a copy of the table lacking the labelled column.
func (t *WindowTable) Without(label string) *WindowTable {
	out := NewWindowTable(t.length)
	for _, l := range t.labels {
		if l == label {
			continue
		}
		out.labels = append(out.labels, l)
		out.columns[l] = t.columns[l]
	}
	return out
}

// Observations returns one row per column, in label order.
func (t *WindowTable) Observations() [][]float64 {
	out := make([][]float64, len(t.labels))
	for i, l := range t.labels {
		out[i] = append([]float64(nil), t.columns[l]...)
	}
	return out
}
