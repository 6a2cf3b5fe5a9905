package fruition

import "fmt"

// AlignedCurves holds one canonical frame per curve, in input order.
type AlignedCurves struct {
	HalfWidth int         `json:"half_width"`
	Labels    []string    `json:"labels"`
	Frames    [][]float64 `json:"frames"`
	Anomalies []error     `json:"-"`
}

// AlignCurve places a curve in a zero frame of 2W+1 values anchored at the
// event. Curves that start after the frame's first second land at
// offset W-(EventRow-StartRow); the offset counts rows before the event
// row, not the table row the curve starts on. A curve that cannot be placed yields an
// all-zero frame and an error wrapping ErrAlignmentUnderflow.
func AlignCurve(c Curve, halfWidth int) ([]float64, error) {
	frameLen := 2*halfWidth + 1
	frame := make([]float64, frameLen)

	offset := halfWidth - (c.EventRow - c.StartRow)
	if offset < 0 {
		offset = 0
	}
	length := frameLen - offset
	if len(c.Values) < length {
		length = len(c.Values)
	}
	if length <= 0 {
		return frame, fmt.Errorf("curve %s: first_row_offset=%d offset=%d length=%d: %w",
			c.Label, c.EventRow-c.StartRow, offset, length, ErrAlignmentUnderflow)
	}
	copy(frame[offset:offset+length], c.Values[:length])
	return frame, nil
}

// AlignCurves aligns every curve; anomalies keep their zero frame.
func AlignCurves(curves []Curve, halfWidth int) AlignedCurves {
	out := AlignedCurves{
		HalfWidth: halfWidth,
		Labels:    make([]string, 0, len(curves)),
		Frames:    make([][]float64, 0, len(curves)),
	}
	for _, c := range curves {
		frame, err := AlignCurve(c, halfWidth)
		if err != nil {
			out.Anomalies = append(out.Anomalies, err)
		}
		out.Labels = append(out.Labels, c.Label)
		out.Frames = append(out.Frames, frame)
	}
	return out
}
