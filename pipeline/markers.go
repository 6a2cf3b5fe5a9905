package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// ReadTimestamps reads an observer log with "time" and "label" columns.
// Times are mm:ss, hh:mm:ss or whole seconds. Rows with an empty time are
// ignored.
func ReadTimestamps(path string) ([]fruition.EventMarker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read timestamps header: %w", err)
	}
	timeCol, labelCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "time":
			timeCol = i
		case "label":
			labelCol = i
		}
	}
	if timeCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("timestamps header %v needs time and label columns", header)
	}

	var markers []fruition.EventMarker
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read timestamps line %d: %w", line, err)
		}
		if timeCol >= len(rec) || strings.TrimSpace(rec[timeCol]) == "" {
			continue
		}
		sec, err := ParseClock(rec[timeCol])
		if err != nil {
			return nil, fmt.Errorf("timestamps line %d: %w", line, err)
		}
		label := ""
		if labelCol < len(rec) {
			label = rec[labelCol]
		}
		markers = append(markers, fruition.EventMarker{Second: sec, Label: label})
	}
	return markers, nil
}

// ParseClock converts "ss", "mm:ss" or "hh:mm:ss" to seconds.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		total = total*60 + n
	}
	return total, nil
}
