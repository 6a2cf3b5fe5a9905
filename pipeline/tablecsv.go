package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// WritePowerTableCSV writes t with header "Time (s), Var <ch>, <channels...>, notes".
// Undefined values are written as empty cells.
func WritePowerTableCSV(path string, t *fruition.PowerTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header()); err != nil {
		return err
	}
	row := make([]string, 0, len(t.Channels)+3)
	for i, sec := range t.Seconds {
		row = row[:0]
		row = append(row, strconv.Itoa(sec), formatFloat(t.Variance[i]))
		for c := range t.Channels {
			row = append(row, formatFloat(t.Power[c][i]))
		}
		row = append(row, t.Notes[i])
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadPowerTableCSV reads a table written by WritePowerTableCSV. Rows are
// placed by their second, not their position; seconds absent from the file
// come back as undefined rows and are listed in missing.
func ReadPowerTableCSV(path string) (t *fruition.PowerTable, missing []int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	n := len(header)
	if n < 3 || header[0] != fruition.TimeColumn || !strings.HasPrefix(header[1], fruition.VariancePrefix) || header[n-1] != fruition.NotesColumn {
		return nil, nil, fmt.Errorf("%s is not a power table: header %v", filepath.Base(path), header)
	}
	channels := header[2 : n-1]
	varChannel := strings.TrimPrefix(header[1], fruition.VariancePrefix)

	type parsed struct {
		second   int
		variance float64
		power    []float64
		note     string
	}
	var rows []parsed
	maxSecond := 0
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		sec, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil || sec < 1 {
			return nil, nil, fmt.Errorf("line %d: invalid second %q", line, rec[0])
		}
		p := parsed{second: sec, note: rec[n-1], power: make([]float64, len(channels))}
		if p.variance, err = parseFloat(rec[1]); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		for c := range channels {
			if p.power[c], err = parseFloat(rec[2+c]); err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		rows = append(rows, p)
		maxSecond = max(maxSecond, sec)
	}

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t = fruition.NewPowerTable(sessionID, channels, varChannel, maxSecond)
	ix := t.Index()
	seen := make(map[int]bool, len(rows))
	for _, p := range rows {
		if seen[p.second] {
			return nil, nil, fmt.Errorf("duplicate second %d", p.second)
		}
		seen[p.second] = true
		row, _ := ix.Row(p.second)
		t.Variance[row] = p.variance
		t.Notes[row] = p.note
		for c := range channels {
			t.Power[c][row] = p.power[c]
		}
	}
	for sec := 1; sec <= maxSecond; sec++ {
		if !seen[sec] {
			missing = append(missing, sec)
		}
	}
	return t, missing, t.Validate()
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
