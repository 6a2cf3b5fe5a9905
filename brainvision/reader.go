package brainvision

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// File is a loaded recording and the provenance of its source files.
type File struct {
	HeaderPath  string              `json:"header_path"`
	DataPath    string              `json:"data_path"`
	Header      *Header             `json:"header"`
	SHA256      string              `json:"sha256"`
	SizeBytes   int64               `json:"size_bytes"`
	SampleCount int                 `json:"sample_count"`
	Recording   *fruition.Recording `json:"-"`
}

// SessionID derives a session id from a header path: its base name without
// extension.
func SessionID(vhdrPath string) string {
	base := filepath.Base(vhdrPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads a .vhdr header and its data file into a Recording in volts.
// SHA256 covers the header followed by the data file.
func Load(vhdrPath string) (*File, error) {
	if strings.TrimSpace(vhdrPath) == "" {
		return nil, fmt.Errorf("header path is required")
	}
	headerBytes, err := os.ReadFile(vhdrPath)
	if err != nil {
		return nil, fmt.Errorf("read vhdr: %w", err)
	}
	h, err := ParseHeader(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", vhdrPath, err)
	}

	dataPath := h.DataFile
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(filepath.Dir(vhdrPath), dataPath)
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("read eeg data: %w", err)
	}

	samples, err := Decode(h, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dataPath, err)
	}

	sum := sha256.New()
	sum.Write(headerBytes)
	sum.Write(data)

	rec := &fruition.Recording{
		SessionID:  SessionID(vhdrPath),
		Channels:   make([]string, len(h.Channels)),
		SampleRate: h.SampleRate(),
		Samples:    samples,
	}
	for i, ch := range h.Channels {
		rec.Channels[i] = ch.Name
	}
	return &File{
		HeaderPath:  vhdrPath,
		DataPath:    dataPath,
		Header:      h,
		SHA256:      hex.EncodeToString(sum.Sum(nil)),
		SizeBytes:   int64(len(headerBytes) + len(data)),
		SampleCount: rec.SampleCount(),
		Recording:   rec,
	}, nil
}

// Decode converts little-endian binary samples to volts, [channel][sample].
// Trailing bytes that do not form a full sample frame are ignored.
func Decode(h *Header, data []byte) ([][]float64, error) {
	nch := len(h.Channels)
	size := h.Format.Size()
	if nch == 0 || size == 0 {
		return nil, fmt.Errorf("decode samples: %d channels of %q", nch, h.Format)
	}
	n := len(data) / (nch * size)

	out := make([][]float64, nch)
	scales := make([]float64, nch)
	for c := range out {
		out[c] = make([]float64, n)
		scales[c] = h.Channels[c].VoltScale()
	}

	for c := 0; c < nch; c++ {
		for i := 0; i < n; i++ {
			var pos int
			if h.Orientation == Vectorized {
				pos = (c*n + i) * size
			} else {
				pos = (i*nch + c) * size
			}
			out[c][i] = rawSample(h.Format, data[pos:pos+size]) * scales[c]
		}
	}
	return out, nil
}

func rawSample(f BinaryFormat, b []byte) float64 {
	switch f {
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	}
}
