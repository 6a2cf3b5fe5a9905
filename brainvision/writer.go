package brainvision

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// WriteOptions configures Write.
type WriteOptions struct {
	Format      BinaryFormat
	Orientation Orientation

	// Resolution is the µV value of one raw integer step; float data is
	// always written in µV with resolution 1.
	Resolution float64
}

// Write stores rec as <dir>/<stem>.vhdr and <dir>/<stem>.eeg and returns the
// header path.
func Write(dir, stem string, rec *fruition.Recording, opts WriteOptions) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if opts.Format == "" {
		opts.Format = Float32
	}
	if opts.Orientation == "" {
		opts.Orientation = Multiplexed
	}
	if opts.Format.Size() == 0 {
		return "", fmt.Errorf("write vhdr: unsupported format %q", opts.Format)
	}
	resolution := 1.0
	if opts.Format != Float32 && opts.Resolution > 0 {
		resolution = opts.Resolution
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recording directory: %w", err)
	}

	var hb strings.Builder
	hb.WriteString("Brain Vision Data Exchange Header File Version 1.0\n")
	hb.WriteString("; Data written by fruition-analyzer\n\n")
	hb.WriteString("[Common Infos]\nCodepage=UTF-8\n")
	fmt.Fprintf(&hb, "DataFile=%s.eeg\n", stem)
	fmt.Fprintf(&hb, "DataFormat=BINARY\nDataOrientation=%s\n", opts.Orientation)
	fmt.Fprintf(&hb, "NumberOfChannels=%d\n", len(rec.Channels))
	fmt.Fprintf(&hb, "SamplingInterval=%g\n\n", 1e6/rec.SampleRate)
	fmt.Fprintf(&hb, "[Binary Infos]\nBinaryFormat=%s\n\n", opts.Format)
	hb.WriteString("[Channel Infos]\n")
	for i, name := range rec.Channels {
		fmt.Fprintf(&hb, "Ch%d=%s,,%g,µV\n", i+1, strings.ReplaceAll(name, ",", `\1`), resolution)
	}

	nch := len(rec.Channels)
	n := rec.SampleCount()
	size := opts.Format.Size()
	data := make([]byte, nch*n*size)
	for c := 0; c < nch; c++ {
		for i := 0; i < n; i++ {
			var pos int
			if opts.Orientation == Vectorized {
				pos = (c*n + i) * size
			} else {
				pos = (i*nch + c) * size
			}
			raw := rec.Samples[c][i] / 1e-6 / resolution
			putSample(opts.Format, data[pos:pos+size], raw)
		}
	}

	vhdrPath := filepath.Join(dir, stem+".vhdr")
	if err := os.WriteFile(filepath.Join(dir, stem+".eeg"), data, 0o644); err != nil {
		return "", fmt.Errorf("write eeg data: %w", err)
	}
	if err := os.WriteFile(vhdrPath, []byte(hb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write vhdr: %w", err)
	}
	return vhdrPath, nil
}

func putSample(f BinaryFormat, b []byte, v float64) {
	switch f {
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(math.Round(v))))
	default:
		binary.LittleEndian.PutUint16(b, uint16(int16(math.Round(v))))
	}
}
