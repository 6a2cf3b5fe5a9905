// Package brainvision reads BrainVision Core Data Format recordings: an INI
// header (.vhdr) describing a binary sample file (.eeg).
package brainvision

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
)

// BinaryFormat is the on-disk sample encoding.
type BinaryFormat string

const (
	Float32 BinaryFormat = "IEEE_FLOAT_32"
	Int16   BinaryFormat = "INT_16"
	Int32   BinaryFormat = "INT_32"
)

// Size returns the bytes per sample, 0 for unknown formats.
func (f BinaryFormat) Size() int {
	switch f {
	case Float32, Int32:
		return 4
	case Int16:
		return 2
	default:
		return 0
	}
}

// Orientation is the sample layout of the data file.
type Orientation string

const (
	Multiplexed Orientation = "MULTIPLEXED"
	Vectorized  Orientation = "VECTORIZED"
)

// Channel is one [Channel Infos] entry.
type Channel struct {
	Name       string  `json:"name"`
	Reference  string  `json:"reference,omitempty"`
	Resolution float64 `json:"resolution"`
	Unit       string  `json:"unit"`
}

// VoltScale converts a raw sample to volts.
func (c Channel) VoltScale() float64 {
	return c.Resolution * unitScale(c.Unit)
}

// Header is the subset of a .vhdr file needed to decode samples.
type Header struct {
	DataFile         string       `json:"data_file"`
	MarkerFile       string       `json:"marker_file,omitempty"`
	NumberOfChannels int          `json:"number_of_channels"`
	SamplingInterval float64      `json:"sampling_interval_us"`
	Format           BinaryFormat `json:"binary_format"`
	Orientation      Orientation  `json:"orientation"`
	Channels         []Channel    `json:"channels"`
}

// SampleRate returns the sampling frequency in Hz.
func (h *Header) SampleRate() float64 {
	return 1e6 / h.SamplingInterval
}

// ParseHeader decodes .vhdr content.
func ParseHeader(data []byte) (*Header, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: true,
		IgnoreInlineComment:     true,
		KeyValueDelimiters:      "=",
		AllowShadows:            false,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("parse vhdr: %w", err)
	}

	common := cfg.Section("Common Infos")
	h := &Header{
		DataFile:    strings.TrimSpace(common.Key("DataFile").String()),
		MarkerFile:  strings.TrimSpace(common.Key("MarkerFile").String()),
		Orientation: Orientation(strings.ToUpper(common.Key("DataOrientation").MustString(string(Multiplexed)))),
		Format:      BinaryFormat(strings.ToUpper(cfg.Section("Binary Infos").Key("BinaryFormat").MustString(string(Int16)))),
	}
	if h.DataFile == "" {
		return nil, fmt.Errorf("parse vhdr: Common Infos has no DataFile")
	}
	if df := common.Key("DataFormat").MustString("BINARY"); !strings.EqualFold(df, "BINARY") {
		return nil, fmt.Errorf("parse vhdr: unsupported DataFormat %q", df)
	}
	if h.Orientation != Multiplexed && h.Orientation != Vectorized {
		return nil, fmt.Errorf("parse vhdr: unsupported DataOrientation %q", h.Orientation)
	}
	if h.Format.Size() == 0 {
		return nil, fmt.Errorf("parse vhdr: unsupported BinaryFormat %q", h.Format)
	}
	if h.NumberOfChannels, err = common.Key("NumberOfChannels").Int(); err != nil {
		return nil, fmt.Errorf("parse vhdr: NumberOfChannels: %w", err)
	}
	if h.SamplingInterval, err = common.Key("SamplingInterval").Float64(); err != nil {
		return nil, fmt.Errorf("parse vhdr: SamplingInterval: %w", err)
	}
	if h.SamplingInterval <= 0 || math.IsNaN(h.SamplingInterval) {
		return nil, fmt.Errorf("parse vhdr: SamplingInterval must be positive, got %v", h.SamplingInterval)
	}

	channels, err := parseChannels(cfg.Section("Channel Infos"))
	if err != nil {
		return nil, err
	}
	if len(channels) != h.NumberOfChannels {
		return nil, fmt.Errorf("parse vhdr: %d channel entries for NumberOfChannels=%d", len(channels), h.NumberOfChannels)
	}
	h.Channels = channels
	return h, nil
}

func parseChannels(sec *ini.Section) ([]Channel, error) {
	type numbered struct {
		n  int
		ch Channel
	}
	var entries []numbered
	for _, key := range sec.Keys() {
		name := key.Name()
		if !strings.HasPrefix(name, "Ch") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "Ch"))
		if err != nil {
			continue
		}
		ch, err := parseChannel(key.String())
		if err != nil {
			return nil, fmt.Errorf("parse vhdr: %s: %w", name, err)
		}
		entries = append(entries, numbered{n: n, ch: ch})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].n < entries[j].n })

	out := make([]Channel, len(entries))
	for i, e := range entries {
		if e.n != i+1 {
			return nil, fmt.Errorf("parse vhdr: channel numbers are not contiguous at Ch%d", e.n)
		}
		out[i] = e.ch
	}
	return out, nil
}

// parseChannel decodes "<name>,<reference>,<resolution>,<unit>". A literal
// comma inside the name is written as \1.
func parseChannel(value string) (Channel, error) {
	parts := strings.Split(value, ",")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return Channel{}, fmt.Errorf("empty channel name in %q", value)
	}
	ch := Channel{
		Name:       strings.ReplaceAll(strings.TrimSpace(parts[0]), `\1`, ","),
		Resolution: 1,
		Unit:       "µV",
	}
	if len(parts) > 1 {
		ch.Reference = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		r, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return Channel{}, fmt.Errorf("resolution %q: %w", parts[2], err)
		}
		ch.Resolution = r
	}
	if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
		ch.Unit = strings.TrimSpace(parts[3])
	}
	if unitScale(ch.Unit) == 0 {
		return Channel{}, fmt.Errorf("unknown unit %q", ch.Unit)
	}
	return ch, nil
}

func unitScale(unit string) float64 {
	switch unit {
	case "V":
		return 1
	case "mV":
		return 1e-3
	case "µV", "μV", "uV", "\xb5V":
		return 1e-6
	case "nV":
		return 1e-9
	default:
		return 0
	}
}
