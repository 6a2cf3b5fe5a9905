// Package bandpower turns raw recordings into per-second band-power tables.
package bandpower

// Band is a closed frequency interval in Hz.
type Band struct {
	Low  float64 `json:"low_hz" yaml:"low_hz"`
	High float64 `json:"high_hz" yaml:"high_hz"`
}

// Alpha is the 8-12 Hz band.
var Alpha = Band{Low: 8, High: 12}

// Contains reports whether f lies in the band.
func (b Band) Contains(f float64) bool {
	return f >= b.Low && f <= b.High
}

// Estimator computes the mean power spectral density of a segment over a band.
type Estimator interface {
	BandPower(segment []float64, fs float64, band Band) float64
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(segment []float64, fs float64, band Band) float64

// BandPower calls f.
func (f EstimatorFunc) BandPower(segment []float64, fs float64, band Band) float64 {
	return f(segment, fs, band)
}
