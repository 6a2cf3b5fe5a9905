package fruition

import "math"

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// meanDefined averages the finite values, NaN when there are none.
func meanDefined(values []float64) float64 {
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return total / float64(count)
}

// argmaxDefined returns the index of the first maximal finite value, or -1.
func argmaxDefined(values []float64) int {
	best := -1
	for i, v := range values {
		if !isFinite(v) {
			continue
		}
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

// RoundTo rounds half to even at the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	if !isFinite(v) {
		return v
	}
	scale := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*scale) / scale
}

// RollingMean is a trailing mean of span values; positions without span
// finite values are NaN.
func RollingMean(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if span <= 0 {
		return out
	}
	for i := span - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for _, v := range values[i-span+1 : i+1] {
			if !isFinite(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(span)
		}
	}
	return out
}

// CenteredRollingMean shifts RollingMean back by span/2 so each value is
// centered on its position.
func CenteredRollingMean(values []float64, span int) []float64 {
	rolled := RollingMean(values, span)
	shift := span / 2
	out := make([]float64, len(values))
	for i := range out {
		j := i + shift
		if j < len(rolled) {
			out[i] = rolled[j]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
