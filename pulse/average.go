package pulse

import (
	"fmt"
	"math"
)

// Average merges several captures of the same code into one canonical
// code.
//
// Every sample is quantized on its own: a unit is inferred from the
// durations close to the shortest one, and each duration must sit within
// the tolerance of an integer multiple of it. The quantized samples must
// be identical, and their units must agree within the tolerance. The
// result is the shared quantized code scaled by the mean unit.
func Average(codes []Code, opts AverageOptions) (Code, error) {
	opts = opts.withDefaults()
	if len(codes) == 0 {
		return nil, configError("average", ErrNoSamples)
	}

	quantized := make([][]int, len(codes))
	units := make([]float64, len(codes))
	for i, code := range codes {
		q, unit, err := quantize(code, opts.Tolerance)
		if err != nil {
			return nil, err
		}
		quantized[i], units[i] = q, unit
	}

	for _, q := range quantized[1:] {
		if !sameMultiples(quantized[0], q) {
			return nil, ErrInconsistentSamples
		}
	}

	unit := mean(units)
	if !inRange(units, unit, opts.Tolerance) {
		return nil, fmt.Errorf("%w: units %v", ErrToleranceExceeded, units)
	}

	out := make(Code, len(quantized[0]))
	for i, n := range quantized[0] {
		out[i] = float64(n) * unit
	}
	return out, nil
}

// quantize infers the unit of code and returns its durations as
// multiples of that unit.
func quantize(code Code, tolerance float64) ([]int, float64, error) {
	if len(code) == 0 {
		return nil, 0, configError("average", ErrNoSamples)
	}

	minPulse := code[0]
	for _, d := range code[1:] {
		minPulse = math.Min(minPulse, d)
	}
	if minPulse <= 0 {
		return nil, 0, fmt.Errorf("%w: non-positive duration", ErrToleranceExceeded)
	}

	var similar []float64
	for _, d := range code {
		if d/minPulse-1 < tolerance*2 {
			similar = append(similar, d)
		}
	}
	similarAvg := mean(similar)

	var total, cycles float64
	for _, d := range code {
		total += d
		cycles += math.Round(d / similarAvg)
	}
	unit := math.Round(total / cycles)
	if unit <= 0 || math.IsNaN(unit) || math.IsInf(unit, 0) {
		return nil, 0, fmt.Errorf("%w: no usable unit", ErrToleranceExceeded)
	}
	if !inRange(code, unit, tolerance) {
		return nil, 0, ErrToleranceExceeded
	}

	q := make([]int, len(code))
	for i, d := range code {
		q[i] = int(math.Round(d / unit))
	}
	return q, unit, nil
}

func inRange(values []float64, unit, tolerance float64) bool {
	for _, v := range values {
		ratio := v / unit
		if math.Abs(ratio-math.Round(ratio)) >= tolerance {
			return false
		}
	}
	return true
}

func sameMultiples(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
