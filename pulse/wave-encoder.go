package pulse

import (
	"math"

	"github.com/derktes/pi-ir/gpio"
)

// Wave is a code compiled for playback. Segments holds every distinct
// pulse and space once; Order lists the segment index of each position
// of the code.
type Wave struct {
	Pin      int
	Segments [][]gpio.WaveStep
	Order    []int
}

// Steps returns the full step sequence in playback order.
func (w *Wave) Steps() []gpio.WaveStep {
	var out []gpio.WaveStep
	for _, i := range w.Order {
		out = append(out, w.Segments[i]...)
	}
	return out
}

// Duration returns the playback length in microseconds.
func (w *Wave) Duration() uint64 {
	var total uint64
	for _, i := range w.Order {
		total += gpio.StepsDuration(w.Segments[i])
	}
	return total
}

// Encode compiles code into a wave on pin with a sub-carrier of
// frequency kHz. Pulses become on/off carrier cycles, spaces a single
// idle step. The code must end on a pulse, so its length must be odd.
func Encode(code Code, pin int, frequency float64) (*Wave, error) {
	if err := validatePin("encode", pin); err != nil {
		return nil, err
	}
	if len(code)%2 == 0 {
		return nil, configError("encode", ErrInvalidCodeLength)
	}
	if err := code.Validate(); err != nil {
		return nil, configError("encode", err)
	}
	if frequency <= 0 {
		frequency = DefaultFrequency
	}

	w := &Wave{Pin: pin, Order: make([]int, len(code))}
	pulses := make(map[float64]int)
	spaces := make(map[float64]int)
	for i, us := range code {
		index := spaces
		if i%2 == 0 {
			index = pulses
		}
		seg, ok := index[us]
		if !ok {
			seg = len(w.Segments)
			if i%2 == 0 {
				w.Segments = append(w.Segments, carrier(us, pin, frequency))
			} else {
				w.Segments = append(w.Segments, space(us))
			}
			index[us] = seg
		}
		w.Order[i] = seg
	}
	return w, nil
}

func space(us float64) []gpio.WaveStep {
	return []gpio.WaveStep{{Delay: uint32(math.Round(us))}}
}

// carrier builds the on/off cycles of a pulse. Each cycle ends on the
// rounded multiple of the cycle length, so rounding never accumulates.
func carrier(us float64, pin int, frequency float64) []gpio.WaveStep {
	mask := gpio.Mask(pin)
	cycle := 1000 / frequency
	cycles := int(math.Round(us / cycle))
	on := int64(math.Round(cycle / 2))

	steps := make([]gpio.WaveStep, 0, cycles*2)
	var offset int64
	for i := 0; i < cycles; i++ {
		target := int64(math.Round(float64(i+1) * cycle))
		offset += on
		off := max(target-offset, 0)
		offset += off
		steps = append(steps,
			gpio.WaveStep{On: mask, Delay: uint32(on)},
			gpio.WaveStep{Off: mask, Delay: uint32(off)},
		)
	}
	return steps
}
