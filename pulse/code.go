// Package pulse captures, normalizes and replays raw infrared codes.
//
// A code is the list of alternating pulse and space durations of one
// burst, in microseconds, starting with a pulse. Captured codes are
// framed from pin edges by a Listener, cross-checked and averaged into a
// canonical code by a recording Session, and compiled into a carrier
// modulated Wave for playback by a Transmitter.
package pulse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Code is a list of pulse and space durations in microseconds.
type Code []float64

// Len returns the number of durations.
func (c Code) Len() int { return len(c) }

// Duration returns the total length of the code in microseconds.
func (c Code) Duration() float64 {
	var total float64
	for _, d := range c {
		total += d
	}
	return total
}

// Rounded returns the code with every duration rounded to a whole
// microsecond.
func (c Code) Rounded() Code {
	out := make(Code, len(c))
	for i, d := range c {
		out[i] = math.Round(d)
	}
	return out
}

func (c Code) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// MarshalCode renders a code file: a flat JSON array of durations.
func MarshalCode(c Code) ([]byte, error) {
	if c == nil {
		c = Code{}
	}
	return json.Marshal(c)
}

// Validate checks that every duration is a finite number of
// microseconds a wave step can hold.
func (c Code) Validate() error {
	for i, us := range c {
		if math.IsNaN(us) || us < 0 || us > math.MaxUint32 {
			return fmt.Errorf("%w: %v at %d", ErrInvalidDuration, us, i)
		}
	}
	return nil
}

// MarshalCodes renders a multi-code file: a JSON array of code arrays.
func MarshalCodes(codes []Code) ([]byte, error) {
	if codes == nil {
		codes = []Code{}
	}
	return json.Marshal(codes)
}

// ParseCodes reads a code file. A flat array yields a single code, an
// array of arrays yields one code per element.
func ParseCodes(data []byte) ([]Code, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, configError("parse", ErrNotArray)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, configError("parse", fmt.Errorf("%w: %v", ErrNotArray, err))
	}
	if len(raw) == 0 {
		return nil, configError("parse", fmt.Errorf("%w: empty code file", ErrNoSamples))
	}

	if first := bytes.TrimSpace(raw[0]); len(first) > 0 && first[0] == '[' {
		var codes []Code
		if err := json.Unmarshal(data, &codes); err != nil {
			return nil, configError("parse", fmt.Errorf("%w: %v", ErrNotArray, err))
		}
		return codes, nil
	}

	var code Code
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, configError("parse", fmt.Errorf("%w: %v", ErrNotArray, err))
	}
	return []Code{code}, nil
}
