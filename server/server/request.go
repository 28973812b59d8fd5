package server

import "github.com/derktes/pi-ir/pulse"

// storeCodeRequest adds a code to the library. It is also what the
// collector publishes after a recording.
type storeCodeRequest struct {
	Name      string     `json:"name"`
	Code      pulse.Code `json:"code"`
	Frequency float64    `json:"frequency,omitempty"`
}

type averageRequest struct {
	Codes []pulse.Code `json:"codes"`
	// Tolerance as a fraction, 0 for the configured value.
	Tolerance float64 `json:"tolerance,omitempty"`
}

type recordRequest struct {
	Name       string  `json:"name"`
	Pin        *int    `json:"pin,omitempty"`
	Confirm    int     `json:"confirm,omitempty"`
	Tolerance  float64 `json:"tolerance,omitempty"`
	MinLength  int     `json:"minLength,omitempty"`
	MaxRejects int     `json:"maxRejects,omitempty"`
	TimeoutMs  int     `json:"timeoutMs,omitempty"`
	Frequency  float64 `json:"frequency,omitempty"`
}

type sendRequest struct {
	Pin        *int    `json:"pin,omitempty"`
	Frequency  float64 `json:"frequency,omitempty"`
	IntervalMs int     `json:"intervalMs,omitempty"`
	// Repeat sends the code this many times, paced by the interval.
	Repeat int `json:"repeat,omitempty"`
}
