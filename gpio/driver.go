// Package gpio describes the pin-level hardware the IR pipeline talks to:
// edge alerts on an input pin and chained waveform playback on an output
// pin. Drivers are provided for a serial-attached microcontroller bridge
// and for an in-memory loopback.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Pin number range accepted by every driver.
const (
	MinPin = 0
	MaxPin = 53
)

// ErrInvalidPin is returned for pin numbers outside MinPin..MaxPin.
var ErrInvalidPin = errors.New("invalid GPIO number")

// ErrClosed is returned by a driver after Close.
var ErrClosed = errors.New("driver closed")

// Edge is a level transition reported by the hardware.
// Tick is a free running microsecond counter that wraps at 32 bits.
type Edge struct {
	Pin   int    `json:"pin"`
	Level int    `json:"level"`
	Tick  uint32 `json:"tick"`
}

// WaveStep is one timed instruction of a waveform. On and Off are pin
// bit masks to assert and deassert, Delay is how long to hold in
// microseconds.
type WaveStep struct {
	On    uint64
	Off   uint64
	Delay uint32
}

// WaveID identifies a waveform created on a driver.
type WaveID int

// EdgeWatcher delivers edges of an input pin.
type EdgeWatcher interface {
	// WatchEdges arms edge alerts on pin. Level changes shorter than
	// glitch are filtered by the hardware.
	WatchEdges(pin int, glitch time.Duration) (<-chan Edge, error)
	// UnwatchEdges disarms pin and closes its edge channel.
	UnwatchEdges(pin int) error
}

// WavePlayer plays chained waveforms on an output pin.
type WavePlayer interface {
	// PrepareOutput switches pin to output, drives it low and clears
	// any previously created waves.
	PrepareOutput(pin int) error
	CreateWave(steps []WaveStep) (WaveID, error)
	// ChainWaves transmits ids back to back and blocks until the
	// transmission completes.
	ChainWaves(ctx context.Context, ids []WaveID) error
	DeleteWave(id WaveID) error
}

// Driver is the full hardware collaborator.
type Driver interface {
	EdgeWatcher
	WavePlayer
	io.Closer
}

// ValidatePin checks pin against MinPin..MaxPin.
func ValidatePin(pin int) error {
	if pin < MinPin || pin > MaxPin {
		return fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	return nil
}

// TickDiff returns the number of microseconds from start to end,
// handling counter wrap-around.
func TickDiff(start, end uint32) uint32 {
	return end - start
}

// Mask returns the bit mask of pin as used in WaveStep.
func Mask(pin int) uint64 {
	return 1 << uint(pin)
}

// StepsDuration sums the delays of steps in microseconds.
func StepsDuration(steps []WaveStep) uint64 {
	var total uint64
	for _, s := range steps {
		total += uint64(s.Delay)
	}
	return total
}
