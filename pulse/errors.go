package pulse

import (
	"errors"
	"fmt"

	"github.com/derktes/pi-ir/gpio"
)

var (
	// ErrToleranceExceeded means durations do not sit near integer
	// multiples of the inferred unit, or sample units disagree.
	ErrToleranceExceeded = errors.New("exceeds tolerance")
	// ErrInconsistentSamples means samples quantize to different codes.
	ErrInconsistentSamples = errors.New("not same")
	// ErrTooShort rejects a captured code not longer than MinLength.
	ErrTooShort = errors.New("too short code")
	// ErrTooManyRejects ends a recording after MaxRejects rejections.
	ErrTooManyRejects = errors.New("too many rejected codes")

	ErrInvalidCodeLength = errors.New("code length must be odd")
	ErrInvalidDuration   = errors.New("duration out of range")
	ErrInvalidPin        = gpio.ErrInvalidPin
	ErrNoSamples         = errors.New("no codes to average")
	ErrNotArray          = errors.New("code must be an array")
)

// ConfigError reports invalid arguments. It is never worth retrying.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is, or wraps, a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func configError(op string, err error) error {
	return &ConfigError{Op: op, Err: err}
}

func validatePin(op string, pin int) error {
	if err := gpio.ValidatePin(pin); err != nil {
		return configError(op, err)
	}
	return nil
}
