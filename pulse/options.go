package pulse

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults applied to zero option fields.
const (
	DefaultTolerance = 0.15
	DefaultConfirm   = 3
	DefaultMinLength = 16
	DefaultMaxWidth  = 15 * time.Millisecond
	DefaultMinWidth  = 100 * time.Microsecond
	DefaultFrequency = 38.0 // kHz
	DefaultInterval  = 130 * time.Millisecond
)

// AverageOptions configures Average.
type AverageOptions struct {
	// Tolerance is the accepted deviation from an integer multiple of
	// the unit, as a fraction. Default 0.15.
	Tolerance float64 `yaml:"tolerance"`
}

func (o AverageOptions) withDefaults() AverageOptions {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	return o
}

// ListenOptions configures a Listener.
type ListenOptions struct {
	// MaxWidth is the longest pulse or space that belongs to a code. The
	// same amount of silence ends a code. Default 15ms.
	MaxWidth time.Duration `yaml:"max_width"`
	// MinWidth is the glitch filter handed to the hardware. Default 0.1ms.
	MinWidth time.Duration `yaml:"min_width"`
	// Buffer is the number of codes queued per subscriber. Default 16.
	Buffer int                `yaml:"-"`
	Logger logrus.FieldLogger `yaml:"-"`
}

func (o ListenOptions) withDefaults() ListenOptions {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MinWidth <= 0 {
		o.MinWidth = DefaultMinWidth
	}
	if o.Buffer <= 0 {
		o.Buffer = 16
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// RecordOptions configures a recording Session.
type RecordOptions struct {
	Average AverageOptions `yaml:",inline"`
	Listen  ListenOptions  `yaml:",inline"`
	// Confirm is how many consistent codes are required. Default 3.
	Confirm int `yaml:"confirm"`
	// MinLength rejects codes with this many durations or fewer. Default 16.
	MinLength int `yaml:"min_length"`
	// MaxRejects ends the recording with ErrTooManyRejects once this
	// many codes were rejected. Zero waits forever.
	MaxRejects int `yaml:"max_rejects"`
	// OnSample is called with the outcome of every offered code.
	OnSample func(SampleResult) `yaml:"-"`
	Logger   logrus.FieldLogger `yaml:"-"`
}

func (o RecordOptions) withDefaults() RecordOptions {
	o.Average = o.Average.withDefaults()
	if o.Confirm <= 0 {
		o.Confirm = DefaultConfirm
	}
	if o.MinLength <= 0 {
		o.MinLength = DefaultMinLength
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Listen.Logger == nil {
		o.Listen.Logger = o.Logger
	}
	return o
}

// SendOptions configures Send.
type SendOptions struct {
	// Frequency is the sub-carrier frequency in kHz. Default 38.
	Frequency float64 `yaml:"frequency"`
	// Interval is the minimum time from the start of one code to the
	// next. Default 130ms.
	Interval time.Duration `yaml:"interval"`
	// Concurrent runs every code as its own paced task. Playback is
	// still serialized by the Transmitter.
	Concurrent bool               `yaml:"concurrent"`
	Logger     logrus.FieldLogger `yaml:"-"`
}

func (o SendOptions) withDefaults() SendOptions {
	if o.Frequency <= 0 {
		o.Frequency = DefaultFrequency
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}
