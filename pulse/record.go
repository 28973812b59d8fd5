package pulse

import (
	"context"
	"errors"
	"fmt"

	"github.com/derktes/pi-ir/gpio"
	"github.com/sirupsen/logrus"
)

// SampleStatus is the outcome of offering a code to a Session.
type SampleStatus int

const (
	SampleAccepted SampleStatus = iota
	SampleTooShort
	SampleToleranceExceeded
	SampleInconsistent
	SampleIgnored
)

// ErrSessionDone is returned for codes offered to a complete session.
var ErrSessionDone = errors.New("session already complete")

func (s SampleStatus) String() string {
	switch s {
	case SampleAccepted:
		return "accepted"
	case SampleTooShort:
		return "too_short"
	case SampleToleranceExceeded:
		return "tolerance_exceeded"
	case SampleInconsistent:
		return "inconsistent"
	case SampleIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// SampleResult describes what a Session did with one code.
type SampleResult struct {
	Status SampleStatus
	// Err is nil for accepted codes and the rejection reason otherwise.
	Err  error
	Code Code
	// Accepted is the number of accepted codes after this one.
	Accepted int
}

// Session collects captures of one code until enough of them agree.
// It is not safe for concurrent use.
type Session struct {
	opts     RecordOptions
	accepted []Code
	rejected int
}

// NewSession starts an empty recording session.
func NewSession(opts RecordOptions) *Session {
	return &Session{opts: opts.withDefaults()}
}

// Offer checks code against the codes accepted so far and keeps it if it
// is long enough and averages with them. A rejected code never changes
// the accepted set.
func (s *Session) Offer(code Code) SampleResult {
	res := SampleResult{Code: code}
	switch {
	case s.Done():
		res.Status, res.Err = SampleIgnored, ErrSessionDone
	case len(code) <= s.opts.MinLength:
		res.Status, res.Err = SampleTooShort, ErrTooShort
	default:
		candidates := append([]Code{code}, s.accepted...)
		_, err := Average(candidates, s.opts.Average)
		switch {
		case err == nil:
			s.accepted = append(s.accepted, code)
		case errors.Is(err, ErrInconsistentSamples):
			res.Status, res.Err = SampleInconsistent, err
		default:
			res.Status, res.Err = SampleToleranceExceeded, err
		}
	}
	if res.Err != nil && res.Status != SampleIgnored {
		s.rejected++
	}
	res.Accepted = len(s.accepted)
	return res
}

// Done reports whether Confirm codes were accepted.
func (s *Session) Done() bool {
	return len(s.accepted) >= s.opts.Confirm
}

// Accepted returns the number of accepted codes.
func (s *Session) Accepted() int { return len(s.accepted) }

// Rejected returns the number of rejected codes.
func (s *Session) Rejected() int { return s.rejected }

// Result averages all accepted codes into the canonical code.
func (s *Session) Result() (Code, error) {
	if !s.Done() {
		return nil, fmt.Errorf("%d of %d codes accepted", len(s.accepted), s.opts.Confirm)
	}
	return Average(s.accepted, s.opts.Average)
}

// RecordFrom runs a Session over codes until it is done, the channel
// closes, ctx ends or MaxRejects is reached.
func RecordFrom(ctx context.Context, codes <-chan Code, opts RecordOptions) (Code, error) {
	opts = opts.withDefaults()
	log := opts.Logger
	s := NewSession(opts)

	log.Infof("Waiting for a code (%d/%d)...", 1, opts.Confirm)
	for !s.Done() {
		var code Code
		var ok bool
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case code, ok = <-codes:
			if !ok {
				return nil, fmt.Errorf("code stream closed after %d of %d codes", s.Accepted(), opts.Confirm)
			}
		}

		res := s.Offer(code)
		if opts.OnSample != nil {
			opts.OnSample(res)
		}
		if res.Err != nil {
			log.WithFields(logrus.Fields{"length": len(code), "status": res.Status}).Warn(res.Err)
			if opts.MaxRejects > 0 && s.Rejected() >= opts.MaxRejects {
				return nil, fmt.Errorf("%w: %d", ErrTooManyRejects, s.Rejected())
			}
		}
		if !s.Done() {
			log.Infof("Confirm (%d/%d)...", s.Accepted()+1, opts.Confirm)
		}
	}
	return s.Result()
}

// Record listens on pin of src and returns the canonical code once
// opts.Confirm captures agree.
func Record(ctx context.Context, src gpio.EdgeWatcher, pin int, opts RecordOptions) (Code, error) {
	if err := validatePin("record", pin); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	l, err := Listen(src, pin, opts.Listen)
	if err != nil {
		return nil, err
	}
	sub, err := l.Subscribe()
	if err != nil {
		return nil, err
	}
	defer sub.Close()
	return RecordFrom(ctx, sub.Codes(), opts)
}
