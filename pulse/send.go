package pulse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/derktes/pi-ir/gpio"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Transmitter plays waves on one output pin, one at a time.
type Transmitter struct {
	player gpio.WavePlayer
	pin    int
	log    logrus.FieldLogger

	mu sync.Mutex
}

// NewTransmitter returns a Transmitter for pin.
func NewTransmitter(player gpio.WavePlayer, pin int, log logrus.FieldLogger) (*Transmitter, error) {
	if err := validatePin("send", pin); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transmitter{player: player, pin: pin, log: log.WithField("pin", pin)}, nil
}

// Play transmits w as one chained waveform and releases every created
// segment afterwards.
func (t *Transmitter) Play(ctx context.Context, w *Wave) error {
	_, err := t.play(ctx, w)
	return err
}

// play returns how long the pin was held, not counting the wait for it.
func (t *Transmitter) play(ctx context.Context, w *Wave) (elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()

	if err := t.player.PrepareOutput(t.pin); err != nil {
		return 0, fmt.Errorf("preparing output: %w", err)
	}

	ids := make([]gpio.WaveID, 0, len(w.Segments))
	defer func() {
		for _, id := range ids {
			if derr := t.player.DeleteWave(id); derr != nil {
				err = errors.Join(err, fmt.Errorf("deleting wave %d: %w", id, derr))
			}
		}
		elapsed = time.Since(start)
	}()
	for _, steps := range w.Segments {
		id, err := t.player.CreateWave(steps)
		if err != nil {
			return 0, fmt.Errorf("creating wave: %w", err)
		}
		ids = append(ids, id)
	}

	chain := make([]gpio.WaveID, len(w.Order))
	for i, seg := range w.Order {
		chain[i] = ids[seg]
	}
	if err := t.player.ChainWaves(ctx, chain); err != nil {
		return 0, fmt.Errorf("playing wave: %w", err)
	}
	return 0, nil
}

// Send encodes and plays codes. A single code is played once. With
// several codes, each one is followed by a pause that brings its share
// of time up to opts.Interval.
func (t *Transmitter) Send(ctx context.Context, codes []Code, opts SendOptions) error {
	opts = opts.withDefaults()
	if len(codes) == 0 {
		return configError("send", ErrNoSamples)
	}

	waves := make([]*Wave, len(codes))
	for i, code := range codes {
		w, err := Encode(code, t.pin, opts.Frequency)
		if err != nil {
			return fmt.Errorf("code %d: %w", i, err)
		}
		waves[i] = w
	}

	if len(waves) == 1 {
		return t.Play(ctx, waves[0])
	}
	if opts.Concurrent {
		g, ctx := errgroup.WithContext(ctx)
		for _, w := range waves {
			w := w
			g.Go(func() error { return t.paced(ctx, w, opts.Interval) })
		}
		return g.Wait()
	}
	for _, w := range waves {
		if err := t.paced(ctx, w, opts.Interval); err != nil {
			return err
		}
	}
	return nil
}

// paced plays w and then waits out the rest of interval.
func (t *Transmitter) paced(ctx context.Context, w *Wave, interval time.Duration) error {
	elapsed, err := t.play(ctx, w)
	if err != nil {
		return err
	}
	delay := PaceDelay(interval, elapsed)
	t.log.Debugf("Sent %d us code in %v, waiting %v", w.Duration(), elapsed, delay)
	if delay == 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PaceDelay returns how long to wait after a playback that took elapsed
// so that interval has passed. It is never negative.
func PaceDelay(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

// Send plays codes on pin of player. See Transmitter.Send.
func Send(ctx context.Context, player gpio.WavePlayer, pin int, codes []Code, opts SendOptions) error {
	t, err := NewTransmitter(player, pin, opts.Logger)
	if err != nil {
		return err
	}
	return t.Send(ctx, codes, opts)
}
