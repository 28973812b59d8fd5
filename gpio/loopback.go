package gpio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// leadGap separates injected bursts so the first edge of a burst never
// measures as part of the previous one.
const leadGap = 100000

const edgeBuffer = 1024

// LoopbackOptions configures a Loopback.
type LoopbackOptions struct {
	// Echo feeds every played wave back as demodulated edges on EchoPin.
	Echo    bool
	EchoPin int
	// Jitter is the relative standard deviation applied to echoed
	// durations, e.g. 0.03 for 3%.
	Jitter float64
	Seed   uint64
	// Realtime makes ChainWaves block for the duration of the wave.
	Realtime bool
	Logger   logrus.FieldLogger
}

// Loopback is an in-memory Driver. Edges are injected by the caller or
// produced by echoing played waves, which makes it possible to run the
// whole capture and replay pipeline without hardware.
type Loopback struct {
	opts LoopbackOptions
	log  logrus.FieldLogger

	mu       sync.Mutex
	rng      *rand.Rand
	watchers map[int]chan Edge
	glitch   map[int]time.Duration
	outputs  map[int]bool
	waves    map[WaveID][]WaveStep
	nextID   WaveID
	tick     uint32
	played   [][]WaveStep
	closed   bool
}

// NewLoopback creates a Loopback driver.
func NewLoopback(opts LoopbackOptions) *Loopback {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loopback{
		opts:     opts,
		log:      log,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		watchers: make(map[int]chan Edge),
		glitch:   make(map[int]time.Duration),
		outputs:  make(map[int]bool),
		waves:    make(map[WaveID][]WaveStep),
		tick:     1,
	}
}

func (l *Loopback) WatchEdges(pin int, glitch time.Duration) (<-chan Edge, error) {
	if err := ValidatePin(pin); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if _, ok := l.watchers[pin]; ok {
		return nil, fmt.Errorf("pin %d already watched", pin)
	}
	ch := make(chan Edge, edgeBuffer)
	l.watchers[pin] = ch
	l.glitch[pin] = glitch
	return ch, nil
}

func (l *Loopback) UnwatchEdges(pin int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.watchers[pin]
	if !ok {
		return nil
	}
	delete(l.watchers, pin)
	close(ch)
	return nil
}

// Watching reports whether edge alerts are armed on pin.
func (l *Loopback) Watching(pin int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.watchers[pin]
	return ok
}

// GlitchFilter returns the filter pin was armed with.
func (l *Loopback) GlitchFilter(pin int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.glitch[pin]
}

// InjectEdges delivers raw edges to the watcher of pin.
func (l *Loopback) InjectEdges(pin int, edges ...Edge) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range edges {
		e.Pin = pin
		l.deliver(e)
	}
}

// InjectCode emits a burst of alternating pulse and space durations in
// microseconds on pin, preceded by a gap longer than any code width.
func (l *Loopback) InjectCode(pin int, durations ...uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emit(pin, durations)
}

func (l *Loopback) PrepareOutput(pin int) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.outputs[pin] = true
	for id := range l.waves {
		delete(l.waves, id)
	}
	return nil
}

func (l *Loopback) CreateWave(steps []WaveStep) (WaveID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	id := l.nextID
	l.nextID++
	l.waves[id] = append([]WaveStep(nil), steps...)
	return id, nil
}

func (l *Loopback) ChainWaves(ctx context.Context, ids []WaveID) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	segments := make([][]WaveStep, 0, len(ids))
	var chained []WaveStep
	for _, id := range ids {
		steps, ok := l.waves[id]
		if !ok {
			l.mu.Unlock()
			return fmt.Errorf("unknown wave %d", id)
		}
		segments = append(segments, steps)
		chained = append(chained, steps...)
	}
	l.played = append(l.played, chained)
	if l.opts.Echo {
		l.emit(l.opts.EchoPin, l.demodulate(segments))
	}
	l.mu.Unlock()

	if !l.opts.Realtime {
		return nil
	}
	t := time.NewTimer(time.Duration(StepsDuration(chained)) * time.Microsecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loopback) DeleteWave(id WaveID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.waves[id]; !ok {
		return fmt.Errorf("unknown wave %d", id)
	}
	delete(l.waves, id)
	return nil
}

// Played returns the step sequences transmitted so far.
func (l *Loopback) Played() [][]WaveStep {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]WaveStep, len(l.played))
	copy(out, l.played)
	return out
}

// Waves returns the number of waves currently created.
func (l *Loopback) Waves() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waves)
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for pin, ch := range l.watchers {
		delete(l.watchers, pin)
		close(ch)
	}
	return nil
}

// demodulate turns chained segments into the mark and space durations an
// IR receiver would report. Adjacent segments of the same kind merge.
func (l *Loopback) demodulate(segments [][]WaveStep) []uint32 {
	var out []uint32
	lastMark := false
	for i, steps := range segments {
		mark := false
		for _, s := range steps {
			if s.On != 0 {
				mark = true
				break
			}
		}
		d := float64(StepsDuration(steps))
		if l.opts.Jitter > 0 {
			d *= 1 + l.opts.Jitter*l.rng.NormFloat64()
		}
		d = math.Max(1, math.Round(d))
		if i > 0 && mark == lastMark {
			out[len(out)-1] += uint32(d)
			continue
		}
		out = append(out, uint32(d))
		lastMark = mark
	}
	return out
}

// emit must be called with l.mu held.
func (l *Loopback) emit(pin int, durations []uint32) {
	l.tick += leadGap
	level := 0
	l.deliver(Edge{Pin: pin, Level: level, Tick: l.tick})
	for _, d := range durations {
		l.tick += d
		level ^= 1
		l.deliver(Edge{Pin: pin, Level: level, Tick: l.tick})
	}
}

// deliver must be called with l.mu held.
func (l *Loopback) deliver(e Edge) {
	ch, ok := l.watchers[e.Pin]
	if !ok {
		return
	}
	select {
	case ch <- e:
	default:
		l.log.Warnf("Edge buffer of pin %d full, dropping edge", e.Pin)
	}
}
