package pulse

import (
	"sync"
	"time"

	"github.com/derktes/pi-ir/gpio"
	"github.com/sirupsen/logrus"
)

// initialTick makes the first edge after arming measure as a long gap,
// so it is never taken as part of a code.
const initialTick uint32 = 0xffffffff

// Listener frames the edges of one input pin into codes and fans them
// out to subscribers. The pin is armed while at least one subscription
// is open.
type Listener struct {
	src  gpio.EdgeWatcher
	pin  int
	opts ListenOptions
	log  logrus.FieldLogger

	// armMu serializes arming and disarming of the pin.
	armMu   sync.Mutex
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// Subscription receives the codes of a Listener until closed.
type Subscription struct {
	l     *Listener
	codes chan Code
	once  sync.Once
}

// Codes returns the channel codes are delivered on. It is closed when
// the subscription or the underlying edge stream ends.
func (s *Subscription) Codes() <-chan Code {
	return s.codes
}

// Close ends the subscription. Closing the last subscription disarms the
// pin and discards any partially framed code.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.l.unsubscribe(s)
	})
	return err
}

// Listen returns a Listener for pin. Nothing is armed until the first
// Subscribe.
func Listen(src gpio.EdgeWatcher, pin int, opts ListenOptions) (*Listener, error) {
	if err := validatePin("listen", pin); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Listener{
		src:  src,
		pin:  pin,
		opts: opts,
		log:  opts.Logger.WithField("pin", pin),
		subs: make(map[*Subscription]struct{}),
	}, nil
}

// Pin returns the input pin.
func (l *Listener) Pin() int { return l.pin }

// Subscribers returns the number of open subscriptions.
func (l *Listener) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Subscribe opens a subscription, arming the pin if it is the first.
func (l *Listener) Subscribe() (*Subscription, error) {
	l.armMu.Lock()
	defer l.armMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.subs) == 0 {
		edges, err := l.src.WatchEdges(l.pin, l.opts.MinWidth)
		if err != nil {
			return nil, err
		}
		l.stop = make(chan struct{})
		l.stopped = make(chan struct{})
		go l.run(edges, l.stop, l.stopped)
		l.log.Debug("Armed edge alerts")
	}
	s := &Subscription{l: l, codes: make(chan Code, l.opts.Buffer)}
	l.subs[s] = struct{}{}
	return s, nil
}

func (l *Listener) unsubscribe(s *Subscription) error {
	l.armMu.Lock()
	defer l.armMu.Unlock()
	l.mu.Lock()
	if _, ok := l.subs[s]; !ok {
		l.mu.Unlock()
		return nil
	}
	delete(l.subs, s)
	close(s.codes)
	if len(l.subs) > 0 {
		l.mu.Unlock()
		return nil
	}
	stop, stopped := l.stop, l.stopped
	l.stop, l.stopped = nil, nil
	l.mu.Unlock()

	// the loop may be blocked on l.mu in publish; release it first
	close(stop)
	<-stopped
	l.log.Debug("Disarmed edge alerts")
	return l.src.UnwatchEdges(l.pin)
}

// run frames edges until stop is closed or the edge stream ends.
func (l *Listener) run(edges <-chan gpio.Edge, stop, stopped chan struct{}) {
	defer close(stopped)

	maxWidth := uint32(l.opts.MaxWidth.Microseconds())
	lastTick := initialTick
	var code Code

	timer := time.NewTimer(l.opts.MaxWidth)
	stopTimer(timer)
	var flush <-chan time.Time

	emit := func() {
		if len(code) > 0 {
			l.publish(code)
		}
		code = nil
	}

	for {
		select {
		case <-stop:
			return
		case e, ok := <-edges:
			if !ok {
				l.closeAll()
				return
			}
			edge := gpio.TickDiff(lastTick, e.Tick)
			lastTick = e.Tick
			if edge == 0 {
				continue
			}
			stopTimer(timer)
			flush = nil
			if edge > maxWidth {
				// the gap is already longer than the silence timeout
				emit()
				continue
			}
			code = append(code, float64(edge))
			timer.Reset(l.opts.MaxWidth)
			flush = timer.C
		case <-flush:
			flush = nil
			emit()
		}
	}
}

func (l *Listener) publish(code Code) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for s := range l.subs {
		c := make(Code, len(code))
		copy(c, code)
		select {
		case s.codes <- c:
		default:
			l.log.Warn("Subscriber is not keeping up, dropping code")
		}
	}
}

// closeAll ends every subscription after the edge stream went away.
func (l *Listener) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for s := range l.subs {
		delete(l.subs, s)
		close(s.codes)
	}
	l.log.Warn("Edge stream closed")
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// Hub shares one Listener per pin, so every consumer of a pin reads
// from the same framer.
type Hub struct {
	src  gpio.EdgeWatcher
	opts ListenOptions

	mu        sync.Mutex
	listeners map[int]*Listener
}

// NewHub creates a Hub whose listeners use opts.
func NewHub(src gpio.EdgeWatcher, opts ListenOptions) *Hub {
	return &Hub{src: src, opts: opts, listeners: make(map[int]*Listener)}
}

// Listener returns the shared Listener of pin.
func (h *Hub) Listener(pin int) (*Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.listeners[pin]; ok {
		return l, nil
	}
	l, err := Listen(h.src, pin, h.opts)
	if err != nil {
		return nil, err
	}
	h.listeners[pin] = l
	return l, nil
}
