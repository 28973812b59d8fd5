package gpio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// DefaultBaud is the baud rate the bridge firmware runs at.
const DefaultBaud = 115200

// command is one JSON line sent to the bridge.
type command struct {
	Op     string      `json:"op"`
	Pin    int         `json:"pin"`
	Glitch int64       `json:"glitch,omitempty"`
	ID     WaveID      `json:"id"`
	Steps  [][3]uint64 `json:"steps,omitempty"`
	IDs    []WaveID    `json:"ids,omitempty"`
}

// event is one JSON line received from the bridge.
type event struct {
	Ev    string `json:"ev"`
	Pin   int    `json:"pin"`
	Level int    `json:"level"`
	Tick  uint32 `json:"tick"`
	Msg   string `json:"msg"`
}

// SerialDriver talks to a microcontroller bridge over a serial port. The
// bridge owns the pins: it timestamps edges with its microsecond counter
// and plays chained waves, exchanging one JSON object per line.
type SerialDriver struct {
	port io.ReadWriteCloser
	log  logrus.FieldLogger

	writeMu sync.Mutex
	chainMu sync.Mutex
	done    chan error

	mu       sync.Mutex
	watchers map[int]chan Edge
	nextID   WaveID

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenSerial opens the serial device name at baud and starts reading
// bridge events.
func OpenSerial(name string, baud int, log logrus.FieldLogger) (*SerialDriver, error) {
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("checking serial port: %w", err)
	}
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.Infof("Opened serial port '%s' at baud rate %d", name, baud)
	return NewSerialDriver(port, log), nil
}

// NewSerialDriver runs the bridge protocol over an already open port.
func NewSerialDriver(port io.ReadWriteCloser, log logrus.FieldLogger) *SerialDriver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &SerialDriver{
		port:     port,
		log:      log,
		done:     make(chan error, 1),
		watchers: make(map[int]chan Edge),
		nextID:   1,
		closed:   make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func (d *SerialDriver) WatchEdges(pin int, glitch time.Duration) (<-chan Edge, error) {
	if err := ValidatePin(pin); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if _, ok := d.watchers[pin]; ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("pin %d already watched", pin)
	}
	ch := make(chan Edge, edgeBuffer)
	d.watchers[pin] = ch
	d.mu.Unlock()

	err := d.send(command{Op: "watch", Pin: pin, Glitch: glitch.Microseconds()})
	if err != nil {
		d.mu.Lock()
		delete(d.watchers, pin)
		d.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

func (d *SerialDriver) UnwatchEdges(pin int) error {
	d.mu.Lock()
	ch, ok := d.watchers[pin]
	if ok {
		delete(d.watchers, pin)
		close(ch)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return d.send(command{Op: "unwatch", Pin: pin})
}

func (d *SerialDriver) PrepareOutput(pin int) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	return d.send(command{Op: "output", Pin: pin})
}

func (d *SerialDriver) CreateWave(steps []WaveStep) (WaveID, error) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.mu.Unlock()

	encoded := make([][3]uint64, len(steps))
	for i, s := range steps {
		encoded[i] = [3]uint64{s.On, s.Off, uint64(s.Delay)}
	}
	if err := d.send(command{Op: "create", ID: id, Steps: encoded}); err != nil {
		return 0, err
	}
	return id, nil
}

func (d *SerialDriver) ChainWaves(ctx context.Context, ids []WaveID) error {
	d.chainMu.Lock()
	defer d.chainMu.Unlock()

	// drop a completion left over from a cancelled chain
	select {
	case <-d.done:
	default:
	}
	if err := d.send(command{Op: "chain", IDs: ids}); err != nil {
		return err
	}
	select {
	case err := <-d.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closed:
		return ErrClosed
	}
}

func (d *SerialDriver) DeleteWave(id WaveID) error {
	return d.send(command{Op: "delete", ID: id})
}

func (d *SerialDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.port.Close()
	})
	return err
}

func (d *SerialDriver) send(c command) error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	line, err := json.Marshal(c)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := d.port.Write(line); err != nil {
		return fmt.Errorf("writing %s command: %w", c.Op, err)
	}
	return nil
}

func (d *SerialDriver) readLoop() {
	defer d.shutdown()
	lineScanner := bufio.NewScanner(d.port)
	for lineScanner.Scan() {
		var ev event
		if err := json.Unmarshal(lineScanner.Bytes(), &ev); err != nil {
			d.log.Warnf("Error unmarshaling bridge line %q: %v", lineScanner.Text(), err)
			continue
		}
		switch ev.Ev {
		case "edge":
			d.deliver(Edge{Pin: ev.Pin, Level: ev.Level, Tick: ev.Tick})
		case "done":
			d.complete(nil)
		case "error":
			d.log.Warnf("Bridge error: %s", ev.Msg)
			d.complete(errors.New(ev.Msg))
		default:
			d.log.Debugf("Ignoring bridge event %q", ev.Ev)
		}
	}
	if err := lineScanner.Err(); err != nil {
		d.log.Errorf("Reading serial port: %v", err)
	}
}

func (d *SerialDriver) deliver(e Edge) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.watchers[e.Pin]
	if !ok {
		return
	}
	select {
	case ch <- e:
	default:
		d.log.Warnf("Edge buffer of pin %d full, dropping edge", e.Pin)
	}
}

func (d *SerialDriver) complete(err error) {
	select {
	case d.done <- err:
	default:
	}
}

func (d *SerialDriver) shutdown() {
	close(d.closed)
	d.mu.Lock()
	defer d.mu.Unlock()
	for pin, ch := range d.watchers {
		delete(d.watchers, pin)
		close(ch)
	}
}
