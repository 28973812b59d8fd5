package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/derktes/pi-ir/pulse"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
)

var (
	errCodeNotFound    = errors.New("code not found")
	errCodeExists      = errors.New("code already exists")
	errAlreadyNotified = errors.New("subscriber already registered")
)

// storedCode is a named code in the library.
type storedCode struct {
	ID        ksuid.KSUID `json:"id"`
	Name      string      `json:"name"`
	Code      pulse.Code  `json:"code"`
	Frequency float64     `json:"frequency,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

type codeListener struct {
	subscriber  string
	newCodeChan chan codeEvent
}

// codeDatabase keeps the code library in a pebble store and tells
// listeners about every change.
type codeDatabase struct {
	db  *pebble.DB
	log logrus.FieldLogger

	// writeMu makes the existence check and the write of a name atomic.
	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[string]codeListener
}

type codeCRUD interface {
	insert(name string, code pulse.Code, frequency float64) (storedCode, error)
	get(name string) (storedCode, error)
	list() ([]storedCode, error)
	remove(name string) error
}

type codeNotifier interface {
	notify(subscriber string) (<-chan codeEvent, error)
	unNotify(subscriber string) error
}

var (
	_ codeCRUD     = (*codeDatabase)(nil)
	_ codeNotifier = (*codeDatabase)(nil)
)

const codePrefix = "code/"

func codeKey(name string) []byte {
	return []byte(codePrefix + name)
}

func openDatabase(dir string, log logrus.FieldLogger) (*codeDatabase, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening code library: %w", err)
	}
	return &codeDatabase{db: db, log: log, listeners: make(map[string]codeListener)}, nil
}

func (db *codeDatabase) close() error {
	db.mu.Lock()
	for s, l := range db.listeners {
		close(l.newCodeChan)
		delete(db.listeners, s)
	}
	db.mu.Unlock()
	return db.db.Close()
}

func (db *codeDatabase) notify(subscriber string) (<-chan codeEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.listeners[subscriber]; ok {
		return nil, fmt.Errorf("%w: %s", errAlreadyNotified, subscriber)
	}
	l := codeListener{subscriber, make(chan codeEvent, 16)}
	db.listeners[subscriber] = l
	return l.newCodeChan, nil
}

func (db *codeDatabase) unNotify(subscriber string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.listeners[subscriber]
	if !ok {
		return fmt.Errorf("subscriber '%s' cannot be found", subscriber)
	}
	close(l.newCodeChan)
	delete(db.listeners, subscriber)
	return nil
}

func (db *codeDatabase) broadcast(event codeEvent) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, l := range db.listeners {
		select {
		case l.newCodeChan <- event:
		default:
			db.log.Warnf("Subscriber '%s' is not keeping up, dropping %s event", l.subscriber, event.Type)
		}
	}
}

func (db *codeDatabase) insert(name string, code pulse.Code, frequency float64) (storedCode, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if _, err := db.get(name); err == nil {
		return storedCode{}, fmt.Errorf("%w: '%s'", errCodeExists, name)
	} else if !errors.Is(err, errCodeNotFound) {
		return storedCode{}, err
	}

	sc := storedCode{
		ID:        ksuid.New(),
		Name:      name,
		Code:      code,
		Frequency: frequency,
		CreatedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(sc)
	if err != nil {
		return storedCode{}, err
	}
	if err := db.db.Set(codeKey(name), value, pebble.Sync); err != nil {
		return storedCode{}, err
	}
	db.log.Printf("Stored code '%s' with %d durations as %s", name, len(code), sc.ID)
	db.broadcast(codeEvent{Type: eventStored, Code: sc})
	return sc, nil
}

func (db *codeDatabase) get(name string) (storedCode, error) {
	value, closer, err := db.db.Get(codeKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return storedCode{}, fmt.Errorf("%w: '%s'", errCodeNotFound, name)
	}
	if err != nil {
		return storedCode{}, err
	}
	defer closer.Close()

	var sc storedCode
	if err := json.Unmarshal(value, &sc); err != nil {
		return storedCode{}, fmt.Errorf("decoding code '%s': %w", name, err)
	}
	return sc, nil
}

func (db *codeDatabase) list() ([]storedCode, error) {
	iter, err := db.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(codePrefix),
		UpperBound: []byte("code0"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	codes := make([]storedCode, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var sc storedCode
		if err := json.Unmarshal(iter.Value(), &sc); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", iter.Key(), err)
		}
		codes = append(codes, sc)
	}
	return codes, iter.Error()
}

func (db *codeDatabase) remove(name string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	sc, err := db.get(name)
	if err != nil {
		return err
	}
	if err := db.db.Delete(codeKey(name), pebble.Sync); err != nil {
		return err
	}
	db.log.Printf("Deleted code '%s'", name)
	db.broadcast(codeEvent{Type: eventDeleted, Code: sc})
	return nil
}
