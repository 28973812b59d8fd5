package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/derktes/pi-ir/pulse"
	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// statusFor maps an error to the HTTP status reported for it.
func statusFor(err error) int {
	switch {
	case pulse.IsConfigError(err):
		return http.StatusBadRequest
	case errors.Is(err, pulse.ErrToleranceExceeded),
		errors.Is(err, pulse.ErrInconsistentSamples),
		errors.Is(err, pulse.ErrTooManyRejects):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errCodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, errCodeExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Errorf("Request failed: %v", err)
	}
	sendError(w, err.Error(), status)
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &pulse.ConfigError{Op: "decode request", Err: err}
	}
	return nil
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/\x00") {
		return &pulse.ConfigError{Op: "store", Err: fmt.Errorf("invalid code name %q", name)}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.db.list()
	if err != nil {
		s.fail(w, err)
		return
	}
	sendSuccess(w, codes)
}

func (s *Server) storeCode(name string, code pulse.Code, frequency float64) (storedCode, error) {
	if err := validName(name); err != nil {
		return storedCode{}, err
	}
	if len(code)%2 == 0 {
		return storedCode{}, &pulse.ConfigError{Op: "store", Err: pulse.ErrInvalidCodeLength}
	}
	if err := code.Validate(); err != nil {
		return storedCode{}, &pulse.ConfigError{Op: "store", Err: err}
	}
	sc, err := s.db.insert(name, code, frequency)
	if err != nil {
		return storedCode{}, err
	}
	s.metrics.codesStored.Inc()
	return sc, nil
}

func (s *Server) handleStoreCode(w http.ResponseWriter, r *http.Request) {
	var req storeCodeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sc, err := s.storeCode(req.Name, req.Code, req.Frequency)
	if err != nil {
		s.fail(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	sc, err := s.db.get(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	sendSuccess(w, sc)
}

func (s *Server) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
	if err := s.db.remove(chi.URLParam(r, "name")); err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.codesStored.Dec()
	sendSuccess(w, map[string]string{"message": "Code deleted"})
}

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	sc, err := s.db.get(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	opts := s.cfg.Send.Options
	opts.Logger = s.log
	if sc.Frequency > 0 {
		opts.Frequency = sc.Frequency
	}
	if req.Frequency > 0 {
		opts.Frequency = req.Frequency
	}
	if req.IntervalMs > 0 {
		opts.Interval = time.Duration(req.IntervalMs) * time.Millisecond
	}
	repeat := max(req.Repeat, 1)
	codes := make([]pulse.Code, repeat)
	for i := range codes {
		codes[i] = sc.Code
	}

	start := time.Now()
	if req.Pin != nil && *req.Pin != s.cfg.Send.Pin {
		err = pulse.Send(r.Context(), s.driver, *req.Pin, codes, opts)
	} else {
		err = s.tx.Send(r.Context(), codes, opts)
	}
	s.metrics.recordTransmission(err, time.Since(start))
	if err != nil {
		s.fail(w, err)
		return
	}
	sendSuccess(w, map[string]interface{}{"name": sc.Name, "sent": repeat})
}

func (s *Server) handleAverage(w http.ResponseWriter, r *http.Request) {
	var req averageRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	opts := s.cfg.Record.Options.Average
	if req.Tolerance > 0 {
		opts.Tolerance = req.Tolerance
	}
	code, err := pulse.Average(req.Codes, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	sendSuccess(w, code)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := validName(req.Name); err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.db.get(req.Name); err == nil {
		s.fail(w, fmt.Errorf("%w: '%s'", errCodeExists, req.Name))
		return
	}

	pin := s.cfg.Record.Pin
	if req.Pin != nil {
		pin = *req.Pin
	}
	opts := s.cfg.Record.Options
	opts.Logger = s.log.WithField("record", req.Name)
	opts.OnSample = s.metrics.recordSample
	if req.Confirm > 0 {
		opts.Confirm = req.Confirm
	}
	if req.Tolerance > 0 {
		opts.Average.Tolerance = req.Tolerance
	}
	if req.MinLength > 0 {
		opts.MinLength = req.MinLength
	}
	if req.MaxRejects > 0 {
		opts.MaxRejects = req.MaxRejects
	}

	ctx := r.Context()
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	code, err := s.record(ctx, pin, opts)
	s.metrics.recordRecording(err)
	if err != nil {
		s.fail(w, err)
		return
	}

	frequency := req.Frequency
	if frequency <= 0 {
		frequency = s.cfg.Send.Options.Frequency
	}
	sc, err := s.storeCode(req.Name, code, frequency)
	if err != nil {
		s.fail(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, sc)
}

// record runs a session on the shared listener of pin, so recordings
// and raw code streams can watch the same pin at once.
func (s *Server) record(ctx context.Context, pin int, opts pulse.RecordOptions) (pulse.Code, error) {
	l, err := s.hub.Listener(pin)
	if err != nil {
		return nil, err
	}
	sub, err := l.Subscribe()
	if err != nil {
		return nil, err
	}
	defer sub.Close()
	return pulse.RecordFrom(ctx, sub.Codes(), opts)
}

func (s *Server) acceptWebsocket(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	var opts *websocket.AcceptOptions
	if len(s.cfg.Server.OriginPatterns) > 0 {
		opts = &websocket.AcceptOptions{OriginPatterns: s.cfg.Server.OriginPatterns}
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.log.Print(err)
		return nil, err
	}
	s.log.Printf("Accepted websocket request from %s", r.RemoteAddr)
	return c, nil
}

// handleListen streams every raw code captured on the record pin, or on
// the pin given as ?pin=, until the client goes away.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	pin := s.cfg.Record.Pin
	if p := r.URL.Query().Get("pin"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			sendError(w, fmt.Sprintf("invalid pin %q", p), http.StatusBadRequest)
			return
		}
		pin = n
	}
	l, err := s.hub.Listener(pin)
	if err != nil {
		s.fail(w, err)
		return
	}

	c, err := s.acceptWebsocket(w, r)
	if err != nil {
		return
	}
	defer s.log.Printf("Closing websocket connection for %s", r.RemoteAddr)
	defer c.Close(websocket.StatusNormalClosure, "Handler exits")

	sub, err := l.Subscribe()
	if err != nil {
		c.Close(websocket.StatusInternalError, err.Error())
		return
	}
	defer sub.Close()
	s.metrics.listenSubscribers.Inc()
	defer s.metrics.listenSubscribers.Dec()

	ctx := c.CloseRead(r.Context())
	for {
		select {
		case code, ok := <-sub.Codes():
			if !ok {
				c.Close(websocket.StatusGoingAway, "Edge stream closed")
				return
			}
			if err := writeEvent(ctx, c, rawCodeEvent{Pin: pin, Code: code}); err != nil {
				s.log.Print(err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleCodeStream pushes library changes to the client.
func (s *Server) handleCodeStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.acceptWebsocket(w, r)
	if err != nil {
		return
	}
	defer s.log.Printf("Closing websocket connection for %s", r.RemoteAddr)
	defer c.Close(websocket.StatusNormalClosure, "Handler exits")

	subscriber := ksuid.New().String()
	var notifier codeNotifier = s.db
	onNewCode, err := notifier.notify(subscriber)
	if err != nil {
		c.Close(websocket.StatusInternalError, "Already subscribed")
		return
	}
	defer func() {
		if err := notifier.unNotify(subscriber); err != nil {
			s.log.Debug(err)
		}
	}()

	ctx := c.CloseRead(r.Context())
	for {
		select {
		case event, ok := <-onNewCode:
			if !ok {
				c.Close(websocket.StatusGoingAway, "Server closing")
				return
			}
			if err := writeEvent(ctx, c, event); err != nil {
				s.log.Print(err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(ctx context.Context, c *websocket.Conn, v interface{}) error {
	ctx, cancelFunc := context.WithTimeout(ctx, 1*time.Second)
	defer cancelFunc()
	return wsjson.Write(ctx, c, v)
}
