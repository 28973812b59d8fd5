package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/derktes/pi-ir/config"
	"github.com/derktes/pi-ir/gpio"
	"github.com/derktes/pi-ir/pulse"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// Server exposes recording, sending and the code library over HTTP.
type Server struct {
	cfg     *config.Config
	log     logrus.FieldLogger
	driver  gpio.Driver
	hub     *pulse.Hub
	tx      *pulse.Transmitter
	db      *codeDatabase
	metrics *metrics
}

// New opens the code library in cfg.Server.DataDir and serves codes
// through driver.
func New(cfg *config.Config, driver gpio.Driver, log logrus.FieldLogger) (*Server, error) {
	if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := openDatabase(cfg.Server.DataDir, log)
	if err != nil {
		return nil, err
	}

	listenOpts := cfg.Record.Options.Listen
	listenOpts.Logger = log
	tx, err := pulse.NewTransmitter(driver, cfg.Send.Pin, log)
	if err != nil {
		db.close()
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		driver:  driver,
		hub:     pulse.NewHub(driver, listenOpts),
		tx:      tx,
		db:      db,
		metrics: newMetrics(),
	}
	codes, err := db.list()
	if err != nil {
		db.close()
		return nil, err
	}
	s.metrics.codesStored.Set(float64(len(codes)))
	return s, nil
}

// Close closes the code library. The driver belongs to the caller.
func (s *Server) Close() error {
	return s.db.close()
}

// Router returns the HTTP handler of the API.
func (s *Server) Router() http.Handler {
	m := s.metrics
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", m.handler())
	r.Get("/health", m.instrumentHandler("GET", "/health", s.handleHealth))

	r.Get("/listen", s.handleListen)
	r.Post("/average", m.instrumentHandler("POST", "/average", s.handleAverage))
	r.Post("/record", m.instrumentHandler("POST", "/record", s.handleRecord))

	r.Route("/codes", func(r chi.Router) {
		r.Get("/", m.instrumentHandler("GET", "/codes", s.handleListCodes))
		r.Post("/", m.instrumentHandler("POST", "/codes", s.handleStoreCode))
		r.Get("/stream", s.handleCodeStream)
		r.Get("/{name}", m.instrumentHandler("GET", "/codes/{name}", s.handleGetCode))
		r.Delete("/{name}", m.instrumentHandler("DELETE", "/codes/{name}", s.handleDeleteCode))
		r.Post("/{name}/send", m.instrumentHandler("POST", "/codes/{name}/send", s.handleSendCode))
	})
	return r
}

// Start serves the API until ctx is cancelled, then shuts down
// gracefully.
func Start(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	driver, err := cfg.OpenDriver(log)
	if err != nil {
		return err
	}
	defer driver.Close()

	s, err := New(cfg, driver, log)
	if err != nil {
		return err
	}
	defer s.Close()

	addr := net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port))
	irServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	irServer.RegisterOnShutdown(func() {
		log.Print("Shutting down server")
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := irServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Shutdown: %v", err)
		}
	}()

	log.Printf("Server started on %s", addr)
	log.Printf("Metrics available at: http://%s/metrics", addr)
	if err := irServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
