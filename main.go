package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Animeshkr9044/pair-programming-prototype/config"
	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/Animeshkr9044/pair-programming-prototype/handlers/api/autocomplete"
	"github.com/Animeshkr9044/pair-programming-prototype/handlers/api/rooms"
	"github.com/Animeshkr9044/pair-programming-prototype/handlers/websocket"
	"github.com/Animeshkr9044/pair-programming-prototype/metrics"
	"github.com/Animeshkr9044/pair-programming-prototype/registry"
	"github.com/Animeshkr9044/pair-programming-prototype/session"
	"github.com/Animeshkr9044/pair-programming-prototype/stores"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	cfg      config.Config
	store    core.RoomStore
	registry *registry.Registry
	sessions *session.Coordinator
	ioo      *socketio.Server
	router   *chi.Mux
}

func newServer(cfg config.Config, store core.RoomStore) *server {
	reg := registry.New(registry.Options{
		QueueSize:    cfg.Session.PeerQueueSize,
		WriteTimeout: cfg.Session.WriteTimeout,
	})
	sessions := session.New(store, reg, session.Options{
		AutoPersist:      cfg.Session.AutoPersist,
		AutoPersistDelay: cfg.Session.AutoPersistDelay,
	})

	s := &server{
		cfg:      cfg,
		store:    store,
		registry: reg,
		sessions: sessions,
		ioo:      websocket.SetupSocketIO(sessions, cfg.CORSAllowedOrigins),
	}
	s.router = setupRouter(cfg, sessions, s.ioo)
	return s
}

func setupRouter(cfg config.Config, sessions *session.Coordinator, ioo *socketio.Server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"message": "Pair Programming API is running"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/rooms", rooms.HandleCreate(sessions))
	r.Get("/rooms/{roomId}/code", rooms.HandleGetCode(sessions))
	r.Put("/rooms/{roomId}/code", rooms.HandleSaveCode(sessions))
	r.Post("/autocomplete", autocomplete.HandleSuggest())
	r.Get("/api/rooms", rooms.HandleListActive(sessions))

	r.Get("/ws/{roomId}", websocket.HandleRoom(sessions, websocket.Options{
		PongWait:          cfg.Transport.PongWait,
		WriteWait:         cfg.Session.WriteTimeout,
		MaxMessageSize:    cfg.Transport.MaxMessageSize,
		MessagesPerSecond: cfg.Transport.MessagesPerSecond,
		MessageBurst:      cfg.Transport.MessageBurst,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
	}))

	if ioo != nil {
		r.Handle("/socket.io/", ioo.ServeHandler(nil))
	}

	return r
}

// shutdown stops accepting requests, drops every live connection, writes
// pending room content and closes the store.
func (s *server) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	s.ioo.Close(nil)
	s.registry.Shutdown()
	if err := s.sessions.Drain(ctx); err != nil {
		logrus.WithError(err).Warn("Sessions still running at shutdown")
	}
	s.sessions.Close()
	if err := s.store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close room store")
	}
	logrus.Info("Server stopped")
}

func waitForSignal() os.Signal {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(signalC)
	return <-signalC
}

func setupLogging(level, env string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(parsed)
	if env == "prod" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func main() {
	logLevel := flag.String("loglevel", "", "Set the logging level: debug, info, warn, error, fatal, panic (default from LOG_LEVEL)")
	listenAddr := flag.String("listen", "", "Set the server listen address (default from LISTEN_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	if err := setupLogging(cfg.LogLevel, cfg.Env); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	store := stores.GetStore(context.Background(), cfg.Storage)
	s := newServer(cfg, store)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", cfg.ListenAddr).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	sig := waitForSignal()
	logrus.WithField("signal", sig.String()).Info("Shutting down")
	s.shutdown(srv)
}
