package main

import (
	"collabnotes-server/collab"
	"collabnotes-server/core"
	"collabnotes-server/handlers/api/documents"
	"collabnotes-server/handlers/api/rooms"
	"collabnotes-server/handlers/websocket"
	"collabnotes-server/stores"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const shutdownTimeout = 15 * time.Second

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	case "tauri":
		return parsed.Hostname() == "localhost"
	}

	return false
}

func setupRouter(documentStore core.DocumentStore, gateway *collab.Gateway, wsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"tauri://localhost"},
		AllowOriginFunc:  allowOrigin,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/notes", func(r chi.Router) {
		r.Get("/", documents.HandleList(documentStore))
		r.Post("/", documents.HandleCreate(documentStore))
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", documents.HandleGet(documentStore))
			r.Patch("/", documents.HandlePatch(documentStore))
		})
	})

	r.Get("/api/rooms", rooms.HandleList(gateway.Registry(), documentStore))
	r.Handle("/ws", wsHandler)

	return r
}

func waitForShutdown(ioo *socketio.Server, server *http.Server, wsHandler *websocket.Handler, debouncer *collab.Debouncer, stopDebouncer context.CancelFunc, documentStore core.DocumentStore) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	ioo.Close(nil)
	wsHandler.Close()
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not stop cleanly")
	}

	stopDebouncer()
	if err := debouncer.Drain(ctx); err != nil {
		logrus.WithError(err).Error("Unsaved note content was lost")
	}

	if closer, ok := documentStore.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close document store")
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	debounce := flag.Duration("debounce", collab.DefaultDebounceInterval, "Quiet period before note content is saved")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	documentStore, err := stores.GetStore(context.Background())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize document store")
	}

	registry := collab.NewRegistry()
	debouncer := collab.NewDebouncer(documentStore, *debounce)
	gateway := collab.NewGateway(registry, collab.NewBroadcaster(registry), debouncer)

	debounceCtx, stopDebouncer := context.WithCancel(context.Background())
	go debouncer.Run(debounceCtx)

	wsHandler := websocket.NewHandler(gateway, "localhost:*", "127.0.0.1:*", "[::1]:*")
	r := setupRouter(documentStore, gateway, wsHandler)
	ioo := websocket.SetupSocketIO(gateway)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	server := &http.Server{Addr: *listenAddr, Handler: r}
	logrus.WithFields(logrus.Fields{
		"addr":     *listenAddr,
		"debounce": debouncer.Interval(),
	}).Info("starting server")
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(ioo, server, wsHandler, debouncer, stopDebouncer, documentStore)
}
