// Package proxy serves a local JSON API that forwards to the Vocaris backend.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/vocaris/vocaris/backend"
	"github.com/vocaris/vocaris/clickup"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

const shutdownTimeout = 5 * time.Second

// Options configures a proxy server.
type Options struct {
	// Backend forwards requests upstream. It should carry no token of its
	// own so only the caller's Authorization header is sent.
	Backend    *backend.Client
	Authorizer *clickup.Authorizer
	Pusher     *clickup.Pusher
	Logger     *log.Logger
}

// Server forwards /api requests to the backend.
type Server struct {
	backend    *backend.Client
	authorizer *clickup.Authorizer
	pusher     *clickup.Pusher
	logger     *log.Logger
}

// NewServer creates a proxy server.
func NewServer(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "proxy: ", log.LstdFlags)
	}
	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = clickup.NewAuthorizer(clickup.AuthorizerOptions{Backend: opts.Backend})
	}
	pusher := opts.Pusher
	if pusher == nil {
		pusher = clickup.NewPusher(clickup.PusherOptions{Creator: opts.Backend, Logger: logger})
	}
	return &Server{backend: opts.Backend, authorizer: authorizer, pusher: pusher, logger: logger}, nil
}

// Handler returns the HTTP handler for the proxy API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/meeting/start", s.handleStart)
	mux.HandleFunc("/api/meeting/end", s.handleEnd)
	mux.HandleFunc("/api/meeting/status", s.handleStatus)
	mux.HandleFunc("/api/meeting/history", s.handleHistory)
	mux.HandleFunc("/api/meeting/query", s.handleQuery)
	mux.HandleFunc("/api/meeting/transcripts/{botID}", s.handleTranscripts)
	mux.HandleFunc("/api/clickup/authorize", s.handleClickUpAuthorize)
	mux.HandleFunc("/api/clickup/task", s.handleClickUpTask)
	mux.HandleFunc("/api/clickup/workspace", s.handleClickUpWorkspace)
	mux.HandleFunc("/api/clickup/push", s.handleClickUpPush)
	return s.recoverHandler(requestID(mux))
}

// Serve runs the server on the given address until it fails or an
// interrupt arrives.
func (s *Server) Serve(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ErrorLog:          s.logger,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErrs := make(chan error, 1)
	go func() {
		listenErrs <- server.ListenAndServe()
	}()
	s.logf("forwarding http://%s/api to %s", addr, s.backend.BaseURL())

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	select {
	case err := <-listenErrs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logf("server stopped: %v", err)
			return err
		}
		return nil
	case <-interrupts:
		s.logf("interrupt received, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		shutdownErr := server.Shutdown(shutdownCtx)
		cancel()
		listenErr := <-listenErrs
		if errors.Is(listenErr, http.ErrServerClosed) {
			listenErr = nil
		}
		return errors.Join(shutdownErr, listenErr)
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer := &responseTracker{ResponseWriter: w}
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logf("panic handling request %s %s: %v\n%s", r.Method, r.URL.Path, recovered, debug.Stack())
				if writer.wroteHeader {
					return
				}
				writeJSON(writer, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(writer, r)
	})
}

func (s *Server) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

type responseTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *responseTracker) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseTracker) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(data)
}
