// Package http implements the proxy with a chi router. Every request is
// tagged with a request ID and logged.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/crush"
)

type key int

const (
	requestIDKey key = 0

	// RequestIDHeader is the header that carries the request ID.
	RequestIDHeader = "X-Request-Id"

	shutdownTimeout = 10 * time.Second
)

// HTTP defines a proxy http
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	router     chi.Router
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	ln         net.Listener
	quit       chan struct{}
}

// NewHTTP creates a new proxy http
func NewHTTP(listenAddr string) *HTTP {
	logger := crush.Logger.With().Timestamp().Str("role", "http proxy").Logger()

	nextRequestID := func() string {
		return xid.New().String()
	}

	router := chi.NewRouter()

	h := &HTTP{
		router:     router,
		logger:     logger,
		listenAddr: listenAddr,
		quit:       make(chan struct{}),
	}

	router.Use(tracing(nextRequestID), h.logging)

	h.server = &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	return h
}

// Listen implements proxy.Proxy. This function can be called multiple times
// provided the server is not running, ie. Stop() has been called.
func (h *HTTP) Listen() {
	h.logger.Info().Msg("Client server is starting...")

	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		h.logger.Panic().Msgf("failed to create conn '%s': %v", h.listenAddr, err)
		return
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	done := make(chan struct{})

	go func() {
		<-h.quit
		h.logger.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.server.SetKeepAlivesEnabled(false)
		err := h.server.Shutdown(ctx)
		if err != nil {
			h.logger.Fatal().Msgf("Could not gracefully shutdown the server: %v", err)
		}
		close(done)
	}()

	h.logger.Info().Msgf("Server is ready to handle requests at http://%s", ln.Addr())

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		h.logger.Fatal().Msgf("Could not listen on %s: %v", h.listenAddr, err)
	}

	<-done
	h.logger.Info().Msg("Server stopped")
}

// Stop implements proxy.Proxy. It should be called only once in order to make a
// new Listen() successful.
func (h *HTTP) Stop() {
	// we don't close it so it can be called multiple times without harm
	h.quit <- struct{}{}
}

// RegisterHandler implements proxy.Proxy
func (h *HTTP) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	h.router.HandleFunc(path, handler)
}

// Mount implements proxy.Proxy. It panics if the pattern is already used.
func (h *HTTP) Mount(pattern string, handler http.Handler) {
	h.router.Mount(pattern, handler)
}

// GetAddr implements proxy.Proxy.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// logging is a utility function that logs the http server events
func (h *HTTP) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		defer func() {
			requestID, ok := r.Context().Value(requestIDKey).(string)
			if !ok {
				requestID = "unknown"
			}

			h.logger.Info().Str("requestID", requestID).
				Str("method", r.Method).
				Str("url", r.URL.Path).
				Str("remoteAddr", r.RemoteAddr).
				Str("agent", r.UserAgent()).
				Dur("duration", time.Since(start)).
				Msg("")
		}()

		next.ServeHTTP(w, r)
	})
}

// tracing is a utility function that adds header tracing
func tracing(nextRequestID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = nextRequestID()
			}

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID returns the ID of the request, or an empty string if it has not
// been tagged.
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
