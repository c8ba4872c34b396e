// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Azure/iot-telemetry-relay/internal/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server exposes the hub over HTTP.
type Server struct {
	hub      *Hub
	options  Options
	log      log.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
}

// logWriter adapts the access log and panic recovery output to the logger.
type logWriter struct{ log.Logger }

// NewServer builds the HTTP routes for the hub.
func NewServer(hub *Hub, opt ...Option) *Server {
	s := &Server{hub: hub}
	s.options.Apply(opt)
	s.log = log.Wrap(s.options.Logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Dashboards are served from a separate origin.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.options.Metrics != nil {
		r.Handle("/metrics", s.options.Metrics.Handler()).
			Methods(http.MethodGet)
	}
	r.HandleFunc("/ws", s.serveWS)
	r.HandleFunc("/", s.root)
	r.NotFoundHandler = http.HandlerFunc(redirectRoot)

	lw := logWriter{s.log}
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(lw),
	)(handlers.CombinedLoggingHandler(lw, r))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWS(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "IoT telemetry relay; connect with a WebSocket client.")
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		s.log.Debug(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}

	// The request context ends when the handler returns, so the connection
	// lives on a detached context.
	s.hub.Serve(context.WithoutCancel(r.Context()), conn)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}{"ok", s.hub.Len()})
}

func redirectRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (w logWriter) Write(p []byte) (int, error) {
	w.Debug(context.Background(), "http request",
		slog.String("access", string(bytes.TrimSpace(p))),
	)
	return len(p), nil
}

func (w logWriter) Println(v ...any) {
	w.Log(context.Background(), slog.LevelError, "http handler panic",
		slog.String("panic", fmt.Sprint(v...)),
	)
}
