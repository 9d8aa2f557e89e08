// Package server provides the HTTP server for the tabwatt daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/internal/daemon/engine"
	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// maxBodyBytes bounds request and event bodies.
const maxBodyBytes = 1 << 20

// Tracker answers protocol requests and consumes tab events.
type Tracker interface {
	protocol.Handler
	HandleEvent(ctx context.Context, ev protocol.TabEvent) error
}

// Server manages the daemon's HTTP server over a Unix socket, plus an
// optional loopback TCP listener for content collaborators.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	collabServer  *http.Server
	engine        *engine.Engine
	tracker       Tracker
	collaborators http.Handler
	runningConfig *protocol.RunningConfig
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
	}
}

// SetEngine sets the collector engine for the server.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetTracker sets the service answering requests and events.
func (s *Server) SetTracker(t Tracker) {
	s.tracker = t
}

// SetCollaborators sets the websocket endpoint for content collaborators.
func (s *Server) SetCollaborators(h http.Handler) {
	s.collaborators = h
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *protocol.RunningConfig) {
	s.runningConfig = cfg
}

// Handler returns the full API mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", handleHealth)

	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/request", s.handleRequest)
	mux.HandleFunc("/api/events", s.handleEvent)
	mux.HandleFunc("/api/stream", s.handleStreamState)
	mux.HandleFunc("/api/config", s.handleGetConfig)
	mux.HandleFunc("/ws/collaborator", s.handleCollaborator)
	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.server = &http.Server{
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return s.server.Serve(listener)
}

// ListenCollaborators serves only the collaborator websocket on a TCP
// address, for page scripts that cannot reach a unix socket. Only loopback
// addresses are accepted.
func (s *Server) ListenCollaborators(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid collaborator address: %w", err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("collaborator address %q is not a loopback address", addr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/ws/collaborator", s.handleCollaborator)
	s.collabServer = &http.Server{Addr: addr, Handler: mux}

	s.logger.WithField("addr", addr).Info("Collaborator endpoint listening")
	return s.collabServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.collabServer != nil {
		if err := s.collabServer.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("Collaborator endpoint shutdown failed")
		}
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleGetState returns the complete daemon state as JSON.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	state := s.engine.Store().Get()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// handleRequest answers one protocol request. Every well-formed HTTP call
// gets a 200 with a protocol.Response body, failures included.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.tracker == nil {
		writeResponse(w, protocol.Fail(tabwatterrors.New(tabwatterrors.ErrCodeUnavailable, "tracker not initialized")))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeResponse(w, protocol.Fail(tabwatterrors.Wrap(err, tabwatterrors.ErrCodeInvalidInput, "failed to read request body")))
		return
	}
	resp := protocol.Handle(r.Context(), s.tracker, body)
	if !resp.Success {
		s.logger.WithFields(logrus.Fields{"code": resp.Code, "error": resp.Error}).Debug("Request failed")
	}
	writeResponse(w, resp)
}

// handleEvent consumes one tab lifecycle event from the browser host.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.tracker == nil {
		writeResponse(w, protocol.Fail(tabwatterrors.New(tabwatterrors.ErrCodeUnavailable, "tracker not initialized")))
		return
	}

	var ev protocol.TabEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		writeResponse(w, protocol.Fail(tabwatterrors.Wrap(err, tabwatterrors.ErrCodeInvalidInput, "invalid event body")))
		return
	}
	if err := s.tracker.HandleEvent(r.Context(), ev); err != nil {
		writeResponse(w, protocol.Fail(err))
		return
	}
	writeResponse(w, protocol.Response{Success: true})
}

func writeResponse(w http.ResponseWriter, resp protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleCollaborator(w http.ResponseWriter, r *http.Request) {
	if s.collaborators == nil {
		http.Error(w, "collaborator channel disabled", http.StatusServiceUnavailable)
		return
	}
	s.collaborators.ServeHTTP(w, r)
}

// handleStreamState provides Server-Sent Events (SSE) for real-time updates.
// The browser host subscribes here for host commands; other clients for
// session changes. An optional ?types=a,b query narrows the update types.
func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	// Ensure the connection supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	filter := parseTypes(r.URL.Query().Get("types"))

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe to store updates
	ch := s.engine.Store().Subscribe()
	defer s.engine.Store().Unsubscribe(ch)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	// Send current state immediately so client has data right away
	if filter == nil || filter["initial"] {
		state := s.engine.Store().Get()
		initial := &protocol.StreamUpdate{
			UpdateType: "initial",
			Sessions:   sessionList(state.Sessions),
			TabID:      state.ActiveTabID,
		}
		if data, err := json.Marshal(initial); err == nil {
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			// Convert internal store.Update to public API format
			apiUpdate := convertToAPIUpdate(update)
			if apiUpdate == nil || (filter != nil && !filter[apiUpdate.UpdateType]) {
				continue
			}

			data, err := json.Marshal(apiUpdate)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal update")
				continue
			}
			// SSE format: "data: {json}\n\n"
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func parseTypes(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	return out
}

func sessionList(m map[int]*models.TabSession) []*models.TabSession {
	out := make([]*models.TabSession, 0, len(m))
	for _, sess := range m {
		out = append(out, sess)
	}
	return out
}

// convertToAPIUpdate converts internal store.Update to the public API format.
func convertToAPIUpdate(u store.Update) *protocol.StreamUpdate {
	out := &protocol.StreamUpdate{UpdateType: string(u.Type), Source: u.Source, Count: u.Count}
	switch u.Type {
	case store.UpdateSessions:
		if sessions, ok := u.Payload.([]*models.TabSession); ok {
			out.Sessions = sessions
			out.Count = len(sessions)
		}
	case store.UpdateSession, store.UpdateSessionRemoved:
		sess, ok := u.Payload.(*models.TabSession)
		if !ok {
			return nil
		}
		out.Session = sess
		out.TabID = sess.TabID
	case store.UpdateActiveTab:
		if id, ok := u.Payload.(int); ok {
			out.TabID = id
		}
	case store.UpdateTip:
		tip, ok := u.Payload.(*models.Tip)
		if !ok {
			return nil
		}
		out.Tip = tip
		out.TabID = tip.TabID
	case store.UpdateHostCommand:
		cmd, ok := u.Payload.(protocol.HostCommand)
		if !ok {
			return nil
		}
		out.Command = &cmd
		out.TabID = cmd.TabID
	case store.UpdateMaintenance:
	case store.UpdateConfigReload:
		if file, ok := u.Payload.(string); ok {
			out.ConfigFile = file
		}
	default:
		return nil
	}
	return out
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.runningConfig)
}
