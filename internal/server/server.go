// Package server hosts the local relay surface: recorded-event batches from
// page relays and single messages from injected frame scripts, persisted to
// the event store.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/probelight/qa-recorder/internal/bridge"
	"github.com/probelight/qa-recorder/internal/models"
	"github.com/probelight/qa-recorder/internal/recorder"
	"github.com/probelight/qa-recorder/internal/store"
)

// Server is the agent's HTTP surface.
type Server struct {
	db      *store.Store
	engine  *recorder.Engine
	address string
	server  *http.Server
}

// NewServer creates a server backed by db, listening on address. Frame
// messages are routed through engine's recording gate; engine may be nil,
// in which case they are rejected.
func NewServer(db *store.Store, engine *recorder.Engine, address string) *Server {
	return &Server{
		db:      db,
		engine:  engine,
		address: address,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

// handleEvents accepts a batch of recorded events for one session.
func (s *Server) handleEvents(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var batch models.Batch
	if err := json.NewDecoder(request.Body).Decode(&batch); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if batch.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if len(batch.Events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.db.InsertBatch(request.Context(), batch.SessionID, batch.Events); err != nil {
		log.Printf("Database error: %v", err)
		http.Error(w, "Failed to store events", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent) // success, no body
}

// handleFrameMessage accepts one injected-script message. Handshakes are
// logged; event payloads are validated through the same tagged-union parser
// the in-process bridge uses, then forwarded into the recording gate, which
// applies the manual-mode latch and the emission delay before the event
// lands in the store. Malformed messages get a 400 but never take the
// server down.
func (s *Server) handleFrameMessage(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		http.Error(w, "No active recording engine", http.StatusServiceUnavailable)
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(request.Body).Decode(&raw); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	msg, err := bridge.ParseMessage(raw)
	if err != nil {
		log.Printf("frame message rejected: %v", err)
		http.Error(w, "Unrecognized frame message", http.StatusBadRequest)
		return
	}
	if msg.Type == bridge.MsgReady {
		log.Printf("frame recorder ready")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	// Gate decision and sink write happen asynchronously; acceptance only
	// means the payload parsed.
	s.engine.SubmitRemote(*msg.Payload)
	w.WriteHeader(http.StatusAccepted)
}

// handleStats reports per-type event counts for a session.
func (s *Server) handleStats(w http.ResponseWriter, request *http.Request) {
	sessionID := request.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}
	counts, err := s.db.CountByType(request.Context(), sessionID)
	if err != nil {
		log.Printf("Database error: %v", err)
		http.Error(w, "Failed to read stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessionId": sessionID,
		"counts":    counts,
		"storeSize": humanize.Bytes(uint64(s.db.SizeOnDisk())),
	})
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/frame-message", s.handleFrameMessage)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	mux := s.setupRoutes()
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("QA recorder agent listening on %s (store %s)", s.address, humanize.Bytes(uint64(s.db.SizeOnDisk())))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start:", err)
		}
	}()

	<-shutdownChannel
	log.Println("Shutting down server...")

	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownContext); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
	return nil
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
