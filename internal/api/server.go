// Package api provides a small HTTP surface for inspecting the bridge:
// the raw shadows, the derived values, and connectivity.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"airbridge/internal/bridge"
	"airbridge/internal/device"
	"airbridge/internal/reconcile"

	"go.uber.org/zap"
)

// Server serves the debug endpoints.
type Server struct {
	group  *bridge.Group
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a debug server for group on the given port.
func NewServer(group *bridge.Group, logger *zap.Logger, port int) *Server {
	s := &Server{
		group:  group,
		logger: logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// DeviceView is one appliance's debug representation.
type DeviceView struct {
	DeviceID string            `json:"device_id"`
	Shadow   device.Patch      `json:"shadow"`
	Derived  reconcile.Derived `json:"derived"`
}

// DevicesResponse is the /api/devices payload.
type DevicesResponse struct {
	Online  bool         `json:"online"`
	Devices []DeviceView `json:"devices"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids := s.group.DeviceIDs()
	sort.Strings(ids)

	resp := DevicesResponse{
		Online:  s.group.Online(),
		Devices: make([]DeviceView, 0, len(ids)),
	}
	for _, id := range ids {
		rec, ok := s.group.Reconciler(id)
		if !ok {
			continue
		}
		resp.Devices = append(resp.Devices, DeviceView{
			DeviceID: id,
			Shadow:   rec.Snapshot(),
			Derived:  rec.Derived(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Debug("Devices request served",
		zap.String("remote_addr", r.RemoteAddr))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("Starting debug HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping debug HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
