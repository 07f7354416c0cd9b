// Package server expone la superficie local del agente: control del
// engine, estado, lecturas de sensores y un stream websocket de la última
// telemetría para el dashboard.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"tracker-agent/internal/dispatcher"
	"tracker-agent/internal/link"
	"tracker-agent/internal/pipeline"
	"tracker-agent/internal/store"
)

type Server struct {
	engine   *dispatcher.Engine
	backend  *link.Client
	identity *store.Identity
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func New(engine *dispatcher.Engine, backend *link.Client, identity *store.Identity, lg *slog.Logger) *Server {
	return &Server{
		engine:   engine,
		backend:  backend,
		identity: identity,
		log:      lg.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// superficie local del agente, no expuesta a internet
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes cuelga los handlers del agente en el mux (que ya trae /metrics y
// /healthz de observability).
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/car", s.handleSetCar)
	mux.HandleFunc("GET /api/sensors", s.handleSensors)
	mux.HandleFunc("POST /api/token", s.handleToken)
	mux.HandleFunc("GET /ws", s.handleWS)
}

type statusResponse struct {
	State       string           `json:"state"`
	DeviceID    string           `json:"device_id,omitempty"`
	CarID       int              `json:"car_id"`
	Subscribers int              `json:"subscribers"`
	Latest      *pipeline.Report `json:"latest,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := statusResponse{
		State:       s.engine.State().String(),
		Subscribers: s.engine.Subscribers(),
	}

	if info, err := s.identity.Info(r.Context()); err == nil {
		out.DeviceID = info.DeviceID
		out.CarID = info.CarID
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("status: identity read failed", "err", err)
	}

	if latest, ok := s.engine.Latest(); ok {
		out.Latest = &latest
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(); err != nil {
		if errors.Is(err, dispatcher.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.engine.State().String()})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": s.engine.State().String()})
}

type setCarRequest struct {
	CarID int `json:"car_id"`
}

func (s *Server) handleSetCar(w http.ResponseWriter, r *http.Request) {
	var req setCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	confirmed, err := s.engine.SetCarID(r.Context(), req.CarID)
	if err != nil {
		// acción interactiva: el error vuelve inline al usuario
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"car_id": confirmed})
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	limit := 1
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	carID := 0
	if info, err := s.identity.Info(r.Context()); err == nil {
		carID = info.CarID
	}
	if v := r.URL.Query().Get("car_id"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			carID = n
		}
	}

	readings, err := s.backend.GetSensorReadings(r.Context(), carID, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, errors.New("token required"))
		return
	}
	if err := s.backend.PostDeviceToken(r.Context(), req.Token); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWS empuja cada reporte nuevo al dashboard conectado.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch, unsub := s.engine.Subscribe()
	defer unsub()

	// tras el Upgrade el contexto del request ya no avisa la desconexión;
	// el read pump detecta el cierre del cliente aunque no fluyan reportes
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// estado actual primero, si hay
	if latest, ok := s.engine.Latest(); ok {
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case rep := <-ch:
			if err := conn.WriteJSON(rep); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
