// Package server implements the daemon's read-only HTTP JSON API. It is a
// thin adapter between HTTP and the controller core, consumed by
// mcstrackctl and by dashboards.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mcstrack/mcstrackd/internal/controller"
	"github.com/mcstrack/mcstrackd/internal/protocol"
	appversion "github.com/mcstrack/mcstrackd/internal/version"
)

// Core is the view of the controller the API server reads. The daemon wraps
// the controller so every read is serialized with the tick loop.
type Core interface {
	SystemStatus() controller.SystemStatus
	ListConnectionReports() []controller.ConnectionReport
	ListConnectedDetectors() []string
	ListConnectedPoseSolvers() []string
	LatestDetectorFrame(label string) (controller.DetectorFrame, bool)
	LatestPoseSolverFrame(label string) (controller.PoseSolverFrame, bool)
	DrainStatusMessages() []protocol.StatusMessage
}

// StatusReply is the /api/v1/status response body.
type StatusReply struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Peers       int    `json:"peers"`
	Detectors   int    `json:"connected_detectors"`
	PoseSolvers int    `json:"connected_pose_solvers"`
}

// FrameReply is the /api/v1/frames/{label} response body. Exactly one of
// Detector or PoseSolver is set, matching the peer's role.
type FrameReply struct {
	Label      string                      `json:"label"`
	Detector   *controller.DetectorFrame   `json:"detector,omitempty"`
	PoseSolver *controller.PoseSolverFrame `json:"pose_solver,omitempty"`
}

// APIServer serves the read-only controller API.
type APIServer struct {
	core   Core
	logger *slog.Logger
}

// New creates the API server and returns its HTTP handler.
func New(core Core, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &APIServer{core: core, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", srv.handleStatus)
	mux.HandleFunc("GET /api/v1/reports", srv.handleReports)
	mux.HandleFunc("GET /api/v1/detectors", srv.handleDetectors)
	mux.HandleFunc("GET /api/v1/posesolvers", srv.handlePoseSolvers)
	mux.HandleFunc("GET /api/v1/frames/{label}", srv.handleFrame)
	mux.HandleFunc("GET /api/v1/statusmessages", srv.handleStatusMessages)
	return mux
}

func (s *APIServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	reports := s.core.ListConnectionReports()
	s.writeJSON(w, StatusReply{
		Status:      s.core.SystemStatus().String(),
		Version:     appversion.Version,
		Peers:       len(reports),
		Detectors:   len(s.core.ListConnectedDetectors()),
		PoseSolvers: len(s.core.ListConnectedPoseSolvers()),
	})
}

func (s *APIServer) handleReports(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.core.ListConnectionReports())
}

func (s *APIServer) handleDetectors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.core.ListConnectedDetectors())
}

func (s *APIServer) handlePoseSolvers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.core.ListConnectedPoseSolvers())
}

func (s *APIServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	if frame, ok := s.core.LatestDetectorFrame(label); ok {
		s.writeJSON(w, FrameReply{Label: label, Detector: &frame})
		return
	}
	if frame, ok := s.core.LatestPoseSolverFrame(label); ok {
		s.writeJSON(w, FrameReply{Label: label, PoseSolver: &frame})
		return
	}
	http.Error(w, "no frame for label "+label, http.StatusNotFound)
}

func (s *APIServer) handleStatusMessages(w http.ResponseWriter, _ *http.Request) {
	messages := s.core.DrainStatusMessages()
	if messages == nil {
		messages = []protocol.StatusMessage{}
	}
	s.writeJSON(w, messages)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode API response", slog.String("error", err.Error()))
	}
}
