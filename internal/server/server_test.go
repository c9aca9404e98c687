package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcstrack/mcstrackd/internal/controller"
	"github.com/mcstrack/mcstrackd/internal/protocol"
	"github.com/mcstrack/mcstrackd/internal/server"
)

// stubCore is a canned Core implementation.
type stubCore struct {
	status   controller.SystemStatus
	reports  []controller.ConnectionReport
	frames   map[string]controller.DetectorFrame
	poses    map[string]controller.PoseSolverFrame
	messages []protocol.StatusMessage
}

func (s *stubCore) SystemStatus() controller.SystemStatus { return s.status }

func (s *stubCore) ListConnectionReports() []controller.ConnectionReport { return s.reports }

func (s *stubCore) ListConnectedDetectors() []string {
	labels := make([]string, 0, len(s.frames))
	for label := range s.frames {
		labels = append(labels, label)
	}
	return labels
}

func (s *stubCore) ListConnectedPoseSolvers() []string {
	labels := make([]string, 0, len(s.poses))
	for label := range s.poses {
		labels = append(labels, label)
	}
	return labels
}

func (s *stubCore) LatestDetectorFrame(label string) (controller.DetectorFrame, bool) {
	frame, ok := s.frames[label]
	return frame, ok
}

func (s *stubCore) LatestPoseSolverFrame(label string) (controller.PoseSolverFrame, bool) {
	frame, ok := s.poses[label]
	return frame, ok
}

func (s *stubCore) DrainStatusMessages() []protocol.StatusMessage {
	drained := s.messages
	s.messages = nil
	return drained
}

func newTestServer(t *testing.T, core server.Core) *httptest.Server {
	t.Helper()
	handler := server.New(core, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// TestStatusEndpoint verifies /api/v1/status aggregation.
func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	core := &stubCore{
		status: controller.SystemRunning,
		reports: []controller.ConnectionReport{
			{Label: "d1", Role: controller.RoleDetector, Host: "10.0.0.1", Port: 8001, Status: "connected"},
			{Label: "p1", Role: controller.RolePoseSolver, Host: "10.0.0.2", Port: 8101, Status: "connected"},
		},
		frames: map[string]controller.DetectorFrame{"d1": {}},
		poses:  map[string]controller.PoseSolverFrame{"p1": {}},
	}
	srv := newTestServer(t, core)

	var reply server.StatusReply
	if code := get(t, srv.URL+"/api/v1/status", &reply); code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", code)
	}
	if reply.Status != "running" {
		t.Errorf("status = %q, want running", reply.Status)
	}
	if reply.Peers != 2 || reply.Detectors != 1 || reply.PoseSolvers != 1 {
		t.Errorf("counts = %+v, want 2 peers, 1 detector, 1 solver", reply)
	}
}

// TestReportsEndpoint verifies /api/v1/reports passthrough.
func TestReportsEndpoint(t *testing.T) {
	t.Parallel()

	core := &stubCore{
		reports: []controller.ConnectionReport{
			{Label: "d1", Role: controller.RoleDetector, Host: "10.0.0.1", Port: 8001, Status: "aborted"},
		},
	}
	srv := newTestServer(t, core)

	var reports []controller.ConnectionReport
	if code := get(t, srv.URL+"/api/v1/reports", &reports); code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", code)
	}
	if len(reports) != 1 || reports[0].Status != "aborted" {
		t.Errorf("reports = %+v, want single aborted d1", reports)
	}
}

// TestFrameEndpoint verifies role dispatch and the 404 path.
func TestFrameEndpoint(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	core := &stubCore{
		frames: map[string]controller.DetectorFrame{
			"d1": {
				DetectedMarkerSnapshots: []protocol.MarkerSnapshot{{Label: "7"}},
				Timestamp:               now,
			},
		},
		poses: map[string]controller.PoseSolverFrame{
			"p1": {
				TargetPoses: []protocol.Pose{{TargetID: "t0"}},
				Timestamp:   now,
			},
		},
	}
	srv := newTestServer(t, core)

	var detectorReply server.FrameReply
	if code := get(t, srv.URL+"/api/v1/frames/d1", &detectorReply); code != http.StatusOK {
		t.Fatalf("frames/d1 status code = %d, want 200", code)
	}
	if detectorReply.Detector == nil || detectorReply.PoseSolver != nil {
		t.Errorf("frames/d1 reply = %+v, want detector frame only", detectorReply)
	}

	var solverReply server.FrameReply
	if code := get(t, srv.URL+"/api/v1/frames/p1", &solverReply); code != http.StatusOK {
		t.Fatalf("frames/p1 status code = %d, want 200", code)
	}
	if solverReply.PoseSolver == nil || len(solverReply.PoseSolver.TargetPoses) != 1 {
		t.Errorf("frames/p1 reply = %+v, want pose solver frame", solverReply)
	}

	if code := get(t, srv.URL+"/api/v1/frames/ghost", nil); code != http.StatusNotFound {
		t.Errorf("frames/ghost status code = %d, want 404", code)
	}
}

// TestStatusMessagesEndpoint verifies draining semantics over HTTP.
func TestStatusMessagesEndpoint(t *testing.T) {
	t.Parallel()

	core := &stubCore{
		messages: []protocol.StatusMessage{
			{Severity: protocol.SeverityWarning, Message: "retrying", SourceLabel: "controller"},
		},
	}
	srv := newTestServer(t, core)

	var first []protocol.StatusMessage
	if code := get(t, srv.URL+"/api/v1/statusmessages", &first); code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", code)
	}
	if len(first) != 1 || first[0].Message != "retrying" {
		t.Errorf("messages = %+v, want single retrying warning", first)
	}

	var second []protocol.StatusMessage
	if code := get(t, srv.URL+"/api/v1/statusmessages", &second); code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", code)
	}
	if len(second) != 0 {
		t.Errorf("second drain = %+v, want empty", second)
	}
}

// TestMethodNotAllowed verifies write methods are rejected.
func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubCore{})
	resp, err := http.Post(srv.URL+"/api/v1/reports", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status code = %d, want 405", resp.StatusCode)
	}
}
