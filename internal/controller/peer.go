package controller

import (
	"time"

	"github.com/mcstrack/mcstrackd/internal/protocol"
	"github.com/mcstrack/mcstrackd/internal/transport"
)

// Role identifies what kind of component a peer is.
type Role string

const (
	// RoleDetector is a camera component returning per-frame marker
	// corner observations.
	RoleDetector Role = "detector"

	// RolePoseSolver is a component fusing observations into 6-DoF poses.
	RolePoseSolver Role = "pose_solver"
)

// Valid reports whether the role is one of the known component roles.
func (r Role) Valid() bool {
	return r == RoleDetector || r == RolePoseSolver
}

// PeerAddress is the immutable identity of a peer: a unique label, its
// role, and where to dial it.
type PeerAddress struct {
	Label string
	Role  Role
	Host  string
	Port  uint16
}

// peer is one fleet member: its address plus the live per-session state the
// supervisor and relay mutate each tick. The peer owns its live state
// exclusively; request ids referencing the correlator are plain values.
type peer struct {
	address  PeerAddress
	registry *protocol.Registry

	status        SessionStatus
	conn          transport.Conn
	attemptCount  int
	nextAttemptAt time.Time

	detector   *detectorLive
	poseSolver *poseSolverLive
}

// newPeer creates a disconnected peer with the role-specific response
// registry and live substructure.
func newPeer(address PeerAddress) *peer {
	p := &peer{
		address: address,
		status:  StatusDisconnected,
	}
	switch address.Role {
	case RoleDetector:
		p.registry = protocol.NewDetectorRegistry()
		p.detector = &detectorLive{}
	case RolePoseSolver:
		p.registry = protocol.NewPoseSolverRegistry()
		p.poseSolver = &poseSolverLive{detectorTimestamps: make(map[string]time.Time)}
	}
	return p
}

// detectorLive is the mutable per-detector state.
type detectorLive struct {
	// requestID is the in-flight relay poll, empty when none.
	requestID string

	// Startup bookkeeping, reset at the beginning of every StartTracking.
	calibrationResultID   string
	calibratedResolutions []protocol.DetectorResolution
	currentResolution     *protocol.ImageResolution
	intrinsics            *protocol.IntrinsicParameters

	// Latest snapshot set and the controller-observed time it arrived.
	detectedMarkerSnapshots []protocol.MarkerSnapshot
	rejectedMarkerSnapshots []protocol.MarkerSnapshot
	markerSnapshotAt        time.Time
}

// resetStartup clears the calibration bookkeeping gathered by a previous
// startup run.
func (d *detectorLive) resetStartup() {
	d.calibrationResultID = ""
	d.calibratedResolutions = nil
	d.currentResolution = nil
	d.intrinsics = nil
}

// hasCalibrationFor reports whether the detector's calibration store covers
// the given resolution for the given detector label.
func (d *detectorLive) hasCalibrationFor(label string, resolution protocol.ImageResolution) bool {
	want := protocol.DetectorResolution{
		DetectorSerialIdentifier: label,
		ImageResolution:          resolution,
	}
	for _, calibrated := range d.calibratedResolutions {
		if calibrated == want {
			return true
		}
	}
	return false
}

// poseSolverLive is the mutable per-pose-solver state.
type poseSolverLive struct {
	// requestID is the in-flight relay batch, empty when none.
	requestID string

	detectorPoses []protocol.Pose
	targetPoses   []protocol.Pose

	// detectorTimestamps records, per detector label, the snapshot
	// timestamp most recently forwarded to this solver. Absent entries
	// read as the zero time, so any real snapshot qualifies as new.
	detectorTimestamps map[string]time.Time

	posesAt time.Time
}

// resetTracking clears pose state and forwarding history at the beginning
// of a tracking run.
func (p *poseSolverLive) resetTracking() {
	p.detectorPoses = nil
	p.targetPoses = nil
	p.detectorTimestamps = make(map[string]time.Time)
	p.posesAt = time.Time{}
}

// -------------------------------------------------------------------------
// Read-only snapshots for external consumers
// -------------------------------------------------------------------------

// ConnectionReport is a point-in-time view of one peer for display.
type ConnectionReport struct {
	Label  string `json:"label"`
	Role   Role   `json:"role"`
	Host   string `json:"host"`
	Port   uint16 `json:"port"`
	Status string `json:"status"`
}

// DetectorFrame is the latest marker snapshot set produced by one detector.
type DetectorFrame struct {
	DetectedMarkerSnapshots []protocol.MarkerSnapshot `json:"detected_marker_snapshots"`
	RejectedMarkerSnapshots []protocol.MarkerSnapshot `json:"rejected_marker_snapshots"`
	Timestamp               time.Time                 `json:"timestamp"`
}

// PoseSolverFrame is the latest pose set produced by one pose solver.
type PoseSolverFrame struct {
	DetectorPoses []protocol.Pose `json:"detector_poses"`
	TargetPoses   []protocol.Pose `json:"target_poses"`
	Timestamp     time.Time       `json:"timestamp"`
}
