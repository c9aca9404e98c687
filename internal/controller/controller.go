package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mcstrack/mcstrackd/internal/protocol"
	"github.com/mcstrack/mcstrackd/internal/transport"
)

// Default retry policy for peer connection attempts.
const (
	DefaultAttemptCountMaximum = 5
	DefaultAttemptTimeGap      = 5 * time.Second
)

// Sentinel errors for façade usage mistakes.
var (
	// ErrDuplicateLabel indicates AddPeer was called with a label that is
	// already part of the fleet.
	ErrDuplicateLabel = errors.New("peer label already exists")

	// ErrUnknownLabel indicates an operation referenced a label that is not
	// part of the fleet.
	ErrUnknownLabel = errors.New("peer label not found")

	// ErrInvalidRole indicates AddPeer was called with an unknown role.
	ErrInvalidRole = errors.New("invalid peer role")

	// ErrTrackingActive indicates StartTracking was called while a tracking
	// run is already starting or running.
	ErrTrackingActive = errors.New("tracking already active")

	// ErrTrackingNotActive indicates StopTracking was called with no
	// tracking run to stop.
	ErrTrackingNotActive = errors.New("tracking not active")

	// ErrNotPoseSolver indicates a solver-only operation targeted a peer of
	// a different role.
	ErrNotPoseSolver = errors.New("peer is not a pose solver")
)

// SystemStatus is the overall tracking state owned by the startup
// orchestrator.
type SystemStatus uint8

const (
	SystemStopped SystemStatus = iota
	SystemStarting
	SystemRunning
	SystemStopping
)

// String returns the lower-case report name of the system status.
func (s SystemStatus) String() string {
	switch s {
	case SystemStopped:
		return "stopped"
	case SystemStarting:
		return "starting"
	case SystemRunning:
		return "running"
	case SystemStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// TrackingMode selects how far StartTracking takes the fleet.
type TrackingMode uint8

const (
	// DetectingOnly starts detector capture without engaging pose solvers.
	DetectingOnly TrackingMode = iota + 1

	// DetectingAndSolving additionally pushes intrinsics into every
	// connected pose solver and starts solving.
	DetectingAndSolving
)

// String returns the human-readable mode name.
func (m TrackingMode) String() string {
	switch m {
	case DetectingOnly:
		return "detecting_only"
	case DetectingAndSolving:
		return "detecting_and_solving"
	default:
		return "unknown"
	}
}

// Controller supervises the component fleet. All state mutation happens on
// the Tick thread; the type is not safe for concurrent use.
type Controller struct {
	logger  *slog.Logger
	dialer  transport.Dialer
	now     func() time.Time
	metrics MetricsReporter

	attemptCountMaximum int
	attemptTimeGap      time.Duration

	peers      map[string]*peer
	correlator *Correlator
	status     *StatusSink

	systemStatus SystemStatus
	phase        startupPhase
	mode         TrackingMode

	// pendingIDs gates startup/stop phase advancement. Maintained as a
	// simple ordered list, independent of the per-peer in-flight slots the
	// relay loop uses.
	pendingIDs []string
}

// Option configures optional Controller parameters.
type Option func(*Controller)

// WithClock replaces the controller's time source. Used by tests to drive
// the retry gap deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics attaches a MetricsReporter. If mr is nil, the default no-op
// reporter is kept.
func WithMetrics(mr MetricsReporter) Option {
	return func(c *Controller) {
		if mr != nil {
			c.metrics = mr
		}
	}
}

// WithRetryPolicy overrides the connection attempt limit and the gap
// between attempts. Non-positive values keep the defaults.
func WithRetryPolicy(attemptCountMaximum int, attemptTimeGap time.Duration) Option {
	return func(c *Controller) {
		if attemptCountMaximum > 0 {
			c.attemptCountMaximum = attemptCountMaximum
		}
		if attemptTimeGap > 0 {
			c.attemptTimeGap = attemptTimeGap
		}
	}
}

// New creates a controller that dials peers through the given dialer.
func New(logger *slog.Logger, dialer transport.Dialer, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		logger:              logger,
		dialer:              dialer,
		now:                 time.Now,
		metrics:             nopMetrics{},
		attemptCountMaximum: DefaultAttemptCountMaximum,
		attemptTimeGap:      DefaultAttemptTimeGap,
		peers:               make(map[string]*peer),
		correlator:          NewCorrelator(),
		systemStatus:        SystemStopped,
		phase:               phaseInitial,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status = NewStatusSink(logger, "controller", c.now)
	return c
}

// -------------------------------------------------------------------------
// Fleet membership
// -------------------------------------------------------------------------

// AddPeer creates a peer record. The label must be unique across the fleet.
func (c *Controller) AddPeer(address PeerAddress) error {
	if !address.Role.Valid() {
		return fmt.Errorf("add peer %q: role %q: %w", address.Label, address.Role, ErrInvalidRole)
	}
	if _, exists := c.peers[address.Label]; exists {
		return fmt.Errorf("add peer %q: %w", address.Label, ErrDuplicateLabel)
	}
	c.peers[address.Label] = newPeer(address)
	return nil
}

// RemovePeer destroys a peer record.
func (c *Controller) RemovePeer(label string) error {
	p, exists := c.peers[label]
	if !exists {
		return fmt.Errorf("remove peer %q: %w", label, ErrUnknownLabel)
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	delete(c.peers, label)
	return nil
}

// HasPeer reports whether a label is part of the fleet.
func (c *Controller) HasPeer(label string) bool {
	_, exists := c.peers[label]
	return exists
}

// ConnectPeer arms (or re-arms) a peer: the session moves to connecting and
// the attempt counter resets. Connecting an already-connected peer is a
// warning-level no-op; a peer that is still disconnecting is left unchanged.
func (c *Controller) ConnectPeer(label string) error {
	p, exists := c.peers[label]
	if !exists {
		return fmt.Errorf("connect peer %q: %w", label, ErrUnknownLabel)
	}
	if p.status == StatusConnected {
		c.status.Enqueue(protocol.SeverityWarning,
			fmt.Sprintf("Peer %s is already connected.", label))
		return nil
	}
	c.applySessionEvent(p, EventConnectRequested)
	return nil
}

// DisconnectPeer requests a graceful close of a peer's session.
func (c *Controller) DisconnectPeer(label string) error {
	p, exists := c.peers[label]
	if !exists {
		return fmt.Errorf("disconnect peer %q: %w", label, ErrUnknownLabel)
	}
	c.applySessionEvent(p, EventDisconnectRequested)
	return nil
}

// -------------------------------------------------------------------------
// Read accessors
// -------------------------------------------------------------------------

// ListConnectionReports returns a display snapshot of every peer, sorted by
// label.
func (c *Controller) ListConnectionReports() []ConnectionReport {
	reports := make([]ConnectionReport, 0, len(c.peers))
	for _, label := range c.sortedLabels() {
		p := c.peers[label]
		reports = append(reports, ConnectionReport{
			Label:  p.address.Label,
			Role:   p.address.Role,
			Host:   p.address.Host,
			Port:   p.address.Port,
			Status: p.status.String(),
		})
	}
	return reports
}

// ListConnectedDetectors returns the labels of connected detector peers.
func (c *Controller) ListConnectedDetectors() []string {
	return c.connectedLabels(RoleDetector)
}

// ListConnectedPoseSolvers returns the labels of connected pose solver peers.
func (c *Controller) ListConnectedPoseSolvers() []string {
	return c.connectedLabels(RolePoseSolver)
}

// LatestDetectorFrame returns the peer's most recent marker snapshot set.
// ok is false when the label is unknown, not a detector, or no frame has
// arrived yet.
func (c *Controller) LatestDetectorFrame(label string) (DetectorFrame, bool) {
	p, exists := c.peers[label]
	if !exists || p.detector == nil || p.detector.markerSnapshotAt.IsZero() {
		return DetectorFrame{}, false
	}
	return DetectorFrame{
		DetectedMarkerSnapshots: p.detector.detectedMarkerSnapshots,
		RejectedMarkerSnapshots: p.detector.rejectedMarkerSnapshots,
		Timestamp:               p.detector.markerSnapshotAt,
	}, true
}

// LatestPoseSolverFrame returns the peer's most recent pose set. ok is
// false when the label is unknown, not a pose solver, or no poses have
// arrived yet.
func (c *Controller) LatestPoseSolverFrame(label string) (PoseSolverFrame, bool) {
	p, exists := c.peers[label]
	if !exists || p.poseSolver == nil || p.poseSolver.posesAt.IsZero() {
		return PoseSolverFrame{}, false
	}
	return PoseSolverFrame{
		DetectorPoses: p.poseSolver.detectorPoses,
		TargetPoses:   p.poseSolver.targetPoses,
		Timestamp:     p.poseSolver.posesAt,
	}, true
}

// DetectorIntrinsics returns the intrinsic parameters gathered for a
// detector during startup. ok is false when the label is unknown, not a
// detector, or no calibration result was fetched.
func (c *Controller) DetectorIntrinsics(label string) (protocol.IntrinsicParameters, bool) {
	p, exists := c.peers[label]
	if !exists || p.detector == nil || p.detector.intrinsics == nil {
		return protocol.IntrinsicParameters{}, false
	}
	return *p.detector.intrinsics, true
}

// SystemStatus returns the overall tracking state.
func (c *Controller) SystemStatus() SystemStatus { return c.systemStatus }

// PendingStartupRequests returns the number of request ids gating the next
// startup/stop phase.
func (c *Controller) PendingStartupRequests() int { return len(c.pendingIDs) }

// DrainStatusMessages removes and returns all queued status messages.
func (c *Controller) DrainStatusMessages() []protocol.StatusMessage {
	return c.status.Drain()
}

// -------------------------------------------------------------------------
// Requests
// -------------------------------------------------------------------------

// IgnoreRequest cancels interest in a response. The series is still
// transmitted if it was already dispatched, but its id is forgotten.
func (c *Controller) IgnoreRequest(label, id string) {
	c.correlator.Ignore(label, id)
}

// SetReferenceMarker designates the marker anchoring the given solver's
// reference frame. Returns the submitted request id; the response is
// claimed by the orchestrator drain.
func (c *Controller) SetReferenceMarker(solverLabel string, markerID int, diameter float64) (string, error) {
	return c.submitToSolver(solverLabel, protocol.SetReferenceMarkerRequest{
		MarkerID:       markerID,
		MarkerDiameter: diameter,
	})
}

// AddTargetMarker registers a single-marker tracking target on the given
// solver. Returns the submitted request id.
func (c *Controller) AddTargetMarker(solverLabel string, markerID int, diameter float64) (string, error) {
	return c.submitToSolver(solverLabel, protocol.AddTargetMarkerRequest{
		Target: protocol.TargetMarker{MarkerID: markerID, MarkerDiameter: diameter},
	})
}

func (c *Controller) submitToSolver(label string, request protocol.Request) (string, error) {
	p, exists := c.peers[label]
	if !exists {
		return "", fmt.Errorf("submit to %q: %w", label, ErrUnknownLabel)
	}
	if p.address.Role != RolePoseSolver {
		return "", fmt.Errorf("submit to %q: %w", label, ErrNotPoseSolver)
	}
	id := c.submit(label, protocol.RequestSeries{Series: []protocol.Request{request}})
	c.pendingIDs = append(c.pendingIDs, id)
	return id, nil
}

// submit queues a request series and reports the submission.
func (c *Controller) submit(label string, series protocol.RequestSeries) string {
	id := c.correlator.Submit(label, series)
	c.metrics.RecordSeriesSubmitted(label)
	return id
}

// -------------------------------------------------------------------------
// Tick
// -------------------------------------------------------------------------

// Tick runs one pass over the fleet: connection supervision for every peer,
// the steady-state relay when running, then the orchestrator drain that
// advances startup/stop phases. Tick is the only driver of state mutation.
func (c *Controller) Tick(ctx context.Context) {
	started := c.now()

	for _, label := range c.sortedLabels() {
		c.supervisePeer(ctx, c.peers[label])
	}

	if c.systemStatus == SystemRunning {
		c.relayTick()
	}

	c.drainPending()

	c.metrics.RecordTick(c.now().Sub(started))
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// sortedLabels returns all peer labels in sorted order. Map iteration order
// must not leak into peer scheduling.
func (c *Controller) sortedLabels() []string {
	labels := make([]string, 0, len(c.peers))
	for label := range c.peers {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// connectedLabels returns the sorted labels of connected peers of one role.
func (c *Controller) connectedLabels(role Role) []string {
	labels := make([]string, 0, len(c.peers))
	for label, p := range c.peers {
		if p.address.Role == role && p.status == StatusConnected {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// applySessionEvent runs the session FSM, executes the resulting actions,
// and reports the transition.
func (c *Controller) applySessionEvent(p *peer, event SessionEvent) SessionResult {
	result := ApplySessionEvent(p.status, event)
	for _, action := range result.Actions {
		switch action {
		case ActionResetAttempts:
			p.attemptCount = 0
			p.nextAttemptAt = time.Time{}
		case ActionScheduleRetry:
			p.nextAttemptAt = c.now().Add(c.attemptTimeGap)
		case ActionDiscardSocket:
			if p.conn != nil {
				_ = p.conn.Close()
				p.conn = nil
			}
		}
	}
	if result.Changed {
		p.status = result.NewStatus
		c.metrics.RecordSessionTransition(
			p.address.Label, p.address.Role, result.OldStatus, result.NewStatus)
		c.logger.Debug("session transition",
			slog.String("peer", p.address.Label),
			slog.String("from", result.OldStatus.String()),
			slog.String("to", result.NewStatus.String()),
		)
	}
	return result
}
