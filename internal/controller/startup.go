package controller

import (
	"fmt"

	"github.com/mcstrack/mcstrackd/internal/protocol"
)

// startupPhase tracks progress through the Starting system status. Each
// detector is queried individually; there is no distinguished calibrator
// peer.
type startupPhase uint8

const (
	// phaseInitial is the resting phase outside a startup run.
	phaseInitial startupPhase = iota

	// phaseStartingCapture starts capture on every connected detector and
	// asks for its calibrated resolutions.
	phaseStartingCapture

	// phaseGetResolutions re-reads calibrated resolutions together with the
	// capture properties actually in effect after the capture start.
	phaseGetResolutions

	// phaseListIntrinsics lists calibration result metadata for every
	// detector whose captured resolution has calibration coverage.
	phaseListIntrinsics

	// phaseGetIntrinsics fetches the chosen calibration result for every
	// detector that has one.
	phaseGetIntrinsics

	// phaseSetIntrinsics pushes intrinsics into every connected pose solver
	// and starts solving. Skipped in DetectingOnly mode.
	phaseSetIntrinsics
)

// String returns the phase name for debug status messages.
func (p startupPhase) String() string {
	switch p {
	case phaseInitial:
		return "initial"
	case phaseStartingCapture:
		return "starting_capture"
	case phaseGetResolutions:
		return "get_resolutions"
	case phaseListIntrinsics:
		return "list_intrinsics"
	case phaseGetIntrinsics:
		return "get_intrinsics"
	case phaseSetIntrinsics:
		return "set_intrinsics"
	default:
		return "unknown"
	}
}

// StartTracking begins the phased startup. The connected detectors are
// probed for their capture resolutions, the freshest matching calibration
// result is located and fetched per detector, and -- in DetectingAndSolving
// mode -- pushed into every connected pose solver before the system moves
// to running.
func (c *Controller) StartTracking(mode TrackingMode) error {
	if c.systemStatus != SystemStopped {
		return fmt.Errorf("start tracking: status %s: %w", c.systemStatus, ErrTrackingActive)
	}

	detectors := c.ListConnectedDetectors()
	if len(detectors) == 0 {
		c.status.Enqueue(protocol.SeverityWarning,
			"No connected detectors. Tracking will start with nothing to track.")
	}

	for _, label := range detectors {
		c.peers[label].detector.resetStartup()
	}
	for _, label := range c.ListConnectedPoseSolvers() {
		c.peers[label].poseSolver.resetTracking()
	}

	c.mode = mode
	c.systemStatus = SystemStarting
	c.enterStartingCapture()
	return nil
}

// StopTracking winds the fleet down: capture stops on every connected
// detector, solving stops on every connected pose solver, and any relay
// request still in flight joins the pending set so the stop gate waits for
// it. The system reaches stopped once the pending set drains.
func (c *Controller) StopTracking() error {
	if c.systemStatus == SystemStopped || c.systemStatus == SystemStopping {
		return fmt.Errorf("stop tracking: status %s: %w", c.systemStatus, ErrTrackingNotActive)
	}

	for _, label := range c.ListConnectedDetectors() {
		id := c.submit(label, protocol.RequestSeries{Series: []protocol.Request{
			protocol.DetectorStopRequest{},
		}})
		c.pendingIDs = append(c.pendingIDs, id)
	}
	for _, label := range c.ListConnectedPoseSolvers() {
		id := c.submit(label, protocol.RequestSeries{Series: []protocol.Request{
			protocol.PoseSolverStopRequest{},
		}})
		c.pendingIDs = append(c.pendingIDs, id)
	}

	// Outstanding relay requests must finish before the system is stopped.
	for _, p := range c.peers {
		if p.detector != nil && p.detector.requestID != "" {
			c.pendingIDs = append(c.pendingIDs, p.detector.requestID)
			p.detector.requestID = ""
		}
		if p.poseSolver != nil && p.poseSolver.requestID != "" {
			c.pendingIDs = append(c.pendingIDs, p.poseSolver.requestID)
			p.poseSolver.requestID = ""
		}
	}

	c.systemStatus = SystemStopping
	c.phase = phaseInitial
	return nil
}

// -------------------------------------------------------------------------
// Phase entry actions
// -------------------------------------------------------------------------

func (c *Controller) enterStartingCapture() {
	c.phase = phaseStartingCapture
	for _, label := range c.ListConnectedDetectors() {
		id := c.submit(label, protocol.RequestSeries{Series: []protocol.Request{
			protocol.DetectorStartRequest{},
			protocol.CalibrationResolutionListRequest{},
		}})
		c.pendingIDs = append(c.pendingIDs, id)
	}
}

func (c *Controller) enterGetResolutions() {
	c.phase = phaseGetResolutions
	for _, label := range c.ListConnectedDetectors() {
		id := c.submit(label, protocol.RequestSeries{Series: []protocol.Request{
			protocol.CalibrationResolutionListRequest{},
			protocol.CameraParametersGetRequest{},
		}})
		c.pendingIDs = append(c.pendingIDs, id)
	}
}

func (c *Controller) enterListIntrinsics() {
	c.phase = phaseListIntrinsics
	for _, label := range c.ListConnectedDetectors() {
		live := c.peers[label].detector
		if live.currentResolution == nil {
			c.status.Enqueue(protocol.SeverityError, fmt.Sprintf(
				"Detector %s did not report its capture resolution. No intrinsics will be set.",
				label))
			continue
		}
		resolution := *live.currentResolution
		if !live.hasCalibrationFor(label, resolution) {
			c.status.Enqueue(protocol.SeverityError, fmt.Sprintf(
				"No calibration available for detector %s at resolution %s. No intrinsics will be set.",
				label, resolution))
			continue
		}
		id := c.submit(label, protocol.RequestSeries{Series: []protocol.Request{
			protocol.CalibrationResultMetadataListRequest{
				DetectorSerialIdentifier: label,
				ImageResolution:          resolution,
			},
		}})
		c.pendingIDs = append(c.pendingIDs, id)
	}
}

func (c *Controller) enterGetIntrinsics() {
	c.phase = phaseGetIntrinsics
	for _, label := range c.ListConnectedDetectors() {
		live := c.peers[label].detector
		if live.calibrationResultID == "" {
			continue
		}
		id := c.submit(label, protocol.RequestSeries{Series: []protocol.Request{
			protocol.CalibrationResultGetRequest{ResultIdentifier: live.calibrationResultID},
		}})
		c.pendingIDs = append(c.pendingIDs, id)
	}
}

func (c *Controller) enterSetIntrinsics() {
	c.phase = phaseSetIntrinsics
	if c.mode == DetectingOnly {
		return
	}
	for _, solverLabel := range c.ListConnectedPoseSolvers() {
		requests := make([]protocol.Request, 0)
		for _, detectorLabel := range c.ListConnectedDetectors() {
			live := c.peers[detectorLabel].detector
			if live.intrinsics == nil {
				continue
			}
			requests = append(requests, protocol.SetIntrinsicParametersRequest{
				DetectorLabel:       detectorLabel,
				IntrinsicParameters: *live.intrinsics,
			})
		}
		requests = append(requests, protocol.PoseSolverStartRequest{})
		id := c.submit(solverLabel, protocol.RequestSeries{Series: requests})
		c.pendingIDs = append(c.pendingIDs, id)
	}
}

// -------------------------------------------------------------------------
// Pending drain & phase advancement
// -------------------------------------------------------------------------

// drainPending claims completed pending request ids and, whenever the set
// drains while a startup or stop run is in progress, fires the next phase.
// The advance cascades: a phase that submits nothing (no eligible peers)
// falls straight through to the next.
func (c *Controller) drainPending() {
	for {
		remaining := c.pendingIDs[:0]
		for _, id := range c.pendingIDs {
			series, err := c.correlator.TryClaim(id)
			if err != nil {
				// The id was ignored out from under the pending set; drop it.
				continue
			}
			if series == nil {
				remaining = append(remaining, id)
				continue
			}
			c.metrics.RecordSeriesClaimed(series.Responder)
			c.handleResponseSeries(series, "", 0)
		}
		c.pendingIDs = remaining

		if len(c.pendingIDs) > 0 {
			return
		}
		if c.systemStatus != SystemStarting && c.systemStatus != SystemStopping {
			return
		}
		c.advancePhase()
	}
}

// advancePhase fires the next phase's entry action once the current phase's
// pending ids have all been claimed.
func (c *Controller) advancePhase() {
	if c.systemStatus == SystemStopping {
		c.status.Enqueue(protocol.SeverityDebug, "Stop complete.")
		c.systemStatus = SystemStopped
		c.phase = phaseInitial
		return
	}

	c.status.Enqueue(protocol.SeverityDebug,
		fmt.Sprintf("Startup phase %s complete.", c.phase))

	switch c.phase {
	case phaseStartingCapture:
		c.enterGetResolutions()
	case phaseGetResolutions:
		c.enterListIntrinsics()
	case phaseListIntrinsics:
		c.enterGetIntrinsics()
	case phaseGetIntrinsics:
		c.enterSetIntrinsics()
	case phaseSetIntrinsics, phaseInitial:
		c.systemStatus = SystemRunning
		c.phase = phaseInitial
	}
}
