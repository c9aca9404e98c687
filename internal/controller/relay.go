package controller

import (
	"time"

	"github.com/mcstrack/mcstrackd/internal/protocol"
)

// relayTick runs the steady-state per-frame work: poll every connected
// detector for fresh marker snapshots and feed every connected pose solver
// a batch of newly-arrived detector frames plus a pose query. Each peer has
// at most one relay request in flight; a new one is issued only after the
// previous response is claimed.
func (c *Controller) relayTick() {
	detectors := c.ListConnectedDetectors()
	solvers := c.ListConnectedPoseSolvers()

	for _, label := range detectors {
		c.relayDetector(label)
	}
	for _, label := range solvers {
		c.relayPoseSolver(label, detectors)
	}
}

// relayDetector claims a completed snapshot poll and issues the next one.
func (c *Controller) relayDetector(label string) {
	live := c.peers[label].detector

	if live.requestID != "" {
		series, err := c.correlator.TryClaim(live.requestID)
		if err != nil {
			// The id was ignored out from under the relay; issue a new poll.
			live.requestID = ""
		} else if series != nil {
			c.metrics.RecordSeriesClaimed(label)
			live.requestID = ""
			c.handleResponseSeries(series, "detector frame poll", 1)
		}
	}

	if live.requestID == "" {
		live.requestID = c.submit(label, protocol.RequestSeries{Series: []protocol.Request{
			protocol.DetectorFrameGetRequest{IncludeDetected: true, IncludeRejected: true},
		}})
	}
}

// relayPoseSolver claims a completed batch and issues the next one. The
// batch carries, per connected detector, the latest snapshot set not yet
// forwarded to this solver -- the per-detector timestamp map guarantees no
// snapshot set is ever sent twice -- followed by a pose query.
func (c *Controller) relayPoseSolver(label string, detectors []string) {
	live := c.peers[label].poseSolver

	if live.requestID != "" {
		series, err := c.correlator.TryClaim(live.requestID)
		if err != nil {
			live.requestID = ""
		} else if series != nil {
			c.metrics.RecordSeriesClaimed(label)
			live.requestID = ""
			c.handleResponseSeries(series, "pose solver batch", 0)
		}
	}

	if live.requestID != "" {
		return
	}

	requests := make([]protocol.Request, 0, len(detectors)+1)
	for _, detectorLabel := range detectors {
		detector := c.peers[detectorLabel].detector
		if !detector.markerSnapshotAt.After(live.detectorTimestamps[detectorLabel]) {
			continue
		}
		requests = append(requests, protocol.AddMarkerCornersRequest{
			DetectedMarkerSnapshots:     detector.detectedMarkerSnapshots,
			RejectedMarkerSnapshots:     detector.rejectedMarkerSnapshots,
			DetectorLabel:               detectorLabel,
			DetectorTimestampUTCISO8601: detector.markerSnapshotAt.UTC().Format(time.RFC3339Nano),
		})
		live.detectorTimestamps[detectorLabel] = detector.markerSnapshotAt
	}
	requests = append(requests, protocol.GetPosesRequest{})

	live.requestID = c.submit(label, protocol.RequestSeries{Series: requests})
}
