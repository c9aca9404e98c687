package controller

import (
	"fmt"

	"github.com/mcstrack/mcstrackd/internal/protocol"
)

// handleResponseSeries applies a claimed response series to the per-peer
// live state, dispatching on the concrete response variant. The responder
// label identifies which peer's state to mutate.
//
// Returns false when the series contained an error or an unexpected
// response variant. Neither aborts processing of sibling responses; the
// controller degrades rather than terminates.
func (c *Controller) handleResponseSeries(
	series *protocol.ResponseSeries,
	taskDescription string,
	expectedResponseCount int,
) bool {
	if expectedResponseCount > 0 && len(series.Series) != expectedResponseCount {
		task := ""
		if taskDescription != "" {
			task = " during " + taskDescription
		}
		c.status.Enqueue(protocol.SeverityWarning, fmt.Sprintf(
			"Received a response series%s containing %d responses where %d were expected.",
			task, len(series.Series), expectedResponseCount))
	}

	success := true
	for _, response := range series.Series {
		switch r := response.(type) {
		case *protocol.EmptyResponse:

		case *protocol.ErrorResponse:
			c.status.Enqueue(protocol.SeverityError, fmt.Sprintf(
				"Received error from %s: %s", series.Responder, r.Message))
			success = false

		case *protocol.DequeueStatusMessagesResponse:
			for _, message := range r.StatusMessages {
				message.SourceLabel = series.Responder
				c.status.EnqueueRemote(message)
			}

		case *protocol.CalibrationResolutionListResponse:
			if live := c.detectorLive(series.Responder); live != nil {
				live.calibratedResolutions = r.DetectorResolutions
			}

		case *protocol.CameraParametersGetResponse:
			if live := c.detectorLive(series.Responder); live != nil {
				resolution := r.Resolution()
				live.currentResolution = &resolution
			}

		case *protocol.CalibrationResultMetadataListResponse:
			c.handleCalibrationResultMetadata(series.Responder, r)

		case *protocol.CalibrationResultGetResponse:
			if live := c.detectorLive(series.Responder); live != nil {
				values := r.IntrinsicCalibration.CalibratedValues
				live.intrinsics = &values
			}

		case *protocol.DetectorFrameGetResponse:
			if live := c.detectorLive(series.Responder); live != nil {
				live.detectedMarkerSnapshots = r.DetectedMarkerSnapshots
				live.rejectedMarkerSnapshots = r.RejectedMarkerSnapshots
				// TODO: adopt the detector's own clock once the peer
				// protocol carries a capture timestamp.
				live.markerSnapshotAt = c.now()
			}

		case *protocol.GetPosesResponse:
			if live := c.poseSolverLive(series.Responder); live != nil {
				live.detectorPoses = r.DetectorPoses
				live.targetPoses = r.TargetPoses
				live.posesAt = c.now()
			}

		case *protocol.AddTargetResponse:
			c.status.Enqueue(protocol.SeverityInfo, fmt.Sprintf(
				"Pose solver %s registered target %s.", series.Responder, r.TargetID))

		default:
			c.status.Enqueue(protocol.SeverityError, fmt.Sprintf(
				"Received unexpected response type %s from %s.",
				response.ParsableType(), series.Responder))
			success = false
		}
	}
	return success
}

// handleCalibrationResultMetadata chooses the newest calibration result for
// the responding detector. An empty list leaves the detector without
// intrinsics and reports the condition.
func (c *Controller) handleCalibrationResultMetadata(
	responder string,
	response *protocol.CalibrationResultMetadataListResponse,
) {
	live := c.detectorLive(responder)
	if live == nil {
		return
	}
	newest, ok := protocol.NewestCalibrationResult(response.MetadataList)
	if !ok {
		c.status.Enqueue(protocol.SeverityError, fmt.Sprintf(
			"No calibration was available for detector %s. No intrinsics will be set.",
			responder))
		return
	}
	live.calibrationResultID = newest.Identifier
}

// detectorLive returns the detector live state for a label, or nil when the
// label is unknown or not a detector.
func (c *Controller) detectorLive(label string) *detectorLive {
	p, exists := c.peers[label]
	if !exists {
		return nil
	}
	return p.detector
}

// poseSolverLive returns the pose solver live state for a label, or nil
// when the label is unknown or not a pose solver.
func (c *Controller) poseSolverLive(label string) *poseSolverLive {
	p, exists := c.peers[label]
	if !exists {
		return nil
	}
	return p.poseSolver
}
