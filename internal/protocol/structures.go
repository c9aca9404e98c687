package protocol

import (
	"fmt"
	"time"
)

// -------------------------------------------------------------------------
// Resolutions & Calibration
// -------------------------------------------------------------------------

// ImageResolution is a capture resolution in pixels.
type ImageResolution struct {
	XPx int `json:"x_px"`
	YPx int `json:"y_px"`
}

// String formats the resolution as "WxH", e.g. "1920x1080".
func (r ImageResolution) String() string {
	return fmt.Sprintf("%dx%d", r.XPx, r.YPx)
}

// DetectorResolution pairs a detector serial identifier with one of its
// capture resolutions. Calibration data is stored per such pair.
type DetectorResolution struct {
	DetectorSerialIdentifier string          `json:"detector_serial_identifier"`
	ImageResolution          ImageResolution `json:"image_resolution"`
}

// IntrinsicParameters holds the per-camera optical calibration: focal
// lengths, principal point, and lens distortion coefficients.
type IntrinsicParameters struct {
	FocalLengthXPx                   float64   `json:"focal_length_x_px"`
	FocalLengthYPx                   float64   `json:"focal_length_y_px"`
	OpticalCenterXPx                 float64   `json:"optical_center_x_px"`
	OpticalCenterYPx                 float64   `json:"optical_center_y_px"`
	RadialDistortionCoefficients     []float64 `json:"radial_distortion_coefficients"`
	TangentialDistortionCoefficients []float64 `json:"tangential_distortion_coefficients"`
}

// IntrinsicCalibration is a stored calibration result: which detector and
// resolution it applies to, when it was computed, and the calibrated values.
type IntrinsicCalibration struct {
	DetectorSerialIdentifier string              `json:"detector_serial_identifier"`
	ImageResolution          ImageResolution     `json:"image_resolution"`
	TimestampUTC             string              `json:"timestamp_utc"`
	CalibratedValues         IntrinsicParameters `json:"calibrated_values"`
}

// CalibrationResultState marks a stored calibration result for retention.
type CalibrationResultState string

const (
	CalibrationResultStateStaged   CalibrationResultState = "staged"
	CalibrationResultStateRetained CalibrationResultState = "retained"
	CalibrationResultStateDeleted  CalibrationResultState = "deleted"
)

// CalibrationResultMetadata describes a stored calibration result without
// carrying the calibrated values themselves.
type CalibrationResultMetadata struct {
	Identifier   string                 `json:"identifier"`
	TimestampUTC string                 `json:"timestamp_utc"`
	State        CalibrationResultState `json:"state,omitempty"`
}

// CalibrationImageState marks a stored calibration image for retention.
type CalibrationImageState string

const (
	CalibrationImageStateSelect CalibrationImageState = "select"
	CalibrationImageStateIgnore CalibrationImageState = "ignore"
	CalibrationImageStateDelete CalibrationImageState = "delete"
)

// CalibrationImageMetadata describes a stored calibration input image.
type CalibrationImageMetadata struct {
	Identifier string                `json:"identifier"`
	Label      string                `json:"label,omitempty"`
	State      CalibrationImageState `json:"state,omitempty"`
}

// CaptureFormat names an image encoding used for camera image transfer.
type CaptureFormat string

const (
	CaptureFormatPNG CaptureFormat = ".png"
	CaptureFormatJPG CaptureFormat = ".jpg"
)

// -------------------------------------------------------------------------
// Markers & Poses
// -------------------------------------------------------------------------

// MarkerCornerImagePoint is one marker corner in image coordinates.
type MarkerCornerImagePoint struct {
	XPx float64 `json:"x_px"`
	YPx float64 `json:"y_px"`
}

// MarkerSnapshot is one fiducial marker's corner observations in a single
// captured frame.
type MarkerSnapshot struct {
	Label             string                   `json:"label"`
	CornerImagePoints []MarkerCornerImagePoint `json:"corner_image_points"`
}

// Matrix4x4 is a rigid transform, 16 values in row-major order.
type Matrix4x4 struct {
	Values []float64 `json:"values"`
}

// Identity returns the 4x4 identity transform.
func Identity() Matrix4x4 {
	return Matrix4x4{Values: []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Pose is a solved 6-DoF pose of a target or detector relative to the
// solver's reference frame.
type Pose struct {
	TargetID                  string    `json:"target_id"`
	ObjectToReferenceMatrix   Matrix4x4 `json:"object_to_reference_matrix"`
	SolverTimestampUTCISO8601 string    `json:"solver_timestamp_utc_iso8601"`
}

// TargetMarker is a single-marker tracking target.
type TargetMarker struct {
	MarkerID       int     `json:"marker_id"`
	MarkerDiameter float64 `json:"marker_diameter"`
}

// TargetBoard is a rigid multi-marker tracking target. Corner positions are
// expressed in the board's own coordinate system, four rows per marker.
type TargetBoard struct {
	Label     string      `json:"label"`
	MarkerIDs []int       `json:"marker_ids"`
	Points    [][]float64 `json:"points"`
}

// KeyValue is one named camera parameter.
type KeyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// DetectionParameters holds the marker-detection tuning parameters.
type DetectionParameters struct {
	AdaptiveThreshWinSizeMin  int     `json:"adaptive_thresh_win_size_min,omitempty"`
	AdaptiveThreshWinSizeMax  int     `json:"adaptive_thresh_win_size_max,omitempty"`
	AdaptiveThreshWinSizeStep int     `json:"adaptive_thresh_win_size_step,omitempty"`
	AdaptiveThreshConstant    float64 `json:"adaptive_thresh_constant,omitempty"`
	MinMarkerPerimeterRate    float64 `json:"min_marker_perimeter_rate,omitempty"`
	MaxMarkerPerimeterRate    float64 `json:"max_marker_perimeter_rate,omitempty"`
}

// -------------------------------------------------------------------------
// Status Messages
// -------------------------------------------------------------------------

// Severity is the level of a status message.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// StatusMessage is the envelope for human-readable component log messages.
// Remote components accumulate these and hand them over through the
// dequeue_status_messages exchange; the controller stamps SourceLabel with
// the label of the peer that produced the message.
type StatusMessage struct {
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	SourceLabel string   `json:"source_label,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// ParseTimestampUTC parses an ISO-8601 timestamp as used in calibration
// result metadata and status messages. Returns the zero time on failure so
// unparseable records lose any "newest" comparison.
func ParseTimestampUTC(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
