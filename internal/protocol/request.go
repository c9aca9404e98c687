package protocol

// Request is one typed request record in a request series. The concrete
// variants form a closed set: each carries a unique parsable_type tag that
// the remote component dispatches on. The unexported marker method keeps the
// set closed to this package.
type Request interface {
	// ParsableType returns the wire tag identifying the request variant.
	ParsableType() string

	isRequest()
}

// -------------------------------------------------------------------------
// Generic
// -------------------------------------------------------------------------

// DequeueStatusMessagesRequest asks a component to hand over and clear its
// accumulated status messages. Issued by the supervisor on every tick so a
// peer never silently accumulates log backlog.
type DequeueStatusMessagesRequest struct{}

func (DequeueStatusMessagesRequest) ParsableType() string { return TypeDequeueStatusMessages }
func (DequeueStatusMessagesRequest) isRequest()           {}

// -------------------------------------------------------------------------
// Detector — capture
// -------------------------------------------------------------------------

// DetectorStartRequest starts frame capture on a detector.
type DetectorStartRequest struct{}

func (DetectorStartRequest) ParsableType() string { return TypeDetectorStart }
func (DetectorStartRequest) isRequest()           {}

// DetectorStopRequest stops frame capture on a detector.
type DetectorStopRequest struct{}

func (DetectorStopRequest) ParsableType() string { return TypeDetectorStop }
func (DetectorStopRequest) isRequest()           {}

// DetectorFrameGetRequest polls a detector for its most recent marker
// snapshot set.
type DetectorFrameGetRequest struct {
	IncludeDetected bool `json:"include_detected"`
	IncludeRejected bool `json:"include_rejected"`
}

func (DetectorFrameGetRequest) ParsableType() string { return TypeDetectorFrameGet }
func (DetectorFrameGetRequest) isRequest()           {}

// CameraParametersGetRequest reads a detector's current capture properties.
type CameraParametersGetRequest struct{}

func (CameraParametersGetRequest) ParsableType() string { return TypeCameraParametersGet }
func (CameraParametersGetRequest) isRequest()           {}

// CameraParametersSetRequest changes a detector's capture properties.
type CameraParametersSetRequest struct {
	Parameters []KeyValue `json:"parameters"`
}

func (CameraParametersSetRequest) ParsableType() string { return TypeCameraParametersSet }
func (CameraParametersSetRequest) isRequest()           {}

// CameraImageGetRequest fetches the detector's current camera image.
type CameraImageGetRequest struct {
	Format CaptureFormat `json:"format"`
}

func (CameraImageGetRequest) ParsableType() string { return TypeCameraImageGet }
func (CameraImageGetRequest) isRequest()           {}

// MarkerParametersGetRequest reads a detector's marker-detection parameters.
type MarkerParametersGetRequest struct{}

func (MarkerParametersGetRequest) ParsableType() string { return TypeMarkerParametersGet }
func (MarkerParametersGetRequest) isRequest()           {}

// MarkerParametersSetRequest changes a detector's marker-detection parameters.
type MarkerParametersSetRequest struct {
	Parameters DetectionParameters `json:"parameters"`
}

func (MarkerParametersSetRequest) ParsableType() string { return TypeMarkerParametersSet }
func (MarkerParametersSetRequest) isRequest()           {}

// -------------------------------------------------------------------------
// Detector — calibration store
// -------------------------------------------------------------------------

// CalibrationResolutionListRequest lists the resolutions for which the
// detector holds calibration data.
type CalibrationResolutionListRequest struct{}

func (CalibrationResolutionListRequest) ParsableType() string { return TypeCalibrationResolutionList }
func (CalibrationResolutionListRequest) isRequest()           {}

// CalibrationResultMetadataListRequest lists stored calibration results for
// one detector at one resolution.
type CalibrationResultMetadataListRequest struct {
	DetectorSerialIdentifier string          `json:"detector_serial_identifier"`
	ImageResolution          ImageResolution `json:"image_resolution"`
}

func (CalibrationResultMetadataListRequest) ParsableType() string {
	return TypeCalibrationResultMetadataList
}
func (CalibrationResultMetadataListRequest) isRequest() {}

// CalibrationResultMetadataUpdateRequest changes the retention state of a
// stored calibration result.
type CalibrationResultMetadataUpdateRequest struct {
	ResultIdentifier string                 `json:"result_identifier"`
	ResultState      CalibrationResultState `json:"result_state"`
}

func (CalibrationResultMetadataUpdateRequest) ParsableType() string {
	return TypeCalibrationResultMetadataUpdate
}
func (CalibrationResultMetadataUpdateRequest) isRequest() {}

// CalibrationResultGetRequest fetches one stored calibration result.
type CalibrationResultGetRequest struct {
	ResultIdentifier string `json:"result_identifier"`
}

func (CalibrationResultGetRequest) ParsableType() string { return TypeCalibrationResultGet }
func (CalibrationResultGetRequest) isRequest()           {}

// CalibrationImageAddRequest stages a calibration input image. The detector
// infers the resolution from the image itself.
type CalibrationImageAddRequest struct {
	DetectorSerialIdentifier string        `json:"detector_serial_identifier"`
	Format                   CaptureFormat `json:"format"`
	ImageBase64              string        `json:"image_base64"`
}

func (CalibrationImageAddRequest) ParsableType() string { return TypeCalibrationImageAdd }
func (CalibrationImageAddRequest) isRequest()           {}

// CalibrationImageGetRequest fetches one stored calibration input image.
type CalibrationImageGetRequest struct {
	ImageIdentifier string `json:"image_identifier"`
}

func (CalibrationImageGetRequest) ParsableType() string { return TypeCalibrationImageGet }
func (CalibrationImageGetRequest) isRequest()           {}

// CalibrationImageMetadataListRequest lists stored calibration input images
// for one detector at one resolution.
type CalibrationImageMetadataListRequest struct {
	DetectorSerialIdentifier string          `json:"detector_serial_identifier"`
	ImageResolution          ImageResolution `json:"image_resolution"`
}

func (CalibrationImageMetadataListRequest) ParsableType() string {
	return TypeCalibrationImageMetadataList
}
func (CalibrationImageMetadataListRequest) isRequest() {}

// CalibrationImageMetadataUpdateRequest changes the label or retention state
// of a stored calibration input image.
type CalibrationImageMetadataUpdateRequest struct {
	ImageIdentifier string                `json:"image_identifier"`
	ImageState      CalibrationImageState `json:"image_state"`
	ImageLabel      string                `json:"image_label"`
}

func (CalibrationImageMetadataUpdateRequest) ParsableType() string {
	return TypeCalibrationImageMetadataUpdate
}
func (CalibrationImageMetadataUpdateRequest) isRequest() {}

// CalibrationCalculateRequest computes a calibration result from the staged
// images for one detector at one resolution.
type CalibrationCalculateRequest struct {
	DetectorSerialIdentifier string          `json:"detector_serial_identifier"`
	ImageResolution          ImageResolution `json:"image_resolution"`
}

func (CalibrationCalculateRequest) ParsableType() string { return TypeCalibrationCalculate }
func (CalibrationCalculateRequest) isRequest()           {}

// CalibrationDeleteStagedRequest discards all staged calibration data.
type CalibrationDeleteStagedRequest struct{}

func (CalibrationDeleteStagedRequest) ParsableType() string { return TypeCalibrationDeleteStaged }
func (CalibrationDeleteStagedRequest) isRequest()           {}

// -------------------------------------------------------------------------
// Pose Solver
// -------------------------------------------------------------------------

// PoseSolverStartRequest starts pose solving.
type PoseSolverStartRequest struct{}

func (PoseSolverStartRequest) ParsableType() string { return TypePoseSolverStart }
func (PoseSolverStartRequest) isRequest()           {}

// PoseSolverStopRequest stops pose solving.
type PoseSolverStopRequest struct{}

func (PoseSolverStopRequest) ParsableType() string { return TypePoseSolverStop }
func (PoseSolverStopRequest) isRequest()           {}

// SetIntrinsicParametersRequest pushes one detector's intrinsic calibration
// into the solver.
type SetIntrinsicParametersRequest struct {
	DetectorLabel       string              `json:"detector_label"`
	IntrinsicParameters IntrinsicParameters `json:"intrinsic_parameters"`
}

func (SetIntrinsicParametersRequest) ParsableType() string { return TypeSetIntrinsicParameters }
func (SetIntrinsicParametersRequest) isRequest()           {}

// SetExtrinsicParametersRequest pushes one detector's rigid transform to the
// shared reference frame into the solver.
type SetExtrinsicParametersRequest struct {
	DetectorLabel        string    `json:"detector_label"`
	TransformToReference Matrix4x4 `json:"transform_to_reference"`
}

func (SetExtrinsicParametersRequest) ParsableType() string { return TypeSetExtrinsicParameters }
func (SetExtrinsicParametersRequest) isRequest()           {}

// SetReferenceMarkerRequest designates the marker that anchors the solver's
// reference frame.
type SetReferenceMarkerRequest struct {
	MarkerID       int     `json:"marker_id"`
	MarkerDiameter float64 `json:"marker_diameter"`
}

func (SetReferenceMarkerRequest) ParsableType() string { return TypeSetReferenceMarker }
func (SetReferenceMarkerRequest) isRequest()           {}

// AddTargetMarkerRequest registers a single-marker tracking target.
type AddTargetMarkerRequest struct {
	Target TargetMarker `json:"target"`
}

func (AddTargetMarkerRequest) ParsableType() string { return TypeAddTargetMarker }
func (AddTargetMarkerRequest) isRequest()           {}

// AddTargetBoardRequest registers a rigid multi-marker tracking target.
type AddTargetBoardRequest struct {
	Target TargetBoard `json:"target"`
}

func (AddTargetBoardRequest) ParsableType() string { return TypeAddTargetBoard }
func (AddTargetBoardRequest) isRequest()           {}

// SetTargetsRequest replaces the solver's full target set.
type SetTargetsRequest struct {
	TargetMarkers []TargetMarker `json:"target_markers"`
	TargetBoards  []TargetBoard  `json:"target_boards"`
}

func (SetTargetsRequest) ParsableType() string { return TypeSetTargets }
func (SetTargetsRequest) isRequest()           {}

// AddMarkerCornersRequest relays one detector's marker observations into the
// solver. DetectorTimestampUTCISO8601 is the controller-observed time of the
// snapshot set; the solver uses it to order observations per detector.
type AddMarkerCornersRequest struct {
	DetectedMarkerSnapshots     []MarkerSnapshot `json:"detected_marker_snapshots"`
	RejectedMarkerSnapshots     []MarkerSnapshot `json:"rejected_marker_snapshots"`
	DetectorLabel               string           `json:"detector_label"`
	DetectorTimestampUTCISO8601 string           `json:"detector_timestamp_utc_iso8601"`
}

func (AddMarkerCornersRequest) ParsableType() string { return TypeAddMarkerCorners }
func (AddMarkerCornersRequest) isRequest()           {}

// GetPosesRequest polls the solver for the current detector and target poses.
type GetPosesRequest struct{}

func (GetPosesRequest) ParsableType() string { return TypeGetPoses }
func (GetPosesRequest) isRequest()           {}
