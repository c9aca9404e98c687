package protocol

// Wire tags for the parsable_type field. Response tags mirror the request
// tags of the operation they answer; empty and error stand alone.
const (
	// Generic.
	TypeDequeueStatusMessages = "dequeue_status_messages"
	TypeEmpty                 = "empty"
	TypeError                 = "error"

	// Detector capture and parameters.
	TypeDetectorStart       = "detector_start"
	TypeDetectorStop        = "detector_stop"
	TypeDetectorFrameGet    = "detector_frame_get"
	TypeCameraParametersGet = "detector_camera_parameters_get"
	TypeCameraParametersSet = "detector_camera_parameters_set"
	TypeCameraImageGet      = "detector_camera_image_get"
	TypeMarkerParametersGet = "detector_marker_parameters_get"
	TypeMarkerParametersSet = "detector_marker_parameters_set"

	// Detector calibration store.
	TypeCalibrationResolutionList       = "detector_calibration_detector_resolutions_list"
	TypeCalibrationResultMetadataList   = "detector_calibration_result_metadata_list"
	TypeCalibrationResultMetadataUpdate = "detector_calibration_result_metadata_update"
	TypeCalibrationResultGet            = "detector_calibration_result_get"
	TypeCalibrationImageAdd             = "detector_calibration_image_add"
	TypeCalibrationImageGet             = "detector_calibration_image_get"
	TypeCalibrationImageMetadataList    = "detector_calibration_image_metadata_list"
	TypeCalibrationImageMetadataUpdate  = "detector_calibration_image_metadata_update"
	TypeCalibrationCalculate            = "detector_calibration_calculate"
	TypeCalibrationDeleteStaged         = "detector_calibration_delete_staged"

	// Pose solver.
	TypePoseSolverStart        = "start_pose_solver"
	TypePoseSolverStop         = "stop_pose_solver"
	TypeSetIntrinsicParameters = "set_intrinsic_parameters"
	TypeSetExtrinsicParameters = "set_extrinsic_parameters"
	TypeSetReferenceMarker     = "set_reference_marker"
	TypeAddTargetMarker        = "add_target_marker"
	TypeAddTargetBoard         = "add_target_board"
	TypeSetTargets             = "set_targets"
	TypeAddMarkerCorners       = "add_marker_corners"
	TypeGetPoses               = "get_poses"
)
