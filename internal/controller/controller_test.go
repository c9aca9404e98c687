package controller_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mcstrack/mcstrackd/internal/controller"
	"github.com/mcstrack/mcstrackd/internal/protocol"
	"github.com/mcstrack/mcstrackd/internal/transport"
)

// -------------------------------------------------------------------------
// Fakes: manual clock, scripted peers, in-memory dialer
// -------------------------------------------------------------------------

type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakePeer simulates one remote component process reachable at one address.
type fakePeer struct {
	// dialFailures is how many dial attempts to refuse; -1 refuses forever.
	dialFailures int
	dialCount    int

	// exchangeErr, when set, fails every exchange on open connections.
	exchangeErr error

	// handle answers a single request. Installed by the detector/solver
	// simulators below.
	handle func(request protocol.Request) protocol.Response

	// exchanges records every request series received, in order.
	exchanges []protocol.RequestSeries
}

// requestTags flattens the recorded request tags, skipping the given tags.
func (p *fakePeer) requestTags(skip ...string) []string {
	flattened := make([]string, 0)
	for _, series := range p.exchanges {
		for _, request := range series.Series {
			if slices.Contains(skip, request.ParsableType()) {
				continue
			}
			flattened = append(flattened, request.ParsableType())
		}
	}
	return flattened
}

// countTag returns how many recorded requests carry the given tag.
func (p *fakePeer) countTag(tag string) int {
	count := 0
	for _, series := range p.exchanges {
		for _, request := range series.Series {
			if request.ParsableType() == tag {
				count++
			}
		}
	}
	return count
}

type fakeDialer struct {
	peers map[string]*fakePeer // keyed "host:port"
}

func (d *fakeDialer) Dial(_ context.Context, host string, port uint16) (transport.Conn, error) {
	p, exists := d.peers[fmt.Sprintf("%s:%d", host, port)]
	if !exists {
		return nil, errors.New("connection refused")
	}
	p.dialCount++
	if p.dialFailures < 0 || p.dialCount <= p.dialFailures {
		return nil, errors.New("connection refused")
	}
	return &fakeConn{peer: p}, nil
}

type fakeConn struct {
	peer   *fakePeer
	closed bool
}

func (c *fakeConn) Exchange(
	_ context.Context,
	series protocol.RequestSeries,
	_ *protocol.Registry,
) (protocol.ResponseSeries, error) {
	if c.closed {
		return protocol.ResponseSeries{}, errors.New("connection closed")
	}
	if c.peer.exchangeErr != nil {
		return protocol.ResponseSeries{}, c.peer.exchangeErr
	}
	c.peer.exchanges = append(c.peer.exchanges, series)
	responses := make([]protocol.Response, 0, len(series.Series))
	for _, request := range series.Series {
		responses = append(responses, c.peer.handle(request))
	}
	return protocol.ResponseSeries{Series: responses}, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// detectorSim configures a scripted detector component.
type detectorSim struct {
	calibratedResolutions []protocol.DetectorResolution
	currentResolution     protocol.ImageResolution
	resultMetadata        []protocol.CalibrationResultMetadata
	results               map[string]protocol.IntrinsicCalibration
	detectedSnapshots     []protocol.MarkerSnapshot
	statusMessages        []protocol.StatusMessage
}

func (s *detectorSim) handler() func(protocol.Request) protocol.Response {
	return func(request protocol.Request) protocol.Response {
		switch r := request.(type) {
		case protocol.DequeueStatusMessagesRequest:
			drained := s.statusMessages
			s.statusMessages = nil
			return &protocol.DequeueStatusMessagesResponse{StatusMessages: drained}
		case protocol.DetectorStartRequest, protocol.DetectorStopRequest:
			return &protocol.EmptyResponse{}
		case protocol.CalibrationResolutionListRequest:
			return &protocol.CalibrationResolutionListResponse{
				DetectorResolutions: s.calibratedResolutions,
			}
		case protocol.CameraParametersGetRequest:
			return &protocol.CameraParametersGetResponse{
				ResolutionXPx: s.currentResolution.XPx,
				ResolutionYPx: s.currentResolution.YPx,
			}
		case protocol.CalibrationResultMetadataListRequest:
			return &protocol.CalibrationResultMetadataListResponse{MetadataList: s.resultMetadata}
		case protocol.CalibrationResultGetRequest:
			if calibration, exists := s.results[r.ResultIdentifier]; exists {
				return &protocol.CalibrationResultGetResponse{IntrinsicCalibration: calibration}
			}
			return &protocol.ErrorResponse{Message: "no such calibration result"}
		case protocol.DetectorFrameGetRequest:
			return &protocol.DetectorFrameGetResponse{
				DetectedMarkerSnapshots: s.detectedSnapshots,
			}
		default:
			return &protocol.ErrorResponse{
				Message: "unsupported request " + request.ParsableType(),
			}
		}
	}
}

// solverSim configures a scripted pose solver component.
type solverSim struct {
	targetPoses []protocol.Pose
}

func (s *solverSim) handler() func(protocol.Request) protocol.Response {
	return func(request protocol.Request) protocol.Response {
		switch request.(type) {
		case protocol.DequeueStatusMessagesRequest:
			return &protocol.DequeueStatusMessagesResponse{}
		case protocol.GetPosesRequest:
			return &protocol.GetPosesResponse{TargetPoses: s.targetPoses}
		default:
			return &protocol.EmptyResponse{}
		}
	}
}

// harness bundles a controller with its fake fleet and clock.
type harness struct {
	t      *testing.T
	clock  *manualClock
	dialer *fakeDialer
	ctrl   *controller.Controller
}

func newHarness(t *testing.T, opts ...controller.Option) *harness {
	t.Helper()
	clock := newManualClock()
	dialer := &fakeDialer{peers: make(map[string]*fakePeer)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]controller.Option{controller.WithClock(clock.Now)}, opts...)
	return &harness{
		t:      t,
		clock:  clock,
		dialer: dialer,
		ctrl:   controller.New(logger, dialer, opts...),
	}
}

// addPeer registers a peer both with the fake fleet and the controller.
func (h *harness) addPeer(label string, role controller.Role, port uint16, peer *fakePeer) *fakePeer {
	h.t.Helper()
	h.dialer.peers[fmt.Sprintf("10.0.0.1:%d", port)] = peer
	if err := h.ctrl.AddPeer(controller.PeerAddress{
		Label: label, Role: role, Host: "10.0.0.1", Port: port,
	}); err != nil {
		h.t.Fatalf("AddPeer(%s) error = %v", label, err)
	}
	return peer
}

func (h *harness) connect(label string) {
	h.t.Helper()
	if err := h.ctrl.ConnectPeer(label); err != nil {
		h.t.Fatalf("ConnectPeer(%s) error = %v", label, err)
	}
}

func (h *harness) tick(n int) {
	h.t.Helper()
	for range n {
		h.ctrl.Tick(context.Background())
	}
}

// tickUntilRunning ticks until the system reports running, failing the test
// if it does not get there within the bound.
func (h *harness) tickUntilRunning(bound int) {
	h.t.Helper()
	for range bound {
		if h.ctrl.SystemStatus() == controller.SystemRunning {
			return
		}
		h.ctrl.Tick(context.Background())
	}
	if h.ctrl.SystemStatus() != controller.SystemRunning {
		h.t.Fatalf("system status = %s after %d ticks, want running", h.ctrl.SystemStatus(), bound)
	}
}

func (h *harness) reportFor(label string) controller.ConnectionReport {
	h.t.Helper()
	for _, report := range h.ctrl.ListConnectionReports() {
		if report.Label == label {
			return report
		}
	}
	h.t.Fatalf("no connection report for %s", label)
	return controller.ConnectionReport{}
}

func severityCount(messages []protocol.StatusMessage, severity protocol.Severity) int {
	count := 0
	for _, message := range messages {
		if message.Severity == severity {
			count++
		}
	}
	return count
}

// calibratedDetector returns a simulator with a matching 1920x1080
// calibration and two stored results, the newer of which wins.
func calibratedDetector(label string) *detectorSim {
	resolution := protocol.ImageResolution{XPx: 1920, YPx: 1080}
	return &detectorSim{
		calibratedResolutions: []protocol.DetectorResolution{
			{DetectorSerialIdentifier: label, ImageResolution: resolution},
		},
		currentResolution: resolution,
		resultMetadata: []protocol.CalibrationResultMetadata{
			{Identifier: "cal-old", TimestampUTC: "2025-11-02T08:00:00Z"},
			{Identifier: "cal-new", TimestampUTC: "2026-06-15T10:30:00Z"},
		},
		results: map[string]protocol.IntrinsicCalibration{
			"cal-new": {
				DetectorSerialIdentifier: label,
				ImageResolution:          resolution,
				TimestampUTC:             "2026-06-15T10:30:00Z",
				CalibratedValues: protocol.IntrinsicParameters{
					FocalLengthXPx:   600.5,
					FocalLengthYPx:   601.25,
					OpticalCenterXPx: 960,
					OpticalCenterYPx: 540,
				},
			},
		},
		detectedSnapshots: []protocol.MarkerSnapshot{
			{Label: "11", CornerImagePoints: []protocol.MarkerCornerImagePoint{
				{XPx: 100, YPx: 100}, {XPx: 140, YPx: 100},
				{XPx: 140, YPx: 140}, {XPx: 100, YPx: 140},
			}},
		},
	}
}

// -------------------------------------------------------------------------
// Fleet membership & connection lifecycle
// -------------------------------------------------------------------------

// TestAddRemovePeerRoundTrip verifies add/remove idempotence: removing and
// re-adding a peer leaves the fleet equivalent to a single add.
func TestAddRemovePeerRoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	address := controller.PeerAddress{
		Label: "d1", Role: controller.RoleDetector, Host: "10.0.0.1", Port: 8001,
	}
	if err := h.ctrl.AddPeer(address); err != nil {
		t.Fatalf("AddPeer() error = %v", err)
	}
	if err := h.ctrl.AddPeer(address); !errors.Is(err, controller.ErrDuplicateLabel) {
		t.Fatalf("duplicate AddPeer() error = %v, want ErrDuplicateLabel", err)
	}
	if err := h.ctrl.RemovePeer("d1"); err != nil {
		t.Fatalf("RemovePeer() error = %v", err)
	}
	if err := h.ctrl.RemovePeer("d1"); !errors.Is(err, controller.ErrUnknownLabel) {
		t.Fatalf("RemovePeer() on missing label error = %v, want ErrUnknownLabel", err)
	}
	if err := h.ctrl.AddPeer(address); err != nil {
		t.Fatalf("re-AddPeer() error = %v", err)
	}

	reports := h.ctrl.ListConnectionReports()
	if len(reports) != 1 {
		t.Fatalf("reports = %d entries, want 1", len(reports))
	}
	want := controller.ConnectionReport{
		Label: "d1", Role: controller.RoleDetector,
		Host: "10.0.0.1", Port: 8001, Status: "disconnected",
	}
	if reports[0] != want {
		t.Errorf("report = %+v, want %+v", reports[0], want)
	}
}

// TestAddPeerInvalidRole verifies role validation.
func TestAddPeerInvalidRole(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.ctrl.AddPeer(controller.PeerAddress{
		Label: "x", Role: "calibrator", Host: "10.0.0.1", Port: 1,
	})
	if !errors.Is(err, controller.ErrInvalidRole) {
		t.Fatalf("AddPeer() error = %v, want ErrInvalidRole", err)
	}
}

// TestConnectDisconnectLifecycle walks a peer through connect and
// disconnect across ticks.
func TestConnectDisconnectLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sim := calibratedDetector("d1")
	h.addPeer("d1", controller.RoleDetector, 8001, &fakePeer{handle: sim.handler()})

	if got := h.reportFor("d1").Status; got != "disconnected" {
		t.Fatalf("initial status = %s, want disconnected", got)
	}

	h.connect("d1")
	if got := h.reportFor("d1").Status; got != "connecting" {
		t.Fatalf("status after ConnectPeer = %s, want connecting", got)
	}

	h.tick(1)
	if got := h.reportFor("d1").Status; got != "connected" {
		t.Fatalf("status after tick = %s, want connected", got)
	}
	if got := h.ctrl.ListConnectedDetectors(); !slices.Equal(got, []string{"d1"}) {
		t.Fatalf("ListConnectedDetectors() = %v, want [d1]", got)
	}

	if err := h.ctrl.DisconnectPeer("d1"); err != nil {
		t.Fatalf("DisconnectPeer() error = %v", err)
	}
	if got := h.reportFor("d1").Status; got != "disconnecting" {
		t.Fatalf("status after DisconnectPeer = %s, want disconnecting", got)
	}
	h.tick(1)
	if got := h.reportFor("d1").Status; got != "disconnected" {
		t.Fatalf("status after close tick = %s, want disconnected", got)
	}
}

// TestRetryThenAbort exercises the bounded-retry path: with an attempt
// limit of 3 and nothing listening, the peer ends aborted with three
// warnings and one final error.
func TestRetryThenAbort(t *testing.T) {
	t.Parallel()

	h := newHarness(t, controller.WithRetryPolicy(3, 5*time.Second))
	h.addPeer("x", controller.RoleDetector, 9999, &fakePeer{
		dialFailures: -1,
		handle:       func(protocol.Request) protocol.Response { return &protocol.EmptyResponse{} },
	})
	h.connect("x")

	h.tick(1) // attempt 1
	if got := h.reportFor("x").Status; got != "connecting" {
		t.Fatalf("status after first failure = %s, want connecting", got)
	}

	h.tick(1) // inside the retry gap: no attempt
	h.clock.Advance(5 * time.Second)
	h.tick(1) // attempt 2
	h.clock.Advance(5 * time.Second)
	h.tick(1) // attempt 3: limit reached

	if got := h.reportFor("x").Status; got != "aborted" {
		t.Fatalf("status = %s, want aborted", got)
	}
	if got := h.dialer.peers["10.0.0.1:9999"].dialCount; got != 3 {
		t.Fatalf("dial count = %d, want 3", got)
	}

	messages := h.ctrl.DrainStatusMessages()
	if got := severityCount(messages, protocol.SeverityWarning); got != 3 {
		t.Errorf("warning count = %d, want 3", got)
	}
	if got := severityCount(messages, protocol.SeverityError); got != 1 {
		t.Errorf("error count = %d, want 1", got)
	}

	// Aborted stays terminal across ticks until the façade re-arms it.
	h.clock.Advance(time.Minute)
	h.tick(3)
	if got := h.reportFor("x").Status; got != "aborted" {
		t.Fatalf("status after further ticks = %s, want aborted", got)
	}
	h.connect("x")
	if got := h.reportFor("x").Status; got != "connecting" {
		t.Fatalf("status after re-arm = %s, want connecting", got)
	}
}

// TestReconnectAfterExchangeFailure verifies that a socket error while
// connected sends the session back to connecting and that the next tick
// reconnects immediately.
func TestReconnectAfterExchangeFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sim := calibratedDetector("d1")
	peer := h.addPeer("d1", controller.RoleDetector, 8001, &fakePeer{handle: sim.handler()})
	h.connect("d1")
	h.tick(1)
	if got := h.reportFor("d1").Status; got != "connected" {
		t.Fatalf("status = %s, want connected", got)
	}

	peer.exchangeErr = errors.New("broken pipe")
	h.tick(1)
	if got := h.reportFor("d1").Status; got != "connecting" {
		t.Fatalf("status after exchange failure = %s, want connecting", got)
	}

	peer.exchangeErr = nil
	h.tick(1)
	if got := h.reportFor("d1").Status; got != "connected" {
		t.Fatalf("status after reconnect = %s, want connected", got)
	}
	if peer.dialCount != 2 {
		t.Errorf("dial count = %d, want 2", peer.dialCount)
	}
}

// -------------------------------------------------------------------------
// Startup scenarios
// -------------------------------------------------------------------------

// TestColdStartDetectingOnly walks one detector through the full startup in
// detecting-only mode and pins the exact request tag order on the wire.
func TestColdStartDetectingOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sim := calibratedDetector("d1")
	peer := h.addPeer("d1", controller.RoleDetector, 8001, &fakePeer{handle: sim.handler()})
	h.connect("d1")
	h.tick(1)

	if err := h.ctrl.StartTracking(controller.DetectingOnly); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	if got := h.ctrl.SystemStatus(); got != controller.SystemStarting {
		t.Fatalf("system status = %s, want starting", got)
	}

	h.tickUntilRunning(10)

	wantTags := []string{
		"detector_start",
		"detector_calibration_detector_resolutions_list",
		"detector_calibration_detector_resolutions_list",
		"detector_camera_parameters_get",
		"detector_calibration_result_metadata_list",
		"detector_calibration_result_get",
	}
	got := peer.requestTags("dequeue_status_messages", "detector_frame_get")
	if !slices.Equal(got, wantTags) {
		t.Errorf("request tags = %v, want %v", got, wantTags)
	}

	intrinsics, ok := h.ctrl.DetectorIntrinsics("d1")
	if !ok {
		t.Fatal("DetectorIntrinsics() ok = false, want populated intrinsics")
	}
	if intrinsics.FocalLengthXPx != 600.5 {
		t.Errorf("focal length = %v, want the newest calibration result's 600.5", intrinsics.FocalLengthXPx)
	}
	if got := h.ctrl.PendingStartupRequests(); got != 0 {
		t.Errorf("pending startup requests = %d, want 0", got)
	}
}

// TestStartTrackingSolving verifies that detecting-and-solving mode pushes
// intrinsics into the solver before starting it.
func TestStartTrackingSolving(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.addPeer("d1", controller.RoleDetector, 8001,
		&fakePeer{handle: calibratedDetector("d1").handler()})
	solver := h.addPeer("p1", controller.RolePoseSolver, 8101,
		&fakePeer{handle: (&solverSim{}).handler()})
	h.connect("d1")
	h.connect("p1")
	h.tick(1)

	if err := h.ctrl.StartTracking(controller.DetectingAndSolving); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	h.tickUntilRunning(12)

	// The solver's startup series is set_intrinsic_parameters for d1
	// followed by start_pose_solver, in one batch.
	var startupSeries []string
	for _, series := range solver.exchanges {
		tags := make([]string, 0, len(series.Series))
		for _, request := range series.Series {
			tags = append(tags, request.ParsableType())
		}
		if slices.Contains(tags, "start_pose_solver") {
			startupSeries = tags
			break
		}
	}
	want := []string{"set_intrinsic_parameters", "start_pose_solver"}
	if !slices.Equal(startupSeries, want) {
		t.Errorf("solver startup series = %v, want %v", startupSeries, want)
	}
}

// TestMissingCalibrationResolution verifies degradation when a detector's
// captured resolution has no calibration coverage: an error status names
// the detector and resolution, the solver still starts, and no intrinsics
// are pushed for that detector.
func TestMissingCalibrationResolution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sim := calibratedDetector("d1")
	sim.calibratedResolutions = []protocol.DetectorResolution{
		{DetectorSerialIdentifier: "d1", ImageResolution: protocol.ImageResolution{XPx: 1280, YPx: 720}},
	}
	h.addPeer("d1", controller.RoleDetector, 8001, &fakePeer{handle: sim.handler()})
	solver := h.addPeer("p1", controller.RolePoseSolver, 8101,
		&fakePeer{handle: (&solverSim{}).handler()})
	h.connect("d1")
	h.connect("p1")
	h.tick(1)

	if err := h.ctrl.StartTracking(controller.DetectingAndSolving); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	h.tickUntilRunning(12)

	var found bool
	for _, message := range h.ctrl.DrainStatusMessages() {
		if message.Severity == protocol.SeverityError &&
			strings.Contains(message.Message, "d1") &&
			strings.Contains(message.Message, "1920x1080") {
			found = true
		}
	}
	if !found {
		t.Error("no error status message naming d1 and 1920x1080")
	}

	if got := solver.countTag("set_intrinsic_parameters"); got != 0 {
		t.Errorf("solver received %d set_intrinsic_parameters, want 0", got)
	}
	if got := solver.countTag("start_pose_solver"); got != 1 {
		t.Errorf("solver received %d start_pose_solver, want 1", got)
	}
	if _, ok := h.ctrl.DetectorIntrinsics("d1"); ok {
		t.Error("DetectorIntrinsics() ok = true, want none for uncalibrated resolution")
	}
}

// TestStartTrackingWhileActive verifies the usage error.
func TestStartTrackingWhileActive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.ctrl.StartTracking(controller.DetectingOnly); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	if err := h.ctrl.StartTracking(controller.DetectingOnly); !errors.Is(err, controller.ErrTrackingActive) {
		t.Fatalf("second StartTracking() error = %v, want ErrTrackingActive", err)
	}
}

// TestStartStopNoPeers verifies the empty-fleet round trip: start followed
// by stop settles at stopped with an empty pending set, never running.
func TestStartStopNoPeers(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.ctrl.StartTracking(controller.DetectingAndSolving); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	if err := h.ctrl.StopTracking(); err != nil {
		t.Fatalf("StopTracking() error = %v", err)
	}
	h.tick(1)
	if got := h.ctrl.SystemStatus(); got != controller.SystemStopped {
		t.Fatalf("system status = %s, want stopped", got)
	}
	if got := h.ctrl.PendingStartupRequests(); got != 0 {
		t.Fatalf("pending startup requests = %d, want 0", got)
	}
	if err := h.ctrl.StopTracking(); !errors.Is(err, controller.ErrTrackingNotActive) {
		t.Fatalf("StopTracking() while stopped error = %v, want ErrTrackingNotActive", err)
	}
}

// TestStopMidStartup verifies that stopping during the startup phases waits
// for all in-flight ids and settles at stopped without ever reaching
// running.
func TestStopMidStartup(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sim := calibratedDetector("d1")
	h.addPeer("d1", controller.RoleDetector, 8001, &fakePeer{handle: sim.handler()})
	h.connect("d1")
	h.tick(1)

	if err := h.ctrl.StartTracking(controller.DetectingOnly); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	h.tick(2) // partway through the phases
	if got := h.ctrl.SystemStatus(); got != controller.SystemStarting {
		t.Fatalf("system status = %s, want starting", got)
	}

	if err := h.ctrl.StopTracking(); err != nil {
		t.Fatalf("StopTracking() error = %v", err)
	}
	if got := h.ctrl.PendingStartupRequests(); got == 0 {
		t.Fatal("pending startup requests = 0 after StopTracking, want in-flight ids retained")
	}

	for range 10 {
		if got := h.ctrl.SystemStatus(); got == controller.SystemRunning {
			t.Fatal("system reached running after StopTracking")
		}
		h.tick(1)
	}
	if got := h.ctrl.SystemStatus(); got != controller.SystemStopped {
		t.Fatalf("system status = %s, want stopped", got)
	}
	if got := h.ctrl.PendingStartupRequests(); got != 0 {
		t.Fatalf("pending startup requests = %d, want 0", got)
	}
}

// -------------------------------------------------------------------------
// Steady-state relay
// -------------------------------------------------------------------------

// relayHarness builds a connected, running one-detector one-solver fleet.
func relayHarness(t *testing.T) (*harness, *fakePeer, *fakePeer) {
	t.Helper()
	h := newHarness(t)
	detector := h.addPeer("d1", controller.RoleDetector, 8001,
		&fakePeer{handle: calibratedDetector("d1").handler()})
	solver := h.addPeer("p1", controller.RolePoseSolver, 8101,
		&fakePeer{handle: (&solverSim{targetPoses: []protocol.Pose{
			{TargetID: "t0", ObjectToReferenceMatrix: protocol.Identity()},
		}}).handler()})
	h.connect("d1")
	h.connect("p1")
	h.tick(1)
	if err := h.ctrl.StartTracking(controller.DetectingAndSolving); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	h.tickUntilRunning(12)
	return h, detector, solver
}

// TestDuplicateFrameSuppression verifies that an unchanged detector
// snapshot timestamp results in at most one add_marker_corners reaching the
// solver.
func TestDuplicateFrameSuppression(t *testing.T) {
	t.Parallel()

	h, _, solver := relayHarness(t)

	// The clock is frozen, so every claimed frame carries the same
	// controller-observed timestamp.
	h.tick(6)
	if got := solver.countTag("add_marker_corners"); got > 1 {
		t.Fatalf("solver received %d add_marker_corners for one timestamp, want at most 1", got)
	}

	// Advancing the clock makes the next claimed frame newer, so exactly
	// one more batch carries observations.
	h.clock.Advance(50 * time.Millisecond)
	h.tick(6)
	if got := solver.countTag("add_marker_corners"); got != 2 {
		t.Fatalf("solver received %d add_marker_corners total, want 2", got)
	}
}

// TestSingleInFlightPerPeer verifies the one-outstanding-request discipline
// during steady state: every relay poll is claimed before the next is sent.
func TestSingleInFlightPerPeer(t *testing.T) {
	t.Parallel()

	h, detector, solver := relayHarness(t)

	before := detector.countTag("detector_frame_get")
	h.tick(4)
	// One poll per tick: each tick transmits the previous submission and
	// the claim immediately precedes the next submission.
	if got := detector.countTag("detector_frame_get") - before; got > 4 {
		t.Errorf("detector received %d frame polls in 4 ticks, want at most 4", got)
	}
	if got := solver.countTag("get_poses"); got == 0 {
		t.Error("solver never received get_poses")
	}
}

// TestLatestFrames verifies the read accessors during steady state.
func TestLatestFrames(t *testing.T) {
	t.Parallel()

	h, _, _ := relayHarness(t)
	h.tick(3)

	frame, ok := h.ctrl.LatestDetectorFrame("d1")
	if !ok {
		t.Fatal("LatestDetectorFrame(d1) ok = false, want frame")
	}
	if len(frame.DetectedMarkerSnapshots) != 1 || frame.DetectedMarkerSnapshots[0].Label != "11" {
		t.Errorf("detector frame snapshots = %+v, want marker 11", frame.DetectedMarkerSnapshots)
	}
	if frame.Timestamp.IsZero() {
		t.Error("detector frame timestamp is zero")
	}

	poses, ok := h.ctrl.LatestPoseSolverFrame("p1")
	if !ok {
		t.Fatal("LatestPoseSolverFrame(p1) ok = false, want frame")
	}
	if len(poses.TargetPoses) != 1 || poses.TargetPoses[0].TargetID != "t0" {
		t.Errorf("target poses = %+v, want single t0", poses.TargetPoses)
	}

	if _, ok := h.ctrl.LatestDetectorFrame("ghost"); ok {
		t.Error("LatestDetectorFrame(ghost) ok = true, want false")
	}
	if _, ok := h.ctrl.LatestPoseSolverFrame("d1"); ok {
		t.Error("LatestPoseSolverFrame(d1) ok = true, want false for a detector label")
	}
}

// -------------------------------------------------------------------------
// Requests & status plumbing
// -------------------------------------------------------------------------

// TestIgnoreRequest verifies that a submitted-then-ignored request is never
// claimed and, when still queued, never transmitted.
func TestIgnoreRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	solver := h.addPeer("p1", controller.RolePoseSolver, 8101,
		&fakePeer{handle: (&solverSim{}).handler()})
	h.connect("p1")
	h.tick(1)

	id, err := h.ctrl.AddTargetMarker("p1", 7, 0.05)
	if err != nil {
		t.Fatalf("AddTargetMarker() error = %v", err)
	}
	h.ctrl.IgnoreRequest("p1", id)

	h.tick(3)
	if got := solver.countTag("add_target_marker"); got != 0 {
		t.Errorf("solver received %d add_target_marker after Ignore, want 0", got)
	}
	if got := h.ctrl.PendingStartupRequests(); got != 0 {
		t.Errorf("pending requests = %d after Ignore, want 0", got)
	}
}

// TestSolverTargetConfiguration verifies the target configuration
// operations reach the solver and their responses drain cleanly.
func TestSolverTargetConfiguration(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	solver := h.addPeer("p1", controller.RolePoseSolver, 8101,
		&fakePeer{handle: (&solverSim{}).handler()})
	h.connect("p1")
	h.tick(1)

	if _, err := h.ctrl.SetReferenceMarker("p1", 0, 0.1); err != nil {
		t.Fatalf("SetReferenceMarker() error = %v", err)
	}
	if _, err := h.ctrl.AddTargetMarker("p1", 7, 0.05); err != nil {
		t.Fatalf("AddTargetMarker() error = %v", err)
	}
	if _, err := h.ctrl.AddTargetMarker("ghost", 7, 0.05); !errors.Is(err, controller.ErrUnknownLabel) {
		t.Fatalf("AddTargetMarker(ghost) error = %v, want ErrUnknownLabel", err)
	}

	h.tick(2)
	if got := solver.countTag("set_reference_marker"); got != 1 {
		t.Errorf("solver received %d set_reference_marker, want 1", got)
	}
	if got := solver.countTag("add_target_marker"); got != 1 {
		t.Errorf("solver received %d add_target_marker, want 1", got)
	}
	if got := h.ctrl.PendingStartupRequests(); got != 0 {
		t.Errorf("pending requests = %d after drain, want 0", got)
	}

	if _, err := h.ctrl.SetReferenceMarker("d0", 0, 0.1); !errors.Is(err, controller.ErrUnknownLabel) {
		t.Fatalf("SetReferenceMarker(unknown) error = %v, want ErrUnknownLabel", err)
	}
}

// TestRemoteStatusHarvest verifies the per-tick status drain stamps the
// peer label onto harvested messages.
func TestRemoteStatusHarvest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sim := calibratedDetector("d1")
	sim.statusMessages = []protocol.StatusMessage{
		{Severity: protocol.SeverityInfo, Message: "capture device opened"},
	}
	h.addPeer("d1", controller.RoleDetector, 8001, &fakePeer{handle: sim.handler()})
	h.connect("d1")
	h.tick(2)

	var found bool
	for _, message := range h.ctrl.DrainStatusMessages() {
		if message.Message == "capture device opened" {
			found = true
			if message.SourceLabel != "d1" {
				t.Errorf("source label = %q, want d1", message.SourceLabel)
			}
		}
	}
	if !found {
		t.Error("harvested peer status message not found in sink")
	}
}
