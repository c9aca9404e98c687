// Package protocol defines the typed request/response messages exchanged
// with remote tracking components and the codec that moves them on and off
// the wire.
//
// Every exchange is one JSON envelope per direction, shaped
//
//	{"series": [{"parsable_type": "<tag>", ...fields}, ...]}
//
// The parsable_type tag selects the concrete variant. Parsing dispatches
// through a per-role Registry: a detector and a pose solver accept different
// response sets, overlapping on the generic empty/error/status tags.
package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RequestSeries is an ordered, non-empty batch of requests delivered to a
// peer in a single websocket round trip.
type RequestSeries struct {
	Series []Request
}

// ResponseSeries is the ordered reply batch for one RequestSeries. Responder
// is the label of the peer that produced it, stamped by the supervisor after
// the exchange. The length is not required to match the request series; the
// consumer only warns on a mismatch.
type ResponseSeries struct {
	Series    []Response
	Responder string
}

// wireSeries is the JSON envelope shared by both directions.
type wireSeries struct {
	Series []json.RawMessage `json:"series"`
}

// typeProbe extracts only the variant tag from a series element.
type typeProbe struct {
	ParsableType string `json:"parsable_type"`
}

// EncodeRequestSeries serializes a request series into the wire envelope.
// The parsable_type tag is injected alongside each variant's own fields.
func EncodeRequestSeries(series RequestSeries) ([]byte, error) {
	env := wireSeries{Series: make([]json.RawMessage, 0, len(series.Series))}
	for i, request := range series.Series {
		element, err := encodeTagged(request.ParsableType(), request)
		if err != nil {
			return nil, fmt.Errorf("encode request %d (%s): %w", i, request.ParsableType(), err)
		}
		env.Series = append(env.Series, element)
	}
	return json.Marshal(env)
}

// encodeTagged marshals v and injects the parsable_type tag into the
// resulting object.
func encodeTagged(tag string, v any) (json.RawMessage, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tagRaw, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	fields["parsable_type"] = tagRaw
	return json.Marshal(fields)
}

// -------------------------------------------------------------------------
// Response Registry
// -------------------------------------------------------------------------

// Registry is the set of response variants a peer role is allowed to
// produce. Parsing an element whose tag is outside the registry yields an
// ErrorResponse element in its place; the series itself still parses.
type Registry struct {
	role      string
	factories map[string]func() Response
}

// Role returns the peer role this registry belongs to.
func (r *Registry) Role() string { return r.role }

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// register adds a factory for one response variant. Duplicate tags indicate
// a programming error in registry construction.
func (r *Registry) register(factory func() Response) {
	tag := factory().ParsableType()
	if _, exists := r.factories[tag]; exists {
		panic(fmt.Sprintf("protocol: duplicate response tag %q in %s registry", tag, r.role))
	}
	r.factories[tag] = factory
}

// newRegistry creates a registry holding the generic variants every role
// shares.
func newRegistry(role string) *Registry {
	r := &Registry{role: role, factories: make(map[string]func() Response)}
	r.register(func() Response { return &EmptyResponse{} })
	r.register(func() Response { return &ErrorResponse{} })
	r.register(func() Response { return &DequeueStatusMessagesResponse{} })
	return r
}

// NewDetectorRegistry returns the response registry for detector peers.
func NewDetectorRegistry() *Registry {
	r := newRegistry("detector")
	r.register(func() Response { return &DetectorFrameGetResponse{} })
	r.register(func() Response { return &CameraParametersGetResponse{} })
	r.register(func() Response { return &CameraImageGetResponse{} })
	r.register(func() Response { return &MarkerParametersGetResponse{} })
	r.register(func() Response { return &CalibrationResolutionListResponse{} })
	r.register(func() Response { return &CalibrationResultMetadataListResponse{} })
	r.register(func() Response { return &CalibrationResultGetResponse{} })
	r.register(func() Response { return &CalibrationImageAddResponse{} })
	r.register(func() Response { return &CalibrationImageGetResponse{} })
	r.register(func() Response { return &CalibrationImageMetadataListResponse{} })
	r.register(func() Response { return &CalibrationCalculateResponse{} })
	return r
}

// NewPoseSolverRegistry returns the response registry for pose solver peers.
func NewPoseSolverRegistry() *Registry {
	r := newRegistry("pose_solver")
	r.register(func() Response { return &AddTargetResponse{} })
	r.register(func() Response { return &GetPosesResponse{} })
	return r
}

// ParseResponseSeries parses a wire envelope into a ResponseSeries using the
// given registry. The codec performs no I/O.
//
// A malformed envelope or an element that fails to unmarshal into its
// registered variant is a parse error for the whole series. An element whose
// tag is merely unknown to the registry degrades to an ErrorResponse element
// so sibling responses survive.
func ParseResponseSeries(data []byte, registry *Registry) (ResponseSeries, error) {
	var env wireSeries
	if err := json.Unmarshal(data, &env); err != nil {
		return ResponseSeries{}, fmt.Errorf("parse response envelope: %w", err)
	}

	series := ResponseSeries{Series: make([]Response, 0, len(env.Series))}
	for i, element := range env.Series {
		var probe typeProbe
		if err := json.Unmarshal(element, &probe); err != nil {
			return ResponseSeries{}, fmt.Errorf("parse response %d type tag: %w", i, err)
		}

		factory, known := registry.factories[probe.ParsableType]
		if !known {
			series.Series = append(series.Series, &ErrorResponse{
				Message: fmt.Sprintf(
					"response type %q is not recognized for role %s",
					probe.ParsableType, registry.role),
			})
			continue
		}

		response := factory()
		if err := json.Unmarshal(element, response); err != nil {
			return ResponseSeries{}, fmt.Errorf(
				"parse response %d (%s): %w", i, probe.ParsableType, err)
		}
		series.Series = append(series.Series, response)
	}
	return series, nil
}

// NewestCalibrationResult picks the calibration result with the maximum
// timestamp_utc from metadata. Ties keep the first result seen at that
// timestamp. Returns false when metadata is empty.
func NewestCalibrationResult(metadata []CalibrationResultMetadata) (CalibrationResultMetadata, bool) {
	if len(metadata) == 0 {
		return CalibrationResultMetadata{}, false
	}
	newest := metadata[0]
	newestAt := ParseTimestampUTC(newest.TimestampUTC)
	for _, candidate := range metadata[1:] {
		if at := ParseTimestampUTC(candidate.TimestampUTC); at.After(newestAt) {
			newest = candidate
			newestAt = at
		}
	}
	return newest, true
}
