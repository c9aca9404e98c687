package controller

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcstrack/mcstrackd/internal/protocol"
)

// ErrUnknownRequestID indicates a claim against a request id the correlator
// never issued or that was already consumed. Claiming such an id is a
// programmer error, not a transient condition.
var ErrUnknownRequestID = errors.New("unknown request series id")

// pendingRequest is one queued request series awaiting transmission.
type pendingRequest struct {
	series protocol.RequestSeries
	id     string
}

// Correlator decouples the submitter of a request series from the consumer
// of its eventual response series.
//
// Two mappings: outbound holds, per peer label, the FIFO of series awaiting
// transmission; inbound maps every issued id to its response series, nil
// until the supervisor delivers one. An id exists in inbound from the moment
// of submission and is removed by the consumer that claims its response (or
// by Ignore). The Correlator is the only allocator of request ids; ids are
// collision-resistant random identifiers.
type Correlator struct {
	outbound map[string][]pendingRequest
	inbound  map[string]*protocol.ResponseSeries
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		outbound: make(map[string][]pendingRequest),
		inbound:  make(map[string]*protocol.ResponseSeries),
	}
}

// Submit queues a request series for the given peer and returns its fresh id.
func (c *Correlator) Submit(label string, series protocol.RequestSeries) string {
	id := uuid.NewString()
	c.outbound[label] = append(c.outbound[label], pendingRequest{series: series, id: id})
	c.inbound[id] = nil
	return id
}

// outboundFor returns the queued series for a peer in submission order. The
// returned slice is the supervisor's transmission worklist; entries are
// removed via Delivered as each exchange completes.
func (c *Correlator) outboundFor(label string) []pendingRequest {
	queue := c.outbound[label]
	snapshot := make([]pendingRequest, len(queue))
	copy(snapshot, queue)
	return snapshot
}

// OutboundDepth returns the number of series queued across all peers.
func (c *Correlator) OutboundDepth() int {
	depth := 0
	for _, queue := range c.outbound {
		depth += len(queue)
	}
	return depth
}

// Delivered records the response series for a transmitted request and
// removes the request from the peer's outbound queue.
func (c *Correlator) Delivered(label, id string, series protocol.ResponseSeries) {
	c.removeOutbound(label, id)
	c.inbound[id] = &series
}

// TryClaim returns the response series for id if one has arrived, removing
// the id from the correlator. A nil series with nil error means the response
// is still pending. An id the correlator does not know returns
// ErrUnknownRequestID.
func (c *Correlator) TryClaim(id string) (*protocol.ResponseSeries, error) {
	series, known := c.inbound[id]
	if !known {
		return nil, fmt.Errorf("claim %s: %w", id, ErrUnknownRequestID)
	}
	if series == nil {
		return nil, nil
	}
	delete(c.inbound, id)
	return series, nil
}

// Ignore cancels interest in a request: the outbound entry (if still
// queued) and the inbound slot are both dropped. Ignoring an id that is
// absent from either map is not an error.
func (c *Correlator) Ignore(label, id string) {
	c.removeOutbound(label, id)
	delete(c.inbound, id)
}

func (c *Correlator) removeOutbound(label, id string) {
	queue := c.outbound[label]
	for i, pending := range queue {
		if pending.id == id {
			c.outbound[label] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(c.outbound[label]) == 0 {
		delete(c.outbound, label)
	}
}
