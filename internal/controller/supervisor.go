package controller

import (
	"context"
	"fmt"

	"github.com/mcstrack/mcstrackd/internal/protocol"
	"github.com/mcstrack/mcstrackd/internal/transport"
)

// supervisePeer advances one peer's session by one tick and, while the peer
// is connected, performs its per-tick I/O work: draining the outbound
// request queue and harvesting the peer's accumulated status messages.
func (c *Controller) supervisePeer(ctx context.Context, p *peer) {
	switch p.status {
	case StatusDisconnected, StatusAborted:
		return

	case StatusDisconnecting:
		c.applySessionEvent(p, EventCloseCompleted)
		return

	case StatusConnecting:
		if !c.attemptConnect(ctx, p) {
			return
		}
		// A successful dial continues straight into the connected work so
		// the first status drain happens on the same tick.

	case StatusConnected:
	}

	c.connectedWork(ctx, p)
}

// attemptConnect performs at most one dial attempt, honoring the retry gap.
// Returns true when the peer ends up connected.
func (c *Controller) attemptConnect(ctx context.Context, p *peer) bool {
	now := c.now()
	if now.Before(p.nextAttemptAt) {
		return false
	}

	p.attemptCount++
	c.metrics.RecordConnectAttempt(p.address.Label)

	endpoint := transport.URL(p.address.Host, p.address.Port)
	conn, err := c.dialer.Dial(ctx, p.address.Host, p.address.Port)
	if err != nil {
		if p.attemptCount >= c.attemptCountMaximum {
			c.status.Enqueue(protocol.SeverityWarning, fmt.Sprintf(
				"Failed to connect to %s with error: %v.", endpoint, err))
			c.status.Enqueue(protocol.SeverityError, fmt.Sprintf(
				"Connection to %s is being aborted after %d attempts.",
				endpoint, p.attemptCount))
			c.applySessionEvent(p, EventDialFailedFinal)
		} else {
			c.status.Enqueue(protocol.SeverityWarning, fmt.Sprintf(
				"Failed to connect to %s with error: %v. Will retry in %s.",
				endpoint, err, c.attemptTimeGap))
			c.applySessionEvent(p, EventDialFailedRetry)
		}
		return false
	}

	p.conn = conn
	c.status.Enqueue(protocol.SeverityInfo, fmt.Sprintf("Connected to %s.", endpoint))
	c.applySessionEvent(p, EventDialSucceeded)
	return true
}

// connectedWork drains the peer's outbound request queue in submission
// order, then piggybacks a status-message drain so the peer never silently
// accumulates log backlog.
func (c *Controller) connectedWork(ctx context.Context, p *peer) {
	for _, pending := range c.correlator.outboundFor(p.address.Label) {
		series, err := p.conn.Exchange(ctx, pending.series, p.registry)
		if err != nil {
			c.metrics.RecordExchange(p.address.Label, false)
			c.handleExchangeFailure(p, err)
			return
		}
		c.metrics.RecordExchange(p.address.Label, true)
		series.Responder = p.address.Label
		c.correlator.Delivered(p.address.Label, pending.id, series)
	}

	c.drainPeerStatusMessages(ctx, p)
}

// drainPeerStatusMessages collects the peer's server-side log messages and
// enqueues them into the local sink stamped with the peer's label.
func (c *Controller) drainPeerStatusMessages(ctx context.Context, p *peer) {
	request := protocol.RequestSeries{Series: []protocol.Request{
		protocol.DequeueStatusMessagesRequest{},
	}}
	series, err := p.conn.Exchange(ctx, request, p.registry)
	if err != nil {
		c.metrics.RecordExchange(p.address.Label, false)
		c.handleExchangeFailure(p, err)
		return
	}
	c.metrics.RecordExchange(p.address.Label, true)

	for _, response := range series.Series {
		dequeued, ok := response.(*protocol.DequeueStatusMessagesResponse)
		if !ok {
			continue
		}
		for _, message := range dequeued.StatusMessages {
			message.SourceLabel = p.address.Label
			c.status.EnqueueRemote(message)
			c.metrics.RecordStatusMessage(string(message.Severity))
		}
	}
}

// handleExchangeFailure reacts to a transport error on a connected peer:
// the socket is discarded and the session returns to connecting with a
// fresh attempt budget, so the next tick retries immediately. Undelivered
// request series stay queued and are re-sent after reconnection.
func (c *Controller) handleExchangeFailure(p *peer, err error) {
	c.status.Enqueue(protocol.SeverityWarning, fmt.Sprintf(
		"Exchange with %s failed: %v. Reconnecting.", p.address.Label, err))
	c.applySessionEvent(p, EventSocketError)
}
