// Package transport moves request and response series over persistent
// websocket connections to remote tracking components.
//
// Each peer speaks a single endpoint, ws://host:port/websocket. Every
// exchange is strictly request-reply: one text frame out, one text frame
// back. Liveness is inferred from exchange success rather than from pings;
// a marker-detection or calibration exchange can legitimately take longer
// than any reasonable ping timeout, so ping/open/close deadlines are
// disabled to avoid false positives.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/mcstrack/mcstrackd/internal/protocol"
)

// DefaultMaxFrameBytes bounds a single websocket frame. The default must
// accommodate uncompressed full-frame camera images moved as base64 text.
const DefaultMaxFrameBytes int64 = 1 << 48

// ErrConnClosed indicates an exchange was attempted on a closed connection.
var ErrConnClosed = errors.New("transport: connection closed")

// Conn is one peer's open websocket session. Exchange serializes a request
// series, awaits exactly one reply frame, and parses it against the given
// registry. Implementations are not safe for concurrent use; the connection
// supervisor owns each Conn exclusively.
type Conn interface {
	Exchange(ctx context.Context, series protocol.RequestSeries, registry *protocol.Registry) (protocol.ResponseSeries, error)
	Close() error
}

// Dialer opens websocket sessions. The controller core depends on this
// interface so tests can exchange over in-memory fakes.
type Dialer interface {
	Dial(ctx context.Context, host string, port uint16) (Conn, error)
}

// WebsocketDialer is the production Dialer backed by gorilla/websocket.
type WebsocketDialer struct {
	// MaxFrameBytes bounds received frames. Zero means DefaultMaxFrameBytes.
	MaxFrameBytes int64
}

// NewWebsocketDialer returns a dialer with the given receive frame limit.
// Zero or negative maxFrameBytes selects DefaultMaxFrameBytes.
func NewWebsocketDialer(maxFrameBytes int64) *WebsocketDialer {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &WebsocketDialer{MaxFrameBytes: maxFrameBytes}
}

// Dial opens ws://host:port/websocket. The handshake honors ctx; once
// established, the connection has no read or write deadlines.
func (d *WebsocketDialer) Dial(ctx context.Context, host string, port uint16) (Conn, error) {
	endpoint := URL(host, port)

	// HandshakeTimeout stays zero: the dial deadline comes from ctx.
	dialer := websocket.Dialer{}
	wsConn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	limit := d.MaxFrameBytes
	if limit <= 0 {
		limit = DefaultMaxFrameBytes
	}
	wsConn.SetReadLimit(limit)

	return &wsSession{conn: wsConn}, nil
}

// URL renders the websocket endpoint for a peer address.
func URL(host string, port uint16) string {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/websocket"}
	return u.String()
}

// wsSession implements Conn over a gorilla websocket connection.
type wsSession struct {
	conn   *websocket.Conn
	closed bool
}

// Exchange sends one request series as a single text frame and blocks until
// the matching reply frame arrives. A transport failure leaves the
// connection unusable; the caller discards it and reconnects.
func (s *wsSession) Exchange(
	ctx context.Context,
	series protocol.RequestSeries,
	registry *protocol.Registry,
) (protocol.ResponseSeries, error) {
	if s.closed {
		return protocol.ResponseSeries{}, ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return protocol.ResponseSeries{}, err
	}

	payload, err := protocol.EncodeRequestSeries(series)
	if err != nil {
		return protocol.ResponseSeries{}, err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return protocol.ResponseSeries{}, fmt.Errorf("send request series: %w", err)
	}

	messageType, reply, err := s.conn.ReadMessage()
	if err != nil {
		return protocol.ResponseSeries{}, fmt.Errorf("receive response series: %w", err)
	}
	if messageType != websocket.TextMessage {
		return protocol.ResponseSeries{}, fmt.Errorf(
			"receive response series: unexpected frame type %d", messageType)
	}

	return protocol.ParseResponseSeries(reply, registry)
}

// Close closes the underlying websocket. Safe to call more than once.
func (s *wsSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
