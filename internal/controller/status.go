package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcstrack/mcstrackd/internal/protocol"
)

// StatusSink collects human-readable status messages from the controller
// itself and from remote peers. Messages are appended by many code paths and
// drained by an external consumer; every enqueue is mirrored to the logger
// at the matching level.
type StatusSink struct {
	logger      *slog.Logger
	now         func() time.Time
	sourceLabel string
	messages    []protocol.StatusMessage
}

// NewStatusSink creates a sink whose locally-produced messages carry
// sourceLabel.
func NewStatusSink(logger *slog.Logger, sourceLabel string, now func() time.Time) *StatusSink {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &StatusSink{logger: logger, now: now, sourceLabel: sourceLabel}
}

// Enqueue appends a locally-produced status message.
func (s *StatusSink) Enqueue(severity protocol.Severity, message string) {
	s.append(protocol.StatusMessage{
		Severity:    severity,
		Message:     message,
		SourceLabel: s.sourceLabel,
		Timestamp:   s.now().UTC().Format(time.RFC3339Nano),
	})
}

// EnqueueRemote appends a message harvested from a peer. The caller stamps
// SourceLabel with the peer label before handing the message over.
func (s *StatusSink) EnqueueRemote(message protocol.StatusMessage) {
	if message.Timestamp == "" {
		message.Timestamp = s.now().UTC().Format(time.RFC3339Nano)
	}
	s.append(message)
}

// Drain removes and returns all queued messages in enqueue order.
func (s *StatusSink) Drain() []protocol.StatusMessage {
	drained := s.messages
	s.messages = nil
	return drained
}

// Len returns the number of queued messages.
func (s *StatusSink) Len() int { return len(s.messages) }

func (s *StatusSink) append(message protocol.StatusMessage) {
	s.messages = append(s.messages, message)
	s.logger.Log(context.Background(), severityLevel(message.Severity), message.Message,
		slog.String("source", message.SourceLabel),
	)
}

// severityLevel maps a status severity onto the slog level scale.
func severityLevel(severity protocol.Severity) slog.Level {
	switch severity {
	case protocol.SeverityDebug:
		return slog.LevelDebug
	case protocol.SeverityInfo:
		return slog.LevelInfo
	case protocol.SeverityWarning:
		return slog.LevelWarn
	case protocol.SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
