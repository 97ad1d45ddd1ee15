// Package escalate delivers gate-failure events to whoever is listening.
// The engine only emits; what a handler does with an event is its business.
package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// #region event

// Event describes one gate failure.
type Event struct {
	Gate                string    `json:"gate"`
	Details             string    `json:"details"`
	FailedPreconditions []string  `json:"failed_preconditions,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// Notifier receives gate-failure events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// #endregion event

// #region log-notifier

// LogNotifier writes events to the structured log. Default sink when no
// message bus is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier. A nil logger is replaced
// with a no-op one.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event at warn level.
func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.logger.Warn("gate failed",
		zap.String("gate", ev.Gate),
		zap.String("details", ev.Details),
		zap.Strings("failed_preconditions", ev.FailedPreconditions),
		zap.Time("timestamp", ev.Timestamp))
	return nil
}

// #endregion log-notifier

// #region nats-notifier

// NATSNotifier publishes events to a NATS subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier connects to the given NATS URL and publishes to subject.
func NewNATSNotifier(url, subject string, logger *zap.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url, nats.Name("coherence-engine-escalation"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSNotifier{nc: nc, subject: subject, logger: logger}, nil
}

// Notify publishes the event as JSON.
func (n *NATSNotifier) Notify(_ context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(n.subject, raw); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	n.logger.Debug("escalation published",
		zap.String("subject", n.subject),
		zap.String("gate", ev.Gate))
	return nil
}

// Close drains and closes the NATS connection.
func (n *NATSNotifier) Close() {
	n.nc.Drain()
}

// #endregion nats-notifier
