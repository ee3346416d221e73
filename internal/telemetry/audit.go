package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"portal-chat/internal/observability"
)

// AuditEmitter publishes audit log entries for message operations.
type AuditEmitter struct {
	routingKey  string
	service     string
	environment string
	log         *logrus.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        string       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action    string `json:"action"`
	MessageID string `json:"message_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
	Outcome   string `json:"outcome"`
}

func NewAuditEmitter(routingKey, service, environment string, log *logrus.Logger) *AuditEmitter {
	return &AuditEmitter{
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit records one audit entry. Failures are logged, never propagated to the
// operation that triggered the audit.
func (e *AuditEmitter) Emit(ctx context.Context, userID, requestID string, payload AuditPayload) {
	if e == nil {
		return
	}

	e.log.WithFields(logrus.Fields{
		"action":     payload.Action,
		"user_id":    userID,
		"request_id": requestID,
		"outcome":    payload.Outcome,
	}).Debug("audit emit")

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	if err := observability.PublishEvent(ctx, e.routingKey, envelope, observability.BuildHeaders(requestID, "")); err != nil {
		e.log.WithError(err).Warn("audit publish failed")
	}
}
