package events

import (
	"context"
	"log/slog"
)

// AuditLogger writes every published event to a structured log.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With("component", "audit")}
}

func (a *AuditLogger) Handle(ctx context.Context, event Event) error {
	a.logger.InfoContext(ctx, "audit",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"occurred_at", event.OccurredAt(),
		"data", event.Payload())
	return nil
}

func (a *AuditLogger) Register(bus *EventBus) {
	bus.Subscribe(AllEvents, a.Handle)
}
