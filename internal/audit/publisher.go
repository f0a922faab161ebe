package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher hands events to the background worker. Auditing is fail-open:
// a full inbox drops the event with a log line rather than failing the
// business operation that emitted it.
type Publisher struct {
	inbox  chan<- Event
	logger *slog.Logger
}

func NewPublisher(inbox chan<- Event, logger *slog.Logger) *Publisher {
	return &Publisher{inbox: inbox, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", event.Action,
			"subject", event.SubjectID,
		)
	}
}
