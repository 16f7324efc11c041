// Package events emits best-effort product events (signups, blocked logins)
// as OTel log records. Emission never blocks or fails a request path.
package events

import (
	"context"
	"log"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// Event is a product event. Kind is dot-separated (e.g. "auth.domain_blocked",
// "auth.user_signed_up"); Metadata carries low-cardinality detail.
type Event struct {
	Kind           string
	UserID         string
	ConversationID string
	Metadata       map[string]string
	CreatedAt      time.Time
}

// Emitter emits product events. Best-effort; callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, event *Event) error
}

// NewOTelEmitter returns an Emitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewOTelEmitter(provider *sdklog.LoggerProvider) Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("openhands.events")}
}

// NewNoopEmitter returns an Emitter that drops every event.
func NewNoopEmitter() Emitter { return noopEmitter{} }

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *Event) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the event to an OTel log record and emits it. Best-effort; errors are logged.
func (e *otelEmitter) Emit(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetBody(otellog.StringValue(event.Kind))
	if event.Kind != "" {
		rec.AddAttributes(otellog.String("event_kind", event.Kind))
	}
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.ConversationID != "" {
		rec.AddAttributes(otellog.String("conversation_id", event.ConversationID))
	}
	for k, v := range event.Metadata {
		rec.AddAttributes(otellog.String(k, v))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Use from request handlers and scheduler ticks for fire-and-forget emission; errors are logged.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine detaches from ctx's cancellation (keeping its values for trace
// correlation) so the end of a request does not abort an in-flight emit.
func EmitAsync(ctx context.Context, emitter Emitter, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("events: async emit failed: %v", err)
		}
	}()
}
