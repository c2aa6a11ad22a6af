package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
)

type (
	// ForwarderOptions configures a Forwarder.
	ForwarderOptions struct {
		// Client publishes to Pulse streams. Required.
		Client Client
		// StreamID derives the target stream from an event. Defaults to
		// "execution/<id>", or "engine/events" for events without an
		// execution scope.
		StreamID func(hooks.Event) string
		// Logger reports publish failures. Nil discards.
		Logger telemetry.Logger
	}

	// Forwarder implements hooks.Subscriber by republishing every bus event
	// onto a Pulse stream. Publishing is best-effort: failures are logged and
	// never affect the execution that produced the event.
	Forwarder struct {
		client   Client
		streamID func(hooks.Event) string
		logger   telemetry.Logger
	}

	// envelope is the wire shape of a forwarded event.
	envelope struct {
		// Type is the event name, e.g. "node:start".
		Type string `json:"type"`
		// ExecutionID scopes the event, empty for adapter events published
		// outside an execution.
		ExecutionID string `json:"execution_id,omitempty"`
		// Timestamp records when the event was created (UTC).
		Timestamp time.Time `json:"timestamp"`
		// Payload carries the event-specific fields.
		Payload any `json:"payload,omitempty"`
	}
)

// NewForwarder constructs a Pulse-backed event forwarder.
func NewForwarder(opts ForwarderOptions) (*Forwarder, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	f := &Forwarder{
		client:   opts.Client,
		streamID: opts.StreamID,
		logger:   opts.Logger,
	}
	if f.streamID == nil {
		f.streamID = defaultStreamID
	}
	if f.logger == nil {
		f.logger = telemetry.NoopLogger{}
	}
	return f, nil
}

// Attach registers the forwarder for every event on the bus.
func (f *Forwarder) Attach(bus hooks.Bus) (hooks.Subscription, error) {
	return bus.Register(f)
}

// HandleEvent implements hooks.Subscriber.
func (f *Forwarder) HandleEvent(ctx context.Context, event hooks.Event) error {
	stream, err := f.client.Stream(f.streamID(event))
	if err != nil {
		f.logger.Warn(ctx, "pulse stream unavailable",
			"event", string(event.Type()), "err", err.Error())
		return nil
	}
	env := envelope{
		Type:        string(event.Type()),
		ExecutionID: event.ExecutionID(),
		Timestamp:   time.UnixMilli(event.Timestamp()).UTC(),
		Payload:     event,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		f.logger.Warn(ctx, "marshal event failed",
			"event", string(event.Type()), "err", err.Error())
		return nil
	}
	if _, err := stream.Add(ctx, env.Type, payload); err != nil {
		f.logger.Warn(ctx, "forward event failed",
			"event", string(event.Type()), "err", err.Error())
	}
	return nil
}

func defaultStreamID(event hooks.Event) string {
	if id := event.ExecutionID(); id != "" {
		return fmt.Sprintf("execution/%s", id)
	}
	return "engine/events"
}
