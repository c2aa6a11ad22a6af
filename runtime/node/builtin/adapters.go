// Package builtin implements the handlers for the built-in node kinds. Each
// handler reads its node configuration, substitutes execution variables into
// it, delegates side effects to an adapter interface, and wraps the outcome
// in the uniform handler result. Adapter failures become error results, never
// Go errors or panics.
package builtin

import (
	"context"
	"net/http"
	"time"
)

type (
	// HTTPDoer captures the subset of http.Client used by the Action handler.
	HTTPDoer interface {
		Do(req *http.Request) (*http.Response, error)
	}

	// EmailMessage is an outbound email request.
	EmailMessage struct {
		// To is the recipient address.
		To string
		// Subject is the message subject.
		Subject string
		// Body is the message body.
		Body string
	}

	// EmailReceipt reports the adapter's delivery outcome.
	EmailReceipt struct {
		// Sent reports whether the adapter accepted the message for delivery.
		Sent bool
		// MessageID is the adapter-assigned identifier when available.
		MessageID string
	}

	// EmailSender delivers email on behalf of the Action handler.
	EmailSender interface {
		// Send delivers the message and reports the outcome.
		Send(ctx context.Context, msg EmailMessage) (EmailReceipt, error)
	}

	// DatabaseWriter performs the persistence operations of database actions.
	DatabaseWriter interface {
		// Insert stores a document in the named collection and returns its ID.
		Insert(ctx context.Context, collection string, doc map[string]any) (string, error)
		// Update applies the document to records matching the filter and
		// returns the number of records modified.
		Update(ctx context.Context, collection string, filter, doc map[string]any) (int64, error)
	}

	// Service is the generic adapter contract behind the FileOperations,
	// FormBuilder, DataTransform, PushNotification, and EmailAutomation
	// handlers. Implementations dispatch on the operation name.
	Service interface {
		// Do performs the named operation with the substituted configuration
		// and returns the operation output.
		Do(ctx context.Context, operation string, config map[string]any) (map[string]any, error)
	}

	// Scheduler schedules deferred callbacks for long timers. The returned
	// cancel function stops a pending callback.
	Scheduler interface {
		AfterFunc(d time.Duration, fn func()) (cancel func())
	}

	// ClockScheduler implements Scheduler with time.AfterFunc.
	ClockScheduler struct{}
)

// AfterFunc implements Scheduler.
func (ClockScheduler) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
