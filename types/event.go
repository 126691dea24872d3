package types

import (
	"time"

	"github.com/c360/forge/errors"
)

// ForgeEvent is a transient occurrence delivered to the engine for
// evaluation against rules. Events are never stored by the engine.
type ForgeEvent struct {
	// Type is the trigger type this event represents. Only rules with a
	// matching trigger type are ever evaluated against it.
	Type TriggerType `json:"type"`

	// Payload carries event-specific data (e.g. {eventId, action, ...}).
	Payload ConfigMap `json:"payload,omitempty"`

	// At is the instant the event occurred, used for cron matching and
	// dedupe minute bucketing.
	At time.Time `json:"at"`

	// DedupeKey, when non-empty, overrides the derived dedupe key verbatim.
	DedupeKey string `json:"dedupe_key,omitempty"`

	// UserID optionally scopes fan-out to one owner's rules. Cron ticks
	// leave it empty, which means "all owners".
	UserID string `json:"user_id,omitempty"`
}

// Validate checks event construction invariants at the ingestion boundary.
// The evaluation path never calls this; a malformed event simply fails to
// match.
func (e *ForgeEvent) Validate() error {
	if e == nil {
		return errors.WrapInvalid(errors.ErrInvalidEvent, "types", "Validate", "event is nil")
	}
	if !e.Type.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidEvent, "types", "Validate", "validate event type")
	}
	if e.At.IsZero() {
		return errors.WrapInvalid(errors.ErrInvalidEvent, "types", "Validate", "event timestamp is zero")
	}
	return nil
}
