package engine

import (
	"fmt"
	"time"

	"github.com/c360/forge/types"
)

// bucketMillis is the dedupe bucket width. Cron evaluation is expected
// once per minute aligned to minute boundaries, so bucketing to the
// minute collapses repeated evaluations of the same tick to one key.
const bucketMillis = 60_000

// MinuteBucket returns the dedupe bucket for an instant: the number of
// whole minutes since the Unix epoch.
func MinuteBucket(t time.Time) int64 {
	return t.UnixMilli() / bucketMillis
}

// DedupeKey derives the stable string identifying "this firing" of a
// (rule, event) pair. It is total and deterministic. Resolution order:
//
//  1. A caller-supplied event key wins verbatim.
//  2. Cron events collapse to their minute bucket.
//  3. Payloads carrying an eventId or id string identify themselves.
//  4. Fallback: event type, minute bucket, and a canonical JSON signature
//     of the payload. Canonical means sorted map keys, so semantically
//     equal payloads built in different key order produce one key.
func DedupeKey(_ *types.ForgeRule, event *types.ForgeEvent) string {
	if event == nil {
		return ""
	}
	if event.DedupeKey != "" {
		return event.DedupeKey
	}

	if event.Type == types.TriggerCron {
		return fmt.Sprintf("cron:%d", MinuteBucket(event.At))
	}

	if id := payloadID(event.Payload); id != "" {
		return fmt.Sprintf("%s:%s", event.Type, id)
	}

	return fmt.Sprintf("%s:%d:%s", event.Type, MinuteBucket(event.At),
		types.CanonicalJSON(event.Payload))
}

// payloadID looks for an identifying field: eventId first, then id.
// Only non-empty strings qualify.
func payloadID(payload types.ConfigMap) string {
	for _, key := range []string{"eventId", "id"} {
		if id, ok := payload[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}
