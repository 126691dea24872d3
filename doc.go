// Package forge is an automation rule engine: it binds trigger
// conditions to actions so external events enqueue idempotent units of
// work.
//
// # Architecture
//
// Forge is split into a pure decision core and a thin runtime around it:
//
//	┌─────────────────────────────────────┐
//	│        service (HTTP/WS)            │  webhook ingestion,
//	│  /healthz /metrics /api /ws         │  rule API, activity feed
//	└─────────────────────────────────────┘
//	           ↓ publishes events
//	┌─────────────────────────────────────┐
//	│          scheduler                  │  cron ticker + event
//	│   (fan-out over enabled rules)      │  fan-out via engine
//	└─────────────────────────────────────┘
//	           ↓ fired action plans
//	┌─────────────────────────────────────┐
//	│          dispatch                   │  dedupe ledger, retries,
//	│  (at-most-once plan execution)      │  per-action executors
//	└─────────────────────────────────────┘
//
// The decision core (types, cron, engine, policy) is pure: no I/O, no
// clocks beyond the event timestamp, no side effects. Everything
// stateful rides on NATS: rules and run records live in JetStream KV
// buckets, events and plans travel over subjects, and the companion
// gate answers permission checks via request/reply.
//
// # Key properties
//
//   - Evaluation is pure: same rule, same event, same decision.
//   - Plans are idempotent by dedupe key; the dispatcher's ledger
//     enforces at-most-once execution per key.
//   - Cron matching is UTC-only, minute-granular, and fails closed on
//     malformed expressions.
//   - Companion (AI) rule authoring passes through a trust-gated
//     policy; high-risk actions are never auto-enabled.
package forge
