// Package engine is the Forge decision core: given a rule and an event,
// decide whether to fire, and if so produce a fully-specified,
// idempotent-by-key action plan.
//
// Everything in this package is a pure function of its explicit inputs.
// There is no retained state, no locking, and no I/O, so (rule, event)
// pairs may be evaluated concurrently without coordination. Scheduling,
// dedupe enforcement, and side effects all belong to callers.
package engine
