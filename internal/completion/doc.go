// Package completion is the persistence adapter between the engine and
// the KV store. It exposes exactly the primitives the resolver and the
// protocol need: period-key existence checks (single and pipelined
// batch), the per-user append-only adjustment log, and the composite
// commit/revert units the protocol's confirm step executes atomically.
//
// The KV store is the engine's single source of truth. Any transport
// failure surfaces as a StoreUnavailableError so callers can distinguish
// "retry later" from caller mistakes.
package completion
