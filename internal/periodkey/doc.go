// Package periodkey implements the completion-key codec: the
// bidirectional mapping between (period, task, date) and the canonical
// key string stored in the KV store.
//
// Key grammar:
//
//	task:completion:{period}:{taskId}:{datePart}
//
// where period is one of daily, weekly, monthly and datePart is
// YYYY-MM-DD, YYYY-Www (ISO week), or YYYY-MM respectively.
//
// Two timestamps that fall in the same period instance always normalize
// to the same datePart; the mapping is many-to-one, deterministic, and
// UTC-based with no locale dependence.
package periodkey
