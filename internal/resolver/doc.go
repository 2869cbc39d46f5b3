// Package resolver decides, for each task in a batch, the best
// available completion date and how much to trust it.
//
// Resolution walks a strictly ordered tier chain and the first
// applicable tier wins:
//
//  1. cache hit                        (high)
//  2. period-key value in the store    (high)
//  3. authoritative adjustment logs    (high)
//  4. plausible self-reported date     (medium)
//  5. implausible self-reported date   (medium, "now" substituted)
//  6. no signal at all                 (low, "now" substituted)
//
// The resolver is fail-open by design: a store outage degrades
// confidence, it never fails the batch. Under-reporting completions is
// a worse product outcome than an imprecise date.
package resolver
