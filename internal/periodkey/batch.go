package periodkey

import "time"

// GenerateInput is one request in a GenerateBatch call.
type GenerateInput struct {
	Period Period
	TaskID string
	Date   time.Time
}

// GenerateResult is the per-input outcome of GenerateBatch.
type GenerateResult struct {
	Key string
	Err error
}

// ParseResult is the per-input outcome of ParseBatch.
type ParseResult struct {
	Key Key
	Err error
}

// GenerateBatch generates one key per input. Invalid entries are
// reported individually, never aborting the batch, so a caller can
// discard-and-continue.
func GenerateBatch(inputs []GenerateInput, opts ...Option) []GenerateResult {
	results := make([]GenerateResult, len(inputs))
	for i, in := range inputs {
		key, err := Generate(in.Period, in.TaskID, in.Date, opts...)
		results[i] = GenerateResult{Key: key, Err: err}
	}
	return results
}

// ParseBatch parses one key per input with the same per-item error
// reporting as GenerateBatch.
func ParseBatch(keys []string) []ParseResult {
	results := make([]ParseResult, len(keys))
	for i, raw := range keys {
		key, err := Parse(raw)
		results[i] = ParseResult{Key: key, Err: err}
	}
	return results
}
