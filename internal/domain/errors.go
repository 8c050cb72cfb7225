package domain

import "errors"

// ErrClassification is returned by the classifier after exhausting its
// retry/repair budget without obtaining valid JSON.
var ErrClassification = errors.New("classification: exhausted retries without valid response")

// ErrDuplicateEvent is returned by repository writes when an event hash
// already exists; callers treat it as an idempotent no-op, not a failure.
var ErrDuplicateEvent = errors.New("event: duplicate hash")
