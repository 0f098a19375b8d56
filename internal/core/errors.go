package core

import "errors"

// Error taxonomy shared by every package. Callers wrap these with fmt.Errorf("%w: ...")
// and match them with errors.Is.
var (
	// ErrParameter reports an invalid review count or malformed assignment input.
	ErrParameter = errors.New("invalid parameter")
	// ErrPopulation reports a batch with fewer than two distinct authors.
	ErrPopulation = errors.New("not enough distinct authors")
	// ErrPersistence reports an unreachable store or a failed transaction.
	ErrPersistence = errors.New("persistence failure")
	// ErrPassback reports a grade channel that is unreachable or rejected the update.
	ErrPassback = errors.New("grade passback failed")

	ErrNotFound        = errors.New("not found")
	ErrBatchExists     = errors.New("batch already exists")
	ErrNotReviewer     = errors.New("assignment belongs to another reviewer")
	ErrAlreadyReported = errors.New("report already claimed or delivered")
	ErrIncomplete      = errors.New("reviewer has pending assignments")
)
