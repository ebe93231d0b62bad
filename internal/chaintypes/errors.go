package chaintypes

import "errors"

// Errors surfaced while constructing or validating chain data model values.
var (
	ErrEmptyTransactionSet = errors.New("chaintypes: empty transaction set")
	ErrNilDifficulty       = errors.New("chaintypes: nil difficulty target")
)
