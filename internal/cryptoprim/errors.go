package cryptoprim

import "errors"

// Errors returned by the crypto primitives (§4.1, §7 Crypto{...} taxonomy).
var (
	ErrInvalidKey       = errors.New("cryptoprim: invalid key")
	ErrInvalidSignature = errors.New("cryptoprim: invalid signature")
	ErrHashFailure      = errors.New("cryptoprim: hash failure")
)
