package cryptoprim

import (
	"encoding/hex"
	"fmt"
)

// decodeFixed hex-decodes text into a fixed-size destination slice, used by
// the MarshalText/UnmarshalText pairs below so Hash, PubKey, and Signature
// round-trip through JSON and serve as map keys.
func decodeFixed(dst []byte, text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("cryptoprim: decode hex: %w", err)
	}
	if len(decoded) != len(dst) {
		return fmt.Errorf("cryptoprim: expected %d bytes, got %d", len(dst), len(decoded))
	}
	copy(dst, decoded)
	return nil
}
