package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// EncodePubkey renders a 32-byte key in base58, the canonical display form.
func EncodePubkey(key [PubkeyLen]byte) string {
	return base58.Encode(key[:])
}

// EncodeSignature renders a 64-byte signature in base58.
func EncodeSignature(sig [SignatureLen]byte) string {
	return base58.Encode(sig[:])
}

// ParsePubkey decodes a base58 string into a 32-byte key.
func ParsePubkey(s string) ([PubkeyLen]byte, error) {
	var key [PubkeyLen]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return key, fmt.Errorf("invalid pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeyLen {
		return key, fmt.Errorf("invalid pubkey %q: got %d bytes, want %d", s, len(raw), PubkeyLen)
	}
	copy(key[:], raw)
	return key, nil
}

// MustPubkey is ParsePubkey for compile-time constants; panics on bad input.
func MustPubkey(s string) [PubkeyLen]byte {
	key, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return key
}
