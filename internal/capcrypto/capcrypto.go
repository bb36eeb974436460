// Copyright 2025 Certen Protocol

// Package capcrypto is the only hash/signature surface in the proof lifecycle
// engine. Every other component reaches into this package rather than calling
// crypto/sha256, crypto/ed25519, or a BLAKE3 library directly.
package capcrypto

import (
	"crypto/ed25519"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"

	"github.com/capengine/cap-core/internal/caperr"
)

// HashSize is the fixed digest length for SHA3-256 and BLAKE3 in this system.
const HashSize = 32

// SHA3256 returns the 32-byte SHA3-256 digest of data.
func SHA3256(data []byte) [HashSize]byte {
	return sha3.Sum256(data)
}

// Blake3 returns the 32-byte BLAKE3 digest of data.
func Blake3(data []byte) [HashSize]byte {
	var out [HashSize]byte
	sum := blake3.Sum256(data)
	copy(out[:], sum[:])
	return out
}

// HexLower renders a digest as lower-case hex with a 0x prefix.
func HexLower(digest []byte) string {
	return "0x" + hex.EncodeToString(digest)
}

// DecodeHex parses a 0x-prefixed (or bare) lower-case hex digest and validates
// its length is exactly n bytes.
func DecodeHex(s string, n int) ([]byte, error) {
	trimmed := s
	if len(trimmed) >= 2 && trimmed[0] == '0' && (trimmed[1] == 'x' || trimmed[1] == 'X') {
		trimmed = trimmed[2:]
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "invalid hex digest")
	}
	if n > 0 && len(b) != n {
		return nil, caperr.Newf(caperr.KindInputFormat, "expected %d-byte digest, got %d", n, len(b))
	}
	return b, nil
}

// Ed25519Sign signs data with a 64-byte Ed25519 private key.
func Ed25519Sign(privateKey ed25519.PrivateKey, data []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, caperr.Newf(caperr.KindInputFormat, "private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	return ed25519.Sign(privateKey, data), nil
}

// Ed25519Verify verifies an Ed25519 signature over data under publicKey.
func Ed25519Verify(publicKey ed25519.PublicKey, data, sig []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, caperr.Newf(caperr.KindInputFormat, "public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	if len(sig) != ed25519.SignatureSize {
		return false, caperr.Newf(caperr.KindInputFormat, "signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	return ed25519.Verify(publicKey, data, sig), nil
}

// GenerateKeypair produces a fresh Ed25519 keypair using crypto/rand.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, caperr.Wrap(caperr.KindInputFormat, err, "keygen failed")
	}
	return pub, priv, nil
}

// DeriveKID computes kid = hex(BLAKE3(base64(public_key))[0:16]), per
// original_source/agent/src/keys.rs::derive_kid.
func DeriveKID(publicKeyB64 string) string {
	digest := Blake3([]byte(publicKeyB64))
	return hex.EncodeToString(digest[:16])
}

// Fingerprint computes a display-only SHA3-256-based fingerprint of raw public
// key bytes: "sha256:" + hex(SHA3-256(pubkey)[0:16]). This is never used for
// equality checks, only human-facing display, matching the original's
// compute_fingerprint.
func Fingerprint(publicKeyBytes []byte) string {
	digest := SHA3256(publicKeyBytes)
	return "sha256:" + hex.EncodeToString(digest[:16])
}
