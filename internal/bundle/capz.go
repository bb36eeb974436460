// Copyright 2025 Certen Protocol

package bundle

import (
	"encoding/base64"

	"github.com/capengine/cap-core/internal/caperr"
)

// WrapCAPZ produces the modern .capz container: the raw JSON payload,
// unmodified. The container's only job is to carry a backend tag via the
// file extension convention; it does not transform the bytes.
func WrapCAPZ(jsonPayload []byte) []byte {
	return jsonPayload
}

// UnwrapCAPZ returns the JSON payload from a .capz container (identity,
// mirroring WrapCAPZ).
func UnwrapCAPZ(raw []byte) ([]byte, error) {
	return raw, nil
}

// WrapLegacyDat base64-encodes a JSON payload for the legacy .dat
// convention.
func WrapLegacyDat(jsonPayload []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(jsonPayload)))
	base64.StdEncoding.Encode(out, jsonPayload)
	return out
}

// UnwrapLegacyDat decodes a base64-wrapped .dat payload back to JSON.
func UnwrapLegacyDat(raw []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(out, raw)
	if err != nil {
		return nil, caperr.Wrap(caperr.KindInputFormat, err, "decode legacy .dat payload")
	}
	return out[:n], nil
}
