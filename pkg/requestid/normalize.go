// Package requestid maps external device identifiers to canonical numeric
// request ids.
package requestid

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// HashModulus bounds ids derived from non-numeric device identifiers.
const HashModulus = 100_000_000

// Normalize returns the request id for deviceID. Integer strings map to their
// value (sign preserved). Anything else, including integers that overflow
// int64, maps to FNV-1a(deviceID) mod HashModulus, which is stable across
// processes and hosts. Changing the hash changes every derived id, so it must
// stay FNV-1a 64.
func Normalize(deviceID string) int64 {
	if n, err := strconv.ParseInt(strings.TrimSpace(deviceID), 10, 64); err == nil {
		return n
	}
	return Hash(deviceID)
}

// Hash is the fallback used by Normalize for non-numeric identifiers.
func Hash(deviceID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(deviceID))
	return int64(h.Sum64() % HashModulus)
}
