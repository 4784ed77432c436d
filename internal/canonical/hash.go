package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// IdentityHash computes the deterministic content hash that defines logical
// event identity: SHA-256 of clientId|metric|amount|timestamp using canonical
// renderings of amount and timestamp. Two payloads normalizing to the same
// fields share a hash regardless of their raw shape.
func IdentityHash(f Fields) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		f.ClientID,
		f.Metric,
		formatAmount(f.Amount),
		f.Timestamp.UTC().Format(time.RFC3339Nano),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// SyntheticHash derives a per-attempt hash for records that never earn a real
// identity (rejected payloads). Keyed on the generated event id, so two
// rejected attempts can never collide with each other or with a real event.
func SyntheticHash(eventID string) string {
	hash := sha256.Sum256([]byte("rejected|" + eventID))
	return hex.EncodeToString(hash[:])
}

// formatAmount renders an amount with the shortest representation that
// round-trips, so 1200 and 1200.0 hash identically.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
