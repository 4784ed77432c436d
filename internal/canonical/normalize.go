// Package canonical reduces arbitrarily-shaped JSON payloads to the canonical
// event fields and computes the content hash that defines event identity.
package canonical

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/meterline/meterline/internal/domain"
)

// Fields holds the four canonical fields extracted from a raw payload.
type Fields struct {
	ClientID  string
	Metric    string
	Amount    float64
	Timestamp time.Time
}

// Accepted alternate names per canonical field, in resolution order.
var (
	clientIDKeys  = []string{"source", "client_id", "clientId", "client", "origin"}
	metricKeys    = []string{"metric", "event_type", "type", "eventType", "name"}
	amountKeys    = []string{"amount", "value", "count", "quantity", "total", "price"}
	timestampKeys = []string{"timestamp", "time", "date", "created_at", "createdAt", "ts"}
)

// DefaultMetric is used when no metric field is detected.
const DefaultMetric = "unknown"

// Normalizer extracts canonical fields from raw JSON payloads.
type Normalizer struct {
	// Now supplies the fallback timestamp for payloads without a parseable
	// time field. Defaults to time.Now.
	Now func() time.Time
}

// NewNormalizer creates a normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize extracts the canonical fields from a raw JSON payload.
//
// Field lookup tries each alternate name at the top level first, then once
// more under a "payload" sub-object. A candidate field only wins if its value
// coerces: a later name with a usable value beats an earlier name with a
// broken one. Missing clientId or amount is fatal; metric and timestamp fall
// back to defaults.
func (n *Normalizer) Normalize(raw json.RawMessage) (Fields, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Fields{}, &domain.NormalizationError{Reason: fmt.Sprintf("payload is not a JSON object: %v", err)}
	}

	var f Fields

	clientID, ok := resolveString(payload, clientIDKeys)
	if !ok {
		return Fields{}, &domain.NormalizationError{Reason: "client_id not found"}
	}
	f.ClientID = clientID

	if metric, ok := resolveString(payload, metricKeys); ok {
		f.Metric = metric
	} else {
		f.Metric = DefaultMetric
	}

	amount, ok := resolveAmount(payload)
	if !ok {
		return Fields{}, &domain.NormalizationError{Reason: "amount not found or invalid"}
	}
	f.Amount = amount

	if ts, ok := resolveTimestamp(payload); ok {
		f.Timestamp = ts
	} else {
		f.Timestamp = n.Now()
	}

	return f, nil
}

// scopes returns the payload maps to search, outermost first.
func scopes(payload map[string]interface{}) []map[string]interface{} {
	out := []map[string]interface{}{payload}
	if nested, ok := payload["payload"].(map[string]interface{}); ok {
		out = append(out, nested)
	}
	return out
}

func resolveString(payload map[string]interface{}, keys []string) (string, bool) {
	for _, m := range scopes(payload) {
		for _, key := range keys {
			v, ok := m[key]
			if !ok {
				continue
			}
			if s, ok := coerceString(v); ok {
				return s, true
			}
		}
	}
	return "", false
}

func resolveAmount(payload map[string]interface{}) (float64, bool) {
	for _, m := range scopes(payload) {
		for _, key := range amountKeys {
			v, ok := m[key]
			if !ok {
				continue
			}
			if a, ok := coerceAmount(v); ok {
				return a, true
			}
		}
	}
	return 0, false
}

func resolveTimestamp(payload map[string]interface{}) (time.Time, bool) {
	for _, m := range scopes(payload) {
		for _, key := range timestampKeys {
			v, ok := m[key]
			if !ok {
				continue
			}
			if ts, ok := coerceTimestamp(v); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func coerceString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case float64:
		return formatAmount(val), true
	default:
		return "", false
	}
}

func coerceAmount(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, isFinite(val)
	case string:
		// Strip currency symbols, thousands separators and whitespace before
		// parsing, e.g. "$1,200.50" -> "1200.50".
		cleaned := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' || r == '.' || r == '-' {
				return r
			}
			return -1
		}, val)
		if cleaned == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return parsed, isFinite(parsed)
	default:
		return 0, false
	}
}

// unixMillisThreshold splits numeric timestamps: values below it are treated
// as Unix seconds, values at or above it as milliseconds.
const unixMillisThreshold = 1e10

func coerceTimestamp(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case float64:
		if !isFinite(val) {
			return time.Time{}, false
		}
		if math.Abs(val) < unixMillisThreshold {
			return time.Unix(int64(val), 0).UTC(), true
		}
		return time.UnixMilli(int64(val)).UTC(), true
	case string:
		return parseTimeString(strings.TrimSpace(val))
	default:
		return time.Time{}, false
	}
}

func parseTimeString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Date-only shapes: YYYY/M/D, YYYY-M-D and M/D/YYYY, with or without
	// zero padding. Resolved to midnight UTC.
	for _, sep := range []string{"/", "-"} {
		parts := strings.Split(s, sep)
		if len(parts) != 3 {
			continue
		}
		if t, ok := dateFromParts(parts[0], parts[1], parts[2]); ok {
			return t, true
		}
		if t, ok := dateFromParts(parts[2], parts[0], parts[1]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func dateFromParts(year, month, day string) (time.Time, bool) {
	if len(year) != 4 {
		return time.Time{}, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
