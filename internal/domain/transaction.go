package domain

import (
	"fmt"
	"strconv"
	"time"
)

// EpochMillis is a Unix-millisecond timestamp. On the wire it accepts a
// raw number, a numeric string, or a calendar date string (RFC 3339 or
// date-only) and always marshals back to the numeric form, so histories
// exported from different upstream systems normalize to one shape.
type EpochMillis int64

// NewEpochMillis converts a time.Time to its millisecond representation.
func NewEpochMillis(t time.Time) EpochMillis {
	return EpochMillis(t.UnixMilli())
}

// Time returns the timestamp as a UTC time.Time.
func (m EpochMillis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

// MarshalJSON implements json.Marshaler.
func (m EpochMillis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(m), 10)), nil
}

// Layouts tried for date-like timestamp strings, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *EpochMillis) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*m = EpochMillis(ms)
			return nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				*m = EpochMillis(t.UnixMilli())
				return nil
			}
		}
		return fmt.Errorf("invalid timestamp value %q", s)
	}

	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// JSON numbers may carry a fractional part; truncate to ms.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid timestamp value %q: %w", s, err)
		}
		ms = int64(f)
	}
	*m = EpochMillis(ms)
	return nil
}

// Transaction is a single transfer in an entity's history. The pattern
// engine treats it as immutable input; TenantID is used only by the
// service layer for isolation and is ignored by the engine.
type Transaction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	// Counterparty labels. Their semantics are opaque to the engine;
	// detectors only compare them for equality.
	From string `json:"from"`
	To   string `json:"to"`

	// Amount in a single implicit currency unit per batch.
	Amount float64 `json:"amount"`

	Timestamp EpochMillis `json:"timestamp"`

	// Type is a free-form label ("transfer", "return", "incoming", ...).
	// Only round-trip detection reads it.
	Type string `json:"type,omitempty"`

	// Currency and Jurisdiction are optional; only mirror-trading
	// detection reads the jurisdiction.
	Currency     string `json:"currency,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

// TransactionRequest is the API request payload for ingesting a
// transaction into the history store.
type TransactionRequest struct {
	ID           string      `json:"id,omitempty"`
	From         string      `json:"from"`
	To           string      `json:"to"`
	Amount       float64     `json:"amount"`
	Timestamp    EpochMillis `json:"timestamp,omitempty"`
	Type         string      `json:"type,omitempty"`
	Currency     string      `json:"currency,omitempty"`
	Jurisdiction string      `json:"jurisdiction,omitempty"`
}

// ToTransaction converts a request to a Transaction owned by tenantID.
// A zero timestamp defaults to the ingest instant.
func (r *TransactionRequest) ToTransaction(tenantID string) *Transaction {
	ts := r.Timestamp
	if ts == 0 {
		ts = NewEpochMillis(time.Now().UTC())
	}
	return &Transaction{
		ID:           r.ID,
		TenantID:     tenantID,
		From:         r.From,
		To:           r.To,
		Amount:       r.Amount,
		Timestamp:    ts,
		Type:         r.Type,
		Currency:     r.Currency,
		Jurisdiction: r.Jurisdiction,
	}
}
