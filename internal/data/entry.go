package data

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one cached payload and the time it was stored.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// Age returns how long ago the entry was stored.
func (e Entry) Age() time.Duration {
	return time.Since(e.StoredAt)
}

func encodeEntry(e Entry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode cache entry: %w", err)
	}
	return string(data), nil
}

func decodeEntry(raw string) (Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	if len(e.Payload) == 0 {
		return Entry{}, fmt.Errorf("decode cache entry: missing payload")
	}
	return e, nil
}
