package push

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fetched is a value obtained from a server together with when it was
// obtained.
type Fetched struct {
	Value     string
	Timestamp time.Time
}

// NewFetched returns a Fetched with the timestamp truncated to the
// millisecond precision it is stored with.
func NewFetched(value string, at time.Time) Fetched {
	return Fetched{Value: value, Timestamp: time.UnixMilli(at.UnixMilli())}
}

type jsonFetched struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

func (f Fetched) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonFetched{Value: f.Value, Timestamp: f.Timestamp.UnixMilli()})
}

func (f *Fetched) UnmarshalJSON(b []byte) error {
	var jf jsonFetched
	if err := json.Unmarshal(b, &jf); err != nil {
		return fmt.Errorf("unmarshaling fetched value: %w", err)
	}
	if jf.Value == "" {
		return fmt.Errorf("fetched value: %w", ErrMissingField)
	}
	*f = Fetched{Value: jf.Value, Timestamp: time.UnixMilli(jf.Timestamp)}
	return nil
}

// OlderThan reports whether f was fetched more than d before now.
func (f Fetched) OlderThan(d time.Duration, now time.Time) bool {
	return now.Sub(f.Timestamp) > d
}
