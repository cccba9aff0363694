// Package weather produces the live weather snapshot a post is grounded on.
package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// DefaultTimezone applies when a snapshot carries none.
const DefaultTimezone = "Asia/Tokyo"

// Place identifies where the weather is for.
type Place struct {
	Name     string
	Lat      float64
	Lon      float64
	Timezone string
}

// Snapshot is one weather observation. Raw is the full JSON object as
// produced by the provider; the typed fields are read from it.
type Snapshot struct {
	Place       string
	Timezone    string
	CurrentTime string
	Source      string
	Raw         map[string]any
}

// SnapshotError means the weather capability produced empty or invalid
// output. It is never retried.
type SnapshotError struct {
	Source string
	Reason string
	Err    error
}

func (e *SnapshotError) Error() string {
	msg := fmt.Sprintf("weather snapshot (%s): %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// Parse decodes a snapshot from JSON text. source names the producer for
// error messages.
func Parse(source string, data []byte) (Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Snapshot{}, &SnapshotError{Source: source, Reason: "snapshot is empty"}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Snapshot{}, &SnapshotError{Source: source, Reason: "snapshot is not valid JSON", Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Snapshot{}, &SnapshotError{Source: source, Reason: "snapshot is not a JSON object"}
	}
	return FromMap(obj), nil
}

// FromMap wraps an already-decoded object.
func FromMap(raw map[string]any) Snapshot {
	s := Snapshot{Raw: raw}
	s.Place, _ = raw["place"].(string)
	s.Timezone, _ = raw["timezone"].(string)
	s.Source, _ = raw["source"].(string)
	if cur, ok := raw["current"].(map[string]any); ok {
		s.CurrentTime, _ = cur["time"].(string)
	}
	return s
}

// Location loads the snapshot's IANA zone, falling back to DefaultTimezone.
func (s Snapshot) Location() (*time.Location, error) {
	name := s.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}

// LocalTime parses current.time and converts it to the snapshot's zone.
func (s Snapshot) LocalTime() (time.Time, error) {
	if s.CurrentTime == "" {
		return time.Time{}, &SnapshotError{Source: s.Source, Reason: "current.time is missing"}
	}
	t, err := time.Parse(time.RFC3339, s.CurrentTime)
	if err != nil {
		return time.Time{}, &SnapshotError{Source: s.Source, Reason: "current.time is not RFC 3339", Err: err}
	}
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// JSON renders Raw without HTML escaping.
func (s Snapshot) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.Raw); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// InjectNow returns a copy of s whose timezone and current.time reflect now,
// so the model reads the run's clock rather than the provider's. An empty
// source defaults to "jma". The original snapshot is not modified.
func InjectNow(s Snapshot, now time.Time) Snapshot {
	raw := make(map[string]any, len(s.Raw)+3)
	maps.Copy(raw, s.Raw)

	tz := now.Location().String()
	if tz == "" || tz == "Local" {
		tz = s.Timezone
	}
	if tz == "" {
		tz = DefaultTimezone
	}
	raw["timezone"] = tz

	current := map[string]any{}
	if cur, ok := s.Raw["current"].(map[string]any); ok {
		maps.Copy(current, cur)
	}
	current["time"] = now.Truncate(time.Second).Format(time.RFC3339)
	raw["current"] = current

	if src, _ := raw["source"].(string); src == "" {
		raw["source"] = "jma"
	}
	return FromMap(raw)
}
