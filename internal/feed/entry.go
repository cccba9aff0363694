package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one published post. Fields not modeled here are kept in Extra so
// entries written by other tools survive a rewrite unchanged.
type Entry struct {
	ID          string
	Date        string // YYYY-MM-DD, local to the place
	GeneratedAt string // RFC 3339, second precision
	Place       string
	Text        string
	Image       string
	Detail      map[string]any
	Extra       map[string]json.RawMessage
}

// NewEntry builds an entry for a post generated at local. The id has the
// form feed_YYYYMMDD_HHMMSS_<zone abbreviation>.
func NewEntry(local time.Time, place, text string) Entry {
	local = local.Truncate(time.Second)
	return Entry{
		ID:          EntryID(local),
		Date:        local.Format(time.DateOnly),
		GeneratedAt: local.Format(time.RFC3339),
		Place:       place,
		Text:        text,
	}
}

// EntryID derives the log-feed identity from a local timestamp.
func EntryID(local time.Time) string {
	zone, _ := local.Zone()
	if zone == "" {
		zone = "UTC"
	}
	return fmt.Sprintf("feed_%s_%s", local.Format("20060102_150405"), zone)
}

var modeledKeys = []string{"id", "date", "generated_at", "place", "text", "image", "detail"}

func (e Entry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Extra)+len(modeledKeys))
	for k, v := range e.Extra {
		m[k] = v
	}
	setString := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	setString("id", e.ID)
	setString("date", e.Date)
	setString("generated_at", e.GeneratedAt)
	setString("place", e.Place)
	if _, kept := e.Extra["text"]; !kept || e.Text != "" {
		m["text"] = e.Text
	}
	setString("image", e.Image)
	if len(e.Detail) > 0 {
		m["detail"] = e.Detail
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("feed entry is null")
	}

	*e = Entry{}
	fields := map[string]*string{
		"id":           &e.ID,
		"date":         &e.Date,
		"generated_at": &e.GeneratedAt,
		"place":        &e.Place,
		"text":         &e.Text,
		"image":        &e.Image,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok {
			continue
		}
		// Non-string values, null included, stay in Extra untouched.
		if string(v) == "null" || json.Unmarshal(v, dst) != nil {
			continue
		}
		delete(raw, key)
	}
	if v, ok := raw["detail"]; ok {
		if err := json.Unmarshal(v, &e.Detail); err == nil {
			delete(raw, "detail")
		}
	}
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}
