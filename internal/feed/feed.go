// Package feed persists generated posts as JSON feed files read by the
// front end. Every write replaces the target atomically.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Shape is the on-disk layout of a feed file.
type Shape int

const (
	// ShapeObject is {"items": [...], "updated_at": ..., ...}.
	ShapeObject Shape = iota
	// ShapeArray is a bare JSON array of entries.
	ShapeArray
)

func (s Shape) String() string {
	if s == ShapeArray {
		return "array"
	}
	return "object"
}

// Feed is a loaded feed file, normalized to a list of items. Shape records
// the layout it was read from so Append can write it back the same way.
type Feed struct {
	Shape     Shape
	Items     []Entry
	UpdatedAt string
	Place     string
	// Extra holds unmodeled top-level keys of object feeds.
	Extra map[string]json.RawMessage
}

// PersistenceError means an existing feed file could not be read as a feed.
// Callers recover by starting from an empty feed.
type PersistenceError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("feed %s: %s", e.Path, e.Reason)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Load reads the feed at path. A missing file returns an error matching
// fs.ErrNotExist; anything else that is not a feed returns *PersistenceError.
func Load(path string) (Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Feed{}, err
		}
		return Feed{}, &PersistenceError{Path: path, Reason: "unreadable", Err: err}
	}
	f, err := Decode(data)
	if err != nil {
		return Feed{}, &PersistenceError{Path: path, Reason: "unexpected shape", Err: err}
	}
	return f, nil
}

// Decode parses either feed layout.
func Decode(data []byte) (Feed, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Feed{}, errors.New("empty file")
	}

	switch data[0] {
	case '[':
		items, err := decodeItems(data)
		if err != nil {
			return Feed{}, fmt.Errorf("decoding items: %w", err)
		}
		return Feed{Shape: ShapeArray, Items: items}, nil

	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return Feed{}, fmt.Errorf("decoding object: %w", err)
		}
		itemsRaw, ok := raw["items"]
		if !ok {
			return Feed{}, errors.New(`object has no "items"`)
		}
		f := Feed{Shape: ShapeObject}
		items, err := decodeItems(itemsRaw)
		if err != nil {
			return Feed{}, fmt.Errorf(`decoding "items": %w`, err)
		}
		f.Items = items
		delete(raw, "items")
		for key, dst := range map[string]*string{"updated_at": &f.UpdatedAt, "place": &f.Place} {
			if v, ok := raw[key]; ok && json.Unmarshal(v, dst) == nil {
				delete(raw, key)
			}
		}
		if len(raw) > 0 {
			f.Extra = raw
		}
		return f, nil

	default:
		return Feed{}, fmt.Errorf("top-level JSON must be an array or object, got %q", data[0])
	}
}

// decodeItems parses a JSON array of entries. Null elements are dropped so
// one bad slot does not cost the rest of the history.
func decodeItems(data []byte) ([]Entry, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	items := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		if string(bytes.TrimSpace(raw)) == "null" {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, e)
	}
	return items, nil
}

// Encode renders f in its shape with two-space indentation and no trailing
// newline.
func Encode(f Feed) ([]byte, error) {
	items := f.Items
	if items == nil {
		items = []Entry{}
	}

	var v any = items
	if f.Shape == ShapeObject {
		m := make(map[string]any, len(f.Extra)+3)
		for k, raw := range f.Extra {
			m[k] = raw
		}
		m["items"] = items
		if f.UpdatedAt != "" {
			m["updated_at"] = f.UpdatedAt
		}
		if f.Place != "" {
			m["place"] = f.Place
		}
		v = m
	}
	return marshalIndent(v)
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
