package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"time"
)

const fileMode fs.FileMode = 0o644

// Store mutates feed files. Runs are expected to be serialized externally;
// there is no locking beyond atomic rename.
type Store struct {
	// Now stamps updated_at on rolling feeds. Defaults to time.Now.
	Now func() time.Time
}

// NewStore returns a Store using the wall clock.
func NewStore() *Store {
	return &Store{Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// loadPrimary returns the feed from the first target that exists. A target
// that exists but cannot be read as a feed yields an empty feed and a
// warning; later targets are not consulted because they are mirrors.
func loadPrimary(targets []string, fallback Shape) Feed {
	for _, path := range targets {
		f, err := Load(path)
		if err == nil {
			return f
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		slog.Warn("starting from empty feed", "path", path, "error", err)
		return Feed{Shape: fallback}
	}
	return Feed{Shape: fallback}
}

// writeAll writes f to every target. The first failure aborts; targets
// already written keep the new content.
func writeAll(targets []string, f Feed) error {
	data, err := Encode(f)
	if err != nil {
		return fmt.Errorf("encoding feed: %w", err)
	}
	for _, path := range targets {
		if err := writeFileAtomic(path, data, fileMode); err != nil {
			return fmt.Errorf("writing feed %s: %w", path, err)
		}
	}
	return nil
}

// UpsertByDate maintains a rolling feed keyed by date: the entry replaces any
// item with the same date, items are sorted newest date first and trimmed to
// max(1, maxItems). The result is always written in object shape with a
// fresh updated_at.
func (s *Store) UpsertByDate(targets []string, entry Entry, maxItems int) (Feed, error) {
	if len(targets) == 0 {
		return Feed{}, nil
	}
	if entry.Date == "" {
		return Feed{}, errors.New("entry has no date")
	}

	f := loadPrimary(targets, ShapeObject)
	f.Shape = ShapeObject

	items := make([]Entry, 0, len(f.Items)+1)
	for _, it := range f.Items {
		if it.Date != entry.Date {
			items = append(items, it)
		}
	}
	items = append(items, entry)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date > items[j].Date })
	if limit := max(1, maxItems); len(items) > limit {
		items = items[:limit]
	}

	f.Items = items
	f.UpdatedAt = s.now().UTC().Truncate(time.Second).Format(time.RFC3339)
	if entry.Place != "" {
		f.Place = entry.Place
	}

	if err := writeAll(targets, f); err != nil {
		return Feed{}, err
	}
	slog.Info("rolling feed updated", "date", entry.Date, "items", len(f.Items), "targets", len(targets))
	return f, nil
}

// Append adds entry to the front of a log feed keyed by id. An existing item
// with the same id is replaced. The shape of the first existing target is
// kept; a new feed is a bare array.
func (s *Store) Append(targets []string, entry Entry) (Feed, error) {
	if len(targets) == 0 {
		return Feed{}, nil
	}

	f := loadPrimary(targets, ShapeArray)

	items := make([]Entry, 0, len(f.Items)+1)
	items = append(items, entry)
	for _, it := range f.Items {
		if entry.ID != "" && it.ID == entry.ID {
			continue
		}
		items = append(items, it)
	}
	f.Items = items

	if err := writeAll(targets, f); err != nil {
		return Feed{}, err
	}
	slog.Info("feed appended", "id", entry.ID, "items", len(f.Items), "shape", f.Shape.String(), "targets", len(targets))
	return f, nil
}

// WriteLatest overwrites every target with entry alone.
func (s *Store) WriteLatest(targets []string, entry Entry) error {
	if len(targets) == 0 {
		return nil
	}
	data, err := marshalIndent(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	for _, path := range targets {
		if err := writeFileAtomic(path, data, fileMode); err != nil {
			return fmt.Errorf("writing latest %s: %w", path, err)
		}
	}
	return nil
}

// LoadLatest reads a pointer file written by WriteLatest.
func LoadLatest(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, &PersistenceError{Path: path, Reason: "not an entry", Err: err}
	}
	return e, nil
}
