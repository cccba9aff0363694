// Package storage is the SQLite database behind the document index: source
// documents, their chunk vectors, and the log of generated answers.
package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dbFile is the database file name inside the data directory.
const dbFile = "localtalk.db"

// pragmas run once per connection; the pool holds exactly one.
var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates dataDir/localtalk.db and applies pending migrations.
// ":memory:" opens a private in-memory database.
func Open(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, dbFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database is per connection, and the
	// indexer and query path never need parallel writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the connection for the vector store, which shares it.
func (s *Store) DB() *sql.DB { return s.db }

type migration struct {
	version int
	name    string
}

func pendingMigrations(fsys fs.FS, applied map[int]bool) ([]migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, name := range names {
		var v int
		if _, err := fmt.Sscanf(filepath.Base(name), "%d_", &v); err != nil {
			return nil, fmt.Errorf("migration %q has no numeric prefix", name)
		}
		if !applied[v] {
			out = append(out, migration{version: v, name: name})
		}
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}

	versions, err := s.AppliedMigrations()
	if err != nil {
		return err
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	pending, err := pendingMigrations(migrationsFS, applied)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) apply(m migration) error {
	script, err := migrationsFS.ReadFile(m.name)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(script)); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}

// AppliedMigrations returns applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// scanner is the common part of *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at %q: %w", raw, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

// --- Documents ---

const documentCols = "id, source, title, format, chunk_count, created_at"

func scanDocument(row scanner, extra ...any) (Document, error) {
	var d Document
	var createdAt string
	dest := append([]any{&d.ID, &d.Source, &d.Title, &d.Format, &d.ChunkCount, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Document{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Document{}, err
	}
	d.CreatedAt = t
	return d, nil
}

// SaveDocument inserts doc or replaces the row with the same ID, keeping its
// original created_at. An empty format is stored as "text".
func (s *Store) SaveDocument(doc Document) error {
	if doc.Format == "" {
		doc.Format = "text"
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, source, title, content, format, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source, title = excluded.title, content = excluded.content,
			format = excluded.format, chunk_count = excluded.chunk_count`,
		doc.ID, doc.Source, doc.Title, doc.Content, doc.Format, doc.ChunkCount, formatTime(doc.CreatedAt),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var content string
	row := s.db.QueryRow("SELECT "+documentCols+", content FROM documents WHERE id = ?", id)
	d, err := scanDocument(row, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	d.Content = content
	return d, nil
}

// ListDocuments returns up to limit documents ordered by source path, without
// their content.
func (s *Store) ListDocuments(limit int) ([]Document, error) {
	rows, err := s.db.Query("SELECT "+documentCols+" FROM documents ORDER BY source LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CountDocuments() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// ClearDocuments removes every document and every vector in one transaction.
func (s *Store) ClearDocuments() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"context_vectors", "documents"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// --- Generations ---

const generationCols = "id, created_at, question, output_style, model, answer, source_keys"

func scanGeneration(row scanner) (Generation, error) {
	var g Generation
	var createdAt, keys string
	if err := row.Scan(&g.ID, &createdAt, &g.Question, &g.OutputStyle, &g.Model, &g.Answer, &keys); err != nil {
		return Generation{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Generation{}, err
	}
	g.CreatedAt = t
	if err := json.Unmarshal([]byte(keys), &g.SourceKeys); err != nil {
		return Generation{}, fmt.Errorf("generation %s: decoding source_keys: %w", g.ID, err)
	}
	return g, nil
}

// SaveGeneration appends g to the generation log. Nil SourceKeys are stored
// as an empty array.
func (s *Store) SaveGeneration(g Generation) error {
	keys := g.SourceKeys
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT INTO generations ("+generationCols+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		g.ID, formatTime(g.CreatedAt), g.Question, g.OutputStyle, g.Model, g.Answer, string(keysJSON),
	)
	return err
}

func (s *Store) GetGeneration(id string) (Generation, error) {
	g, err := scanGeneration(s.db.QueryRow("SELECT "+generationCols+" FROM generations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Generation{}, ErrNotFound
	}
	return g, err
}

// RecentGenerations returns up to limit generations, newest first.
func (s *Store) RecentGenerations(limit int) ([]Generation, error) {
	rows, err := s.db.Query("SELECT "+generationCols+" FROM generations ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
