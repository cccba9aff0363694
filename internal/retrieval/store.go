package retrieval

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore keeps chunk vectors in the context_vectors table and searches
// them by brute-force cosine distance. The table comes from the storage
// migrations.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const recordColumns = "id, doc_id, source_key, chunk_index, text_chunk, embedding, metadata, created_at"

// Insert adds records atomically: a failing row leaves the table unchanged.
func (s *SQLiteStore) Insert(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO context_vectors ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		created := cmp.Or(r.CreatedAt, now)
		if _, err := stmt.ExecContext(ctx, r.ID, r.DocID, r.SourceKey, r.ChunkIndex, r.TextChunk,
			encodeVector(r.Embedding), cmp.Or(r.Metadata, "{}"), created.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// hit is a search candidate before its row is loaded.
type hit struct {
	id   string
	dist float64
}

func compareHits(a, b hit) int {
	if c := cmp.Compare(a.dist, b.dist); c != 0 {
		return c
	}
	return strings.Compare(a.id, b.id)
}

// nearest keeps the k closest hits seen so far, sorted by distance.
type nearest struct {
	k    int
	hits []hit
}

func (n *nearest) offer(h hit) {
	if len(n.hits) == n.k && compareHits(h, n.hits[n.k-1]) >= 0 {
		return
	}
	i, _ := slices.BinarySearchFunc(n.hits, h, compareHits)
	n.hits = slices.Insert(n.hits, i, h)
	if len(n.hits) > n.k {
		n.hits = n.hits[:n.k]
	}
}

// Search returns the topK records nearest to vector, closest first. Only
// ids and embeddings are read during the scan; full rows are loaded for the
// winners. A zero query vector or topK <= 0 matches nothing.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	qNorm := norm(vector)
	if topK <= 0 || qNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, embedding FROM context_vectors")
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	defer rows.Close()

	best := nearest{k: topK}
	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vectors: %w", err)
		}
		if buf, err = decodeVector(buf, blob); err != nil {
			return nil, fmt.Errorf("vector %s: %w", id, err)
		}
		best.offer(hit{id: id, dist: 1 - cosine(vector, qNorm, buf)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	if len(best.hits) == 0 {
		return nil, nil
	}
	return s.load(ctx, best.hits)
}

// load fetches the rows for hits and returns them in hit order.
func (s *SQLiteStore) load(ctx context.Context, hits []hit) ([]ScoredRecord, error) {
	args := make([]any, len(hits))
	rank := make(map[string]int, len(hits))
	for i, h := range hits {
		args[i] = h.id
		rank[h.id] = i
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hits)), ",")
	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM context_vectors WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("loading hits: %w", err)
	}
	defer rows.Close()

	out := make([]ScoredRecord, len(hits))
	found := 0
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		i := rank[r.ID]
		out[i] = ScoredRecord{Record: r, Distance: hits[i].dist}
		found++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if found != len(hits) {
		// A concurrent delete removed some winners between the two queries.
		out = slices.DeleteFunc(out, func(r ScoredRecord) bool { return r.ID == "" })
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var blob []byte
	var created string
	if err := rows.Scan(&r.ID, &r.DocID, &r.SourceKey, &r.ChunkIndex, &r.TextChunk, &blob, &r.Metadata, &created); err != nil {
		return Record{}, fmt.Errorf("scanning record: %w", err)
	}
	vec, err := decodeVector(nil, blob)
	if err != nil {
		return Record{}, fmt.Errorf("vector %s: %w", r.ID, err)
	}
	r.Embedding = vec
	if r.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return Record{}, fmt.Errorf("record %s: parsing created_at: %w", r.ID, err)
	}
	return r, nil
}

// DeleteByDoc removes all vectors of docID. Unknown documents are not an error.
func (s *SQLiteStore) DeleteByDoc(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM context_vectors WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting vectors of %s: %w", docID, err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM context_vectors").Scan(&n)
	return n, err
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	b := make([]byte, 0, 4*len(v))
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// decodeVector unpacks b into buf, reusing its capacity.
func decodeVector(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob of %d bytes is not a float32 vector", len(b))
	}
	buf = slices.Grow(buf[:0], len(b)/4)[:len(b)/4]
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return buf, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of q (with precomputed norm qNorm)
// and v. Mismatched dimensions and zero vectors score 0.
func cosine(q []float32, qNorm float64, v []float32) float64 {
	if len(q) != len(v) {
		return 0
	}
	var dot, vv float64
	for i, f := range v {
		dot += float64(q[i]) * float64(f)
		vv += float64(f) * float64(f)
	}
	if vv == 0 {
		return 0
	}
	return dot / (qNorm * math.Sqrt(vv))
}
