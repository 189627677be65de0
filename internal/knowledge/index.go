// Package knowledge maintains the embedded knowledge base: document chunks
// with embedding vectors in SQLite, ingestion from a directory of source
// files, and cosine-similarity retrieval over the stored vectors.
package knowledge

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// Index is the SQLite-backed chunk store.
type Index struct {
	db *sql.DB
}

// Chunk is one embedded slice of a source document.
type Chunk struct {
	Doc       string
	ChunkIdx  int
	Text      string
	Embedding []float32
}

// OpenIndex opens (or creates) the chunk database at path. Use ":memory:"
// for an ephemeral index.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge index: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (x *Index) initSchema() error {
	_, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			doc         TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text        TEXT NOT NULL,
			embedding   BLOB NOT NULL,
			PRIMARY KEY (doc, chunk_index)
		)`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (x *Index) Close() error {
	return x.db.Close()
}

// ReplaceDoc swaps all chunks for one document in a single transaction.
func (x *Index) ReplaceDoc(doc string, chunks []Chunk) error {
	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE doc = ?`, doc); err != nil {
		return fmt.Errorf("failed to clear chunks for %s: %w", doc, err)
	}
	for _, c := range chunks {
		if _, err := tx.Exec(
			`INSERT INTO chunks (doc, chunk_index, text, embedding) VALUES (?, ?, ?, ?)`,
			doc, c.ChunkIdx, c.Text, encodeVector(c.Embedding),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s#%d: %w", doc, c.ChunkIdx, err)
		}
	}
	return tx.Commit()
}

// All returns every stored chunk with its decoded embedding.
func (x *Index) All() ([]Chunk, error) {
	rows, err := x.db.Query(`SELECT doc, chunk_index, text, embedding FROM chunks ORDER BY doc, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.Doc, &c.ChunkIdx, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Embedding = decodeVector(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Count returns the number of stored chunks.
func (x *Index) Count() (int, error) {
	var n int
	if err := x.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
