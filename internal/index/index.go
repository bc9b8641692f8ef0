// Package index persists vector stores as index directories. Each directory
// holds a single sqlite database with the records in insertion order and a
// small manifest naming the encoder that produced them.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
	"studyrag/internal/vectorstore/memory"
)

// FileName is the database file inside an index directory.
const FileName = "index.db"

const schema = `
CREATE TABLE manifest (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE records (
	id       INTEGER PRIMARY KEY,
	vector   BLOB NOT NULL,
	content  TEXT NOT NULL,
	metadata TEXT NOT NULL
);`

// Manifest describes a persisted index.
type Manifest struct {
	Encoder   string
	Dimension int
	Count     int
	CreatedAt time.Time
}

type recordRow struct {
	ID       int    `db:"id"`
	Vector   []byte `db:"vector"`
	Content  string `db:"content"`
	Metadata string `db:"metadata"`
}

type manifestRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Save writes store to dir, replacing any index already there.
func Save(ctx context.Context, dir string, store *memory.Storage, encoder string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	final := filepath.Join(dir, FileName)
	tmp := final + ".tmp"
	_ = os.Remove(tmp)

	db, err := sqlx.Open("sqlite", tmp)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}
	if err := write(ctx, db, store, encoder); err != nil {
		_ = db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("replace %s: %w", final, err)
	}
	return nil
}

func write(ctx context.Context, db *sqlx.DB, store *memory.Storage, encoder string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	records := store.Records()
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of record %d: %w", rec.ID, err)
		}
		row := recordRow{
			ID:       rec.ID,
			Vector:   vectorstore.EncodeVector(rec.Vector),
			Content:  rec.Content,
			Metadata: string(meta),
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO records (id, vector, content, metadata) VALUES (:id, :vector, :content, :metadata)`, row); err != nil {
			return fmt.Errorf("insert record %d: %w", rec.ID, err)
		}
	}

	manifest := []manifestRow{
		{Key: "encoder", Value: encoder},
		{Key: "dimension", Value: strconv.Itoa(store.Dimension())},
		{Key: "count", Value: strconv.Itoa(len(records))},
		{Key: "created_at", Value: time.Now().UTC().Format(time.RFC3339)},
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO manifest (key, value) VALUES (:key, :value)`, manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return tx.Commit()
}

// Load opens the index directory dir. A missing directory or database is a
// configuration error.
func Load(ctx context.Context, dir string) (*memory.Storage, Manifest, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Manifest{}, fmt.Errorf("%w: index not found at %s", domain.ErrConfiguration, dir)
		}
		return nil, Manifest{}, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, Manifest{}, fmt.Errorf("%w: open %s: %v", domain.ErrConfiguration, path, err)
	}
	defer db.Close()

	manifest, err := readManifest(ctx, db)
	if err != nil {
		return nil, Manifest{}, fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, dir, err)
	}

	var rows []recordRow
	if err := db.SelectContext(ctx, &rows, `SELECT id, vector, content, metadata FROM records ORDER BY id`); err != nil {
		return nil, Manifest{}, fmt.Errorf("%w: read records in %s: %v", domain.ErrConfiguration, dir, err)
	}

	var opts []memory.Option
	if manifest.Dimension > 0 {
		opts = append(opts, memory.WithDimension(manifest.Dimension))
	}
	store := memory.NewStorage(opts...)
	for i, row := range rows {
		if row.ID != i {
			return nil, Manifest{}, fmt.Errorf("%w: %s: record ids are not contiguous at %d", domain.ErrConfiguration, dir, row.ID)
		}
		vec, err := vectorstore.DecodeVector(row.Vector)
		if err != nil {
			return nil, Manifest{}, fmt.Errorf("%w: %s: record %d: %v", domain.ErrConfiguration, dir, row.ID, err)
		}
		meta, err := decodeMetadata(row.Metadata)
		if err != nil {
			return nil, Manifest{}, fmt.Errorf("%w: %s: record %d: %v", domain.ErrConfiguration, dir, row.ID, err)
		}
		if _, err := store.Add(ctx, vec, row.Content, meta); err != nil {
			return nil, Manifest{}, fmt.Errorf("%w: %s: record %d: %v", domain.ErrConfiguration, dir, row.ID, err)
		}
	}
	manifest.Count = len(rows)
	return store, manifest, nil
}

// LoadCorpus loads every directory in paths and merges them in order into
// the first. When encoder is set, each index must have been built with it.
func LoadCorpus(ctx context.Context, paths []string, encoder string) (*memory.Storage, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: corpus has no index paths", domain.ErrConfiguration)
	}
	var base *memory.Storage
	for _, p := range paths {
		store, manifest, err := Load(ctx, p)
		if err != nil {
			return nil, err
		}
		if encoder != "" && manifest.Encoder != "" && manifest.Encoder != encoder {
			return nil, fmt.Errorf("%w: index %s was built with %s, configured encoder is %s",
				domain.ErrConfiguration, p, manifest.Encoder, encoder)
		}
		if base == nil {
			base = store
			continue
		}
		if err := memory.Merge(base, store); err != nil {
			return nil, fmt.Errorf("merge %s: %w", p, err)
		}
	}
	return base, nil
}

func readManifest(ctx context.Context, db *sqlx.DB) (Manifest, error) {
	var rows []manifestRow
	if err := db.SelectContext(ctx, &rows, `SELECT key, value FROM manifest`); err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	for _, r := range rows {
		switch r.Key {
		case "encoder":
			m.Encoder = r.Value
		case "dimension":
			d, err := strconv.Atoi(r.Value)
			if err != nil {
				return Manifest{}, fmt.Errorf("manifest dimension: %w", err)
			}
			m.Dimension = d
		case "count":
			m.Count, _ = strconv.Atoi(r.Value)
		case "created_at":
			m.CreatedAt, _ = time.Parse(time.RFC3339, r.Value)
		}
	}
	return m, nil
}

func decodeMetadata(raw string) (domain.Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var meta domain.Metadata
	if err := dec.Decode(&meta); err != nil {
		return nil, err
	}
	for k, v := range meta {
		meta[k] = fromJSONNumber(v)
	}
	return meta, nil
}

// fromJSONNumber turns decoded numbers back into int when integral and
// float64 otherwise, so page numbers keep the type they were saved with.
func fromJSONNumber(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(x.String()); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = fromJSONNumber(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = fromJSONNumber(x[k])
		}
		return x
	default:
		return v
	}
}

// Merge combines the indices in inputs, in order, and saves the result to
// out. All inputs must share an encoder.
func Merge(ctx context.Context, out string, inputs []string) (Manifest, error) {
	if len(inputs) == 0 {
		return Manifest{}, fmt.Errorf("%w: nothing to merge", domain.ErrConfiguration)
	}
	var (
		base    *memory.Storage
		encoder string
	)
	for _, in := range inputs {
		store, manifest, err := Load(ctx, in)
		if err != nil {
			return Manifest{}, err
		}
		if base == nil {
			base, encoder = store, manifest.Encoder
			continue
		}
		if manifest.Encoder != encoder {
			return Manifest{}, fmt.Errorf("%w: %s was built with %s, expected %s",
				domain.ErrConfiguration, in, manifest.Encoder, encoder)
		}
		if err := memory.Merge(base, store); err != nil {
			return Manifest{}, fmt.Errorf("merge %s: %w", in, err)
		}
	}
	if err := Save(ctx, out, base, encoder); err != nil {
		return Manifest{}, err
	}
	return Manifest{Encoder: encoder, Dimension: base.Dimension(), Count: base.Len()}, nil
}
