package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/humam/internal/param"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - runs table with (stage, hash) and (label, seq) indexes
const currentSchemaVersion = 1

// RegistryFile is the registry database name under the store root.
const RegistryFile = "registry.db"

// Record is one committed stage result.
type Record struct {
	Seq           int64
	RunID         string
	Label         string
	Stage         Stage
	Hash          param.Identifier
	ParentHash    param.Identifier
	Path          string
	LayoutVersion string
	ToolVersion   string
}

// IDGenerator produces run ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. Panics if generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Registry records committed runs in SQLite with WAL mode.
type Registry struct {
	db  *sql.DB
	ids IDGenerator
}

// OpenRegistry creates or opens a registry database at path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Safe to call repeatedly and from several processes.
func OpenRegistry(path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Registry{db: db, ids: UUIDv7Generator{}}, nil
}

// SetIDGenerator replaces the run id source, for deterministic tests.
func (r *Registry) SetIDGenerator(g IDGenerator) {
	r.ids = g
}

// Close closes the database connection.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return stampVersion(db)
}

// stampVersion records the schema version for future migrations, which
// run against registries whose user_version is below currentSchemaVersion.
func stampVersion(db *sql.DB) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Record commits rec. Records are idempotent per (label, stage, hash):
// repeating one returns the stored record and false.
func (r *Registry) Record(ctx context.Context, rec Record) (Record, bool, error) {
	if _, err := ParseStage(string(rec.Stage)); err != nil {
		return Record{}, false, fmt.Errorf("record run: %w", err)
	}
	if _, err := param.ParseIdentifier(string(rec.Hash)); err != nil {
		return Record{}, false, fmt.Errorf("record run: %w", err)
	}
	if rec.LayoutVersion == "" {
		rec.LayoutVersion = param.LayoutVersion
	}
	if rec.ToolVersion == "" {
		rec.ToolVersion = param.ToolVersion
	}
	rec.RunID = r.ids.Generate()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, label, stage, hash, parent_hash, path, layout_version, tool_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(label, stage, hash) DO NOTHING
	`,
		rec.RunID,
		rec.Label,
		string(rec.Stage),
		string(rec.Hash),
		string(rec.ParentHash),
		rec.Path,
		rec.LayoutVersion,
		rec.ToolVersion,
	)
	if err != nil {
		return Record{}, false, fmt.Errorf("record run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, false, fmt.Errorf("record run: %w", err)
	}

	stored, err := r.get(ctx, rec.Label, rec.Stage, rec.Hash)
	if err != nil {
		return Record{}, false, err
	}
	return stored, n > 0, nil
}

func (r *Registry) get(ctx context.Context, label string, stage Stage, hash param.Identifier) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT seq, run_id, label, stage, hash, parent_hash, path, layout_version, tool_version
		FROM runs
		WHERE label = ? AND stage = ? AND hash = ?
	`, label, string(stage), string(hash))
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("read run: %w", err)
	}
	return rec, nil
}

// Lookup returns every record of hash for stage, oldest first.
func (r *Registry) Lookup(ctx context.Context, stage Stage, hash param.Identifier) ([]Record, error) {
	return r.query(ctx, `
		SELECT seq, run_id, label, stage, hash, parent_hash, path, layout_version, tool_version
		FROM runs
		WHERE stage = ? AND hash = ?
		ORDER BY seq ASC, run_id COLLATE BINARY ASC
	`, string(stage), string(hash))
}

// Runs returns the records of label, oldest first. An empty label lists
// every run.
func (r *Registry) Runs(ctx context.Context, label string) ([]Record, error) {
	if label == "" {
		return r.query(ctx, `
			SELECT seq, run_id, label, stage, hash, parent_hash, path, layout_version, tool_version
			FROM runs
			ORDER BY seq ASC, run_id COLLATE BINARY ASC
		`)
	}
	return r.query(ctx, `
		SELECT seq, run_id, label, stage, hash, parent_hash, path, layout_version, tool_version
		FROM runs
		WHERE label = ?
		ORDER BY seq ASC, run_id COLLATE BINARY ASC
	`, label)
}

func (r *Registry) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec                     Record
		stage, hash, parentHash string
	)
	err := s.Scan(&rec.Seq, &rec.RunID, &rec.Label, &stage, &hash, &parentHash,
		&rec.Path, &rec.LayoutVersion, &rec.ToolVersion)
	if err != nil {
		return Record{}, fmt.Errorf("scan run: %w", err)
	}
	rec.Stage = Stage(stage)
	rec.Hash = param.Identifier(hash)
	rec.ParentHash = param.Identifier(parentHash)
	return rec, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (r *Registry) verifyPragma(name, expected string) error {
	var value string
	if err := r.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
