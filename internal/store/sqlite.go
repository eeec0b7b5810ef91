package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
)

// SchemaVersion is recorded in the meta table on open.
const SchemaVersion = "1"

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu      sync.Mutex // guards entropy
	entropy *ulid.MonotonicEntropy
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used for best-effort warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// The database runs in WAL mode with synchronous=NORMAL so readers never
// block the single writer.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		logger:  slog.Default(),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// NewID returns a new sortable unique identifier.
func (s *SQLiteStore) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blobs (
		key        TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		mime       TEXT,
		size       INTEGER NOT NULL,
		hash       TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS global_memories (
		key TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS project_memories (
		key TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_project_memories_path
		ON project_memories(json_extract(doc, '$.projectPath'));
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, SchemaVersion)
	return err
}

func collectionTable(scope model.Scope) (string, error) {
	switch scope {
	case model.ScopeGlobal:
		return "global_memories", nil
	case model.ScopeProject:
		return "project_memories", nil
	}
	return "", fmt.Errorf("store: invalid scope %q", scope)
}

// --- meta ---

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	return v, err
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// --- blobs ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func putBlob(ctx context.Context, db execer, key string, data []byte, mime string, now time.Time) (*model.BlobMeta, error) {
	meta := &model.BlobMeta{
		Key:       key,
		Size:      int64(len(data)),
		Hash:      contentHash(data),
		MIME:      mime,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO blobs (key, data, mime, size, hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			mime = excluded.mime,
			size = excluded.size,
			hash = excluded.hash,
			updated_at = excluded.updated_at`,
		key, data, nullString(mime), meta.Size, meta.Hash, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("write blob %s: %w", key, err)
	}
	return meta, nil
}

func (s *SQLiteStore) PutBlob(ctx context.Context, key string, data []byte, mime string) (*model.BlobMeta, error) {
	meta, err := putBlob(ctx, s.db, key, data, mime, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	// created_at survives overwrites; read back the stored value.
	return s.StatBlob(ctx, meta.Key)
}

func (s *SQLiteStore) GetBlob(ctx context.Context, key string) ([]byte, *model.BlobMeta, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT data, key, mime, size, hash, created_at, updated_at FROM blobs WHERE key = ?`, key)
	meta, err := scanBlobMeta(row, &data)
	if err != nil {
		return nil, nil, err
	}
	return data, meta, nil
}

func (s *SQLiteStore) StatBlob(ctx context.Context, key string) (*model.BlobMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, mime, size, hash, created_at, updated_at FROM blobs WHERE key = ?`, key)
	return scanBlobMeta(row, nil)
}

func scanBlobMeta(row *sql.Row, data *[]byte) (*model.BlobMeta, error) {
	var m model.BlobMeta
	var mime sql.NullString
	var created, updated int64
	dest := []any{&m.Key, &mime, &m.Size, &m.Hash, &created, &updated}
	if data != nil {
		dest = append([]any{data}, dest...)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob: %w", ErrNotFound)
		}
		return nil, err
	}
	m.MIME = mime.String
	m.CreatedAt = time.UnixMilli(created).UTC()
	m.UpdatedAt = time.UnixMilli(updated).UTC()
	return &m, nil
}

func (s *SQLiteStore) DeleteBlob(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key)
	return err
}

// --- memories ---

func (s *SQLiteStore) PutMemory(ctx context.Context, m *model.Memory, vec embedding.Vector) error {
	table, err := collectionTable(m.Scope)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = s.NewID()
	}
	doc, err := json.Marshal(toRecord(m))
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+table+` (key, doc) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET doc = excluded.doc`, m.ID, string(doc))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	if _, err := putBlob(ctx, tx, model.EmbeddingKey(m.ID), encodeVector(vec), EmbeddingMIME, time.Now().UTC()); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetMemory(ctx context.Context, scope model.Scope, id string) (*model.Memory, error) {
	table, err := collectionTable(scope)
	if err != nil {
		return nil, err
	}
	var doc string
	err = s.db.QueryRowContext(ctx, `SELECT doc FROM `+table+` WHERE key = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	m, err := decodeDoc(doc)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) DeleteMemory(ctx context.Context, scope model.Scope, id string) error {
	table, err := collectionTable(scope)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE key = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, model.EmbeddingKey(id)); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListMemories(ctx context.Context, p ListParams) ([]model.Memory, error) {
	scopes := p.Scope.Scopes()
	if len(scopes) == 0 {
		return nil, fmt.Errorf("store: invalid scope %q", p.Scope)
	}

	var memories []model.Memory
	for _, scope := range scopes {
		table, _ := collectionTable(scope)
		where := []string{"1 = 1"}
		var args []any
		if scope == model.ScopeProject && p.ProjectPath != "" {
			where = append(where, "json_extract(doc, '$.projectPath') = ?")
			args = append(args, p.ProjectPath)
		}
		if p.Category != "" {
			where = append(where, "json_extract(doc, '$.category') = ?")
			args = append(args, string(p.Category))
		}
		query := `SELECT doc FROM ` + table + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY key DESC`
		if p.Limit > 0 {
			query += ` LIMIT ?`
			args = append(args, p.Limit)
		}

		ms, err := s.queryDocs(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		memories = append(memories, ms...)
	}

	if len(scopes) > 1 {
		// Keys are ULIDs, so key order is creation order across tables.
		sort.SliceStable(memories, func(i, j int) bool { return memories[i].ID > memories[j].ID })
	}
	if p.Limit > 0 && len(memories) > p.Limit {
		memories = memories[:p.Limit]
	}
	return memories, nil
}

func (s *SQLiteStore) queryDocs(ctx context.Context, query string, args ...any) ([]model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		m, err := decodeDoc(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable memory", "component", "store", "error", err)
			continue
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *SQLiteStore) CountMemories(ctx context.Context, scope model.Scope, projectPath string) (int, error) {
	table, err := collectionTable(scope)
	if err != nil {
		return 0, err
	}
	query := `SELECT COUNT(*) FROM ` + table
	var args []any
	if scope == model.ScopeProject && projectPath != "" {
		query += ` WHERE json_extract(doc, '$.projectPath') = ?`
		args = append(args, projectPath)
	}
	var n int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *SQLiteStore) TouchMemory(ctx context.Context, scope model.Scope, id string, at time.Time) error {
	table, err := collectionTable(scope)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET doc = json_set(doc,
			'$.accessCount', COALESCE(json_extract(doc, '$.accessCount'), 0) + 1,
			'$.lastAccessedAt', ?)
		 WHERE key = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Embeddings(ctx context.Context, scope model.Scope, projectPath string) (map[string]embedding.Vector, []string, error) {
	table, err := collectionTable(scope)
	if err != nil {
		return nil, nil, err
	}
	query := `SELECT m.key, b.data FROM ` + table + ` m
		LEFT JOIN blobs b ON b.key = 'embeddings/' || m.key`
	var args []any
	if scope == model.ScopeProject && projectPath != "" {
		query += ` WHERE json_extract(m.doc, '$.projectPath') = ?`
		args = append(args, projectPath)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	out := make(map[string]embedding.Vector)
	var warnings []string
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			warnings = append(warnings, fmt.Sprintf("scan embedding row: %v", err))
			continue
		}
		if data == nil {
			warnings = append(warnings, fmt.Sprintf("memory %s has no embedding", id))
			continue
		}
		v, err := decodeVector(data)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("memory %s: %v", id, err))
			continue
		}
		out[id] = v
	}
	if err := rows.Err(); err != nil {
		return out, warnings, err
	}
	if len(warnings) > 0 {
		s.logger.Warn("skipped unreadable embeddings", "component", "store", "scope", scope, "count", len(warnings))
	}
	return out, warnings, nil
}

// Reset deletes every row, leaving the schema in place.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"global_memories", "project_memories", "blobs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeDoc(doc string) (model.Memory, error) {
	var r record
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return model.Memory{}, fmt.Errorf("decode memory: %w", err)
	}
	return r.toMemory(), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
