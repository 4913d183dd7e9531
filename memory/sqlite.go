package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	_ "modernc.org/sqlite" // register the pure Go sqlite driver
)

const (
	tableAgent = "memories_agent"
	tableUser  = "memories_user"

	metaDimension = "embedding_dimension"

	// DefaultMemoryType is used when an add request names no type.
	DefaultMemoryType = "general"

	selfTestText = "agentcore embedding self-test"
)

// Options configure a SQLiteStore.
type Options struct {
	// Logger receives store diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// SQLiteStore implements core.MemoryStore on an embedded SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	embedder core.Embedder
	opts     Options
}

var _ core.MemoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates/opens the memory database at path. The special path
// ":memory:" opens a process-local database.
func NewSQLiteStore(path string, embedder core.Embedder, optFns ...func(o *Options)) (*SQLiteStore, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if embedder == nil {
		return nil, errors.New("memory store requires an embedder")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create memory db dir: %w", core.ErrStorage, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %w", core.ErrStorage, err)
	}
	// One shared connection avoids writer lock contention and keeps
	// ":memory:" databases visible to every query.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, embedder: embedder, opts: opts}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS similarity_index (
			memory_id TEXT PRIMARY KEY,
			origin_table TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			embedding BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS similarity_index_origin_idx ON similarity_index(origin_table);`,
	}
	for _, table := range []string{tableAgent, tableUser} {
		stmts = append(stmts,
			`CREATE TABLE IF NOT EXISTS `+table+` (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				session_id TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				memory_type TEXT NOT NULL DEFAULT 'general',
				importance REAL NOT NULL DEFAULT 0,
				metadata_json TEXT NOT NULL DEFAULT '{}',
				embedding BLOB NOT NULL,
				created_at_ms INTEGER NOT NULL,
				updated_at_ms INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS `+table+`_owner_idx ON `+table+`(owner_id, memory_type);`,
		)
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: init schema: %w", core.ErrStorage, err)
		}
	}
	return nil
}

func tableFor(kind core.OwnerKind) (string, error) {
	switch kind {
	case core.OwnerAgent:
		return tableAgent, nil
	case core.OwnerUser:
		return tableUser, nil
	default:
		return "", fmt.Errorf("%w: unknown owner kind %q", core.ErrInvalidRequest, kind)
	}
}

func kindFor(table string) core.OwnerKind {
	if table == tableUser {
		return core.OwnerUser
	}
	return core.OwnerAgent
}

// GenerateEmbedding embeds text through the configured backend and validates
// the result.
func (s *SQLiteStore) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, core.ErrEmbeddingBackend) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingBackend, err)
	}
	if !validVector(vec) {
		return nil, fmt.Errorf("%w: %w: embedding is empty or not finite", core.ErrEmbeddingBackend, core.ErrMalformedResponse)
	}
	return vec, nil
}

// Add embeds req.Content and stores the record with its index entry.
func (s *SQLiteStore) Add(ctx context.Context, req core.AddMemoryRequest) (string, error) {
	table, err := tableFor(req.OwnerKind)
	if err != nil {
		return "", err
	}
	if req.OwnerID == "" {
		return "", fmt.Errorf("%w: owner id is required", core.ErrInvalidRequest)
	}
	if req.Content == "" {
		return "", fmt.Errorf("%w: content is required", core.ErrInvalidRequest)
	}
	meta, err := encodeMetadata(req.Metadata)
	if err != nil {
		return "", err
	}
	vec, err := s.GenerateEmbedding(ctx, req.Content)
	if err != nil {
		return "", err
	}
	memType := req.MemoryType
	if memType == "" {
		memType = DefaultMemoryType
	}

	id := uuid.NewString()
	now := s.opts.Now().UnixMilli()
	blob := encodeVector(vec)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkDimensionTx(ctx, tx, len(vec)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (id, owner_id, session_id, content, memory_type, importance, metadata_json, embedding, created_at_ms, updated_at_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, req.OwnerID, req.SessionID, req.Content, memType, req.Importance, meta, blob, now, now,
		); err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO similarity_index (memory_id, origin_table, dimension, embedding) VALUES (?, ?, ?, ?)`,
			id, table, len(vec), blob,
		); err != nil {
			return fmt.Errorf("insert index entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.opts.Logger.Debug("memory.add", "id", id, "table", table, "dimension", len(vec))
	return id, nil
}

// Get returns the record with the given id from either table.
func (s *SQLiteStore) Get(ctx context.Context, id string) (core.MemoryRecord, error) {
	table, err := s.originTable(ctx, id)
	if err != nil {
		return core.MemoryRecord{}, err
	}
	recs, err := s.loadRecords(ctx, table, []string{id})
	if err != nil {
		return core.MemoryRecord{}, err
	}
	rec, ok := recs[id]
	if !ok {
		return core.MemoryRecord{}, fmt.Errorf("%w: %s", core.ErrMemoryNotFound, id)
	}
	return rec, nil
}

// Search embeds query once and ranks the scope's table by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, query string, scope core.SearchScope, limit int, threshold float64) ([]core.SearchResult, error) {
	vec, err := s.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchByVector(ctx, vec, scope, limit, threshold)
}

type scored struct {
	id    string
	score float64
}

// SearchByVector scans every index entry of the scope's table, keeps scores
// at or above threshold, sorts them descending, truncates to limit and then
// applies the scope's owner, type and session post-filters.
func (s *SQLiteStore) SearchByVector(ctx context.Context, vec []float32, scope core.SearchScope, limit int, threshold float64) ([]core.SearchResult, error) {
	table, err := tableFor(scope.OwnerKind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `SELECT memory_id, embedding FROM similarity_index WHERE origin_table = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("%w: scan index: %w", core.ErrStorage, err)
	}
	var candidates []scored
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: scan index row: %w", core.ErrStorage, err)
		}
		emb, err := decodeVector(blob)
		if err != nil {
			s.opts.Logger.Warn("memory.index.corrupt", "id", id, "error", err.Error())
			continue
		}
		score := CosineSimilarity(vec, emb)
		if score >= threshold {
			candidates = append(candidates, scored{id: id, score: score})
		}
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("%w: close index rows: %w", core.ErrStorage, err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate index: %w", core.ErrStorage, err)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	recs, err := s.loadRecords(ctx, table, ids)
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := recs[c.id]
		if !ok || !scope.Matches(rec) {
			continue
		}
		results = append(results, core.SearchResult{Record: rec, Score: c.score})
	}
	return results, nil
}

// List returns the newest records of the scope's table passing its filters.
func (s *SQLiteStore) List(ctx context.Context, scope core.SearchScope, limit int) ([]core.MemoryRecord, error) {
	table, err := tableFor(scope.OwnerKind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, owner_id, session_id, content, memory_type, importance, metadata_json, embedding, created_at_ms, updated_at_ms
		FROM ` + table + ` WHERE (? = '' OR owner_id = ?) AND (? = '' OR memory_type = ?) AND (? = '' OR session_id = ?)
		ORDER BY created_at_ms DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q,
		scope.OwnerID, scope.OwnerID, scope.MemoryType, scope.MemoryType, scope.SessionID, scope.SessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list memories: %w", core.ErrStorage, err)
	}
	defer rows.Close()
	var out []core.MemoryRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows, table)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate memories: %w", core.ErrStorage, err)
	}
	return out, nil
}

// Update regenerates the embedding for content and rewrites the record and
// its index entry together.
func (s *SQLiteStore) Update(ctx context.Context, id, content string) error {
	if content == "" {
		return fmt.Errorf("%w: content is required", core.ErrInvalidRequest)
	}
	table, err := s.originTable(ctx, id)
	if err != nil {
		return err
	}
	vec, err := s.GenerateEmbedding(ctx, content)
	if err != nil {
		return err
	}
	blob := encodeVector(vec)
	now := s.opts.Now().UnixMilli()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkDimensionTx(ctx, tx, len(vec)); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET content = ?, embedding = ?, updated_at_ms = ? WHERE id = ?`,
			content, blob, now, id)
		if err != nil {
			return fmt.Errorf("update memory: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", core.ErrMemoryNotFound, id)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE similarity_index SET embedding = ?, dimension = ? WHERE memory_id = ?`,
			blob, len(vec), id); err != nil {
			return fmt.Errorf("update index entry: %w", err)
		}
		return nil
	})
}

// Delete removes the record and its index entry together.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	table, err := s.originTable(ctx, id)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM similarity_index WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("delete index entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete memory: %w", err)
		}
		return nil
	})
}

// Stats reports table counts, the database footprint and an embedding
// round-trip self-test. A failing self-test does not fail Stats.
func (s *SQLiteStore) Stats(ctx context.Context) (core.MemoryStats, error) {
	var st core.MemoryStats
	counts := []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM ` + tableAgent, &st.AgentMemories},
		{`SELECT COUNT(*) FROM ` + tableUser, &st.UserMemories},
		{`SELECT COUNT(*) FROM similarity_index`, &st.IndexEntries},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return st, fmt.Errorf("%w: count: %w", core.ErrStorage, err)
		}
	}
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return st, fmt.Errorf("%w: page_count: %w", core.ErrStorage, err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return st, fmt.Errorf("%w: page_size: %w", core.ErrStorage, err)
	}
	st.StorageBytes = pageCount * pageSize

	start := time.Now()
	vec, err := s.GenerateEmbedding(ctx, selfTestText)
	st.Embedding.Latency = time.Since(start)
	if err != nil {
		st.Embedding.Error = err.Error()
		return st, nil
	}
	st.Embedding.Dimension = len(vec)
	st.Embedding.OK = true
	if dim, ok, err := s.storedDimension(ctx, s.db); err == nil && ok && dim != len(vec) {
		st.Embedding.OK = false
		st.Embedding.Error = fmt.Sprintf("%v: stored %d, backend %d", core.ErrDimensionMismatch, dim, len(vec))
	}
	return st, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", core.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		if errors.Is(err, core.ErrMemoryNotFound) || errors.Is(err, core.ErrDimensionMismatch) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrStorage, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) storedDimension(ctx context.Context, q queryer) (int, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaDimension).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	dim, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse stored dimension: %w", err)
	}
	return dim, true, nil
}

// checkDimensionTx pins the embedding dimension on first write and rejects
// vectors of any other length afterwards.
func (s *SQLiteStore) checkDimensionTx(ctx context.Context, tx *sql.Tx, dim int) error {
	stored, ok, err := s.storedDimension(ctx, tx)
	if err != nil {
		return err
	}
	if !ok {
		_, err := tx.ExecContext(ctx, `INSERT INTO store_meta (key, value) VALUES (?, ?)`, metaDimension, strconv.Itoa(dim))
		return err
	}
	if stored != dim {
		return fmt.Errorf("%w: stored %d, got %d", core.ErrDimensionMismatch, stored, dim)
	}
	return nil
}

func (s *SQLiteStore) originTable(ctx context.Context, id string) (string, error) {
	var table string
	err := s.db.QueryRowContext(ctx, `SELECT origin_table FROM similarity_index WHERE memory_id = ?`, id).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", core.ErrMemoryNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("%w: lookup memory: %w", core.ErrStorage, err)
	}
	return table, nil
}

func (s *SQLiteStore) loadRecords(ctx context.Context, table string, ids []string) (map[string]core.MemoryRecord, error) {
	out := make(map[string]core.MemoryRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	stmt, err := s.db.PrepareContext(ctx, `SELECT id, owner_id, session_id, content, memory_type, importance, metadata_json, embedding, created_at_ms, updated_at_ms
		FROM `+table+` WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare load: %w", core.ErrStorage, err)
	}
	defer stmt.Close()
	for _, id := range ids {
		rec, err := s.scanRecord(stmt.QueryRowContext(ctx, id), table)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[rec.ID] = rec
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRecord(row scanner, table string) (core.MemoryRecord, error) {
	var (
		rec                core.MemoryRecord
		meta               string
		blob               []byte
		createdMs, updated int64
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.SessionID, &rec.Content, &rec.MemoryType, &rec.Importance, &meta, &blob, &createdMs, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("%w: scan memory: %w", core.ErrStorage, err)
	}
	emb, err := decodeVector(blob)
	if err != nil {
		return rec, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	rec.OwnerKind = kindFor(table)
	rec.Embedding = emb
	rec.Metadata, err = decodeMetadata(meta)
	if err != nil {
		// the record stays readable; only its metadata is dropped
		s.opts.Logger.Warn("memory.metadata.corrupt", "id", rec.ID, "table", table, "error", err.Error())
	}
	rec.CreatedAt = time.UnixMilli(createdMs)
	rec.UpdatedAt = time.UnixMilli(updated)
	return rec, nil
}
