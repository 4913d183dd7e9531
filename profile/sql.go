package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	_ "modernc.org/sqlite" // register the pure Go sqlite driver
)

// Schema is the table layout SQLStore reads. Provisioning the tables is the
// owning application's job; the statement is exported for tooling and tests.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	persona TEXT,
	instructions TEXT,
	model TEXT,
	language TEXT,
	buffer_window INTEGER
);
CREATE TABLE IF NOT EXISTS agent_tools (
	agent_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	config TEXT,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (agent_id, tool_name)
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT
);`

// SettingDefaultModel is the settings key holding the system-wide default model.
const SettingDefaultModel = "default_model"

// SQLOptions configure a SQLStore.
type SQLOptions struct {
	Logger logging.Logger
}

// SQLStore implements core.ProfileStore on a relational database.
type SQLStore struct {
	db     *sql.DB
	owned  bool
	logger logging.Logger
}

var _ core.ProfileStore = (*SQLStore)(nil)

// OpenSQLStore opens the SQLite database at path read-only.
func OpenSQLStore(path string, optFns ...func(o *SQLOptions)) (*SQLStore, error) {
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open profile db: %w", core.ErrStorage, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: open profile db: %w", core.ErrStorage, err)
	}
	s := NewSQLStore(db, optFns...)
	s.owned = true
	return s, nil
}

// NewSQLStore wraps an existing handle. The caller keeps ownership of db.
func NewSQLStore(db *sql.DB, optFns ...func(o *SQLOptions)) *SQLStore {
	opts := SQLOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SQLStore{db: db, logger: opts.Logger}
}

// Close releases the handle when the store opened it.
func (s *SQLStore) Close() error {
	if s == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

// GetAgent implements core.ProfileStore.
func (s *SQLStore) GetAgent(ctx context.Context, agentID string) (core.AgentProfile, error) {
	var (
		p                                            core.AgentProfile
		desc, persona, instructions, model, language sql.NullString
		window                                       sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, persona, instructions, model, language, buffer_window
		   FROM agents WHERE id = ?`, agentID,
	).Scan(&p.ID, &p.Name, &desc, &persona, &instructions, &model, &language, &window)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AgentProfile{}, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID)
	}
	if err != nil {
		return core.AgentProfile{}, fmt.Errorf("%w: load agent %s: %w", core.ErrStorage, agentID, err)
	}
	p.Description = desc.String
	p.Persona = persona.String
	p.Instructions = instructions.String
	p.Model = model.String
	p.Language = language.String
	p.BufferWindow = int(window.Int64)

	tools, err := s.loadTools(ctx, agentID)
	if err != nil {
		return core.AgentProfile{}, err
	}
	p.Tools = tools
	return p, nil
}

func (s *SQLStore) loadTools(ctx context.Context, agentID string) ([]core.ToolBinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_name, active, config FROM agent_tools
		  WHERE agent_id = ? ORDER BY position, tool_name`, agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: load tools for %s: %w", core.ErrStorage, agentID, err)
	}
	defer rows.Close()

	var out []core.ToolBinding
	for rows.Next() {
		var (
			b      core.ToolBinding
			active int
			raw    sql.NullString
		)
		if err := rows.Scan(&b.Name, &active, &raw); err != nil {
			return nil, fmt.Errorf("%w: scan tool binding: %w", core.ErrStorage, err)
		}
		b.Active = active != 0
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &b.Config); err != nil {
				// invalid overrides fall back to the catalog defaults
				s.logger.Warn("profile.tool_config.invalid", "agent_id", agentID, "tool", b.Name, "error", err.Error())
				b.Config = nil
			}
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tool bindings: %w", core.ErrStorage, err)
	}
	return out, nil
}

// DefaultModel implements core.ProfileStore.
func (s *SQLStore) DefaultModel(ctx context.Context) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, SettingDefaultModel).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: load default model: %w", core.ErrStorage, err)
	}
	return v.String, nil
}
