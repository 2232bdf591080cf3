package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/forgehq/sidecar/pkg/models"
)

func marshalJSON(v any) ([]byte, error)      { return json.Marshal(v) }
func unmarshalJSON(data []byte, v any) error { return json.Unmarshal(data, v) }

// NewCockroachStoresFromDSN creates Cockroach/Postgres-backed stores using a DSN.
func NewCockroachStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	if err := ensureAdminSchema(ctx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ensure schema: %w", err)
	}

	stores := StoreSet{
		Agents:      &cockroachAgentStore{db: db},
		Prompts:     &cockroachPromptStore{db: db},
		Preferences: &cockroachPreferencesStore{db: db},
		Tools:       &cockroachToolStore{db: db},
		closer:      db.Close,
	}
	return stores, nil
}

func ensureAdminSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			system_prompt TEXT,
			default_model TEXT,
			default_hitl TEXT,
			allow_user_model_select BOOLEAN NOT NULL DEFAULT FALSE,
			allow_user_hitl_config BOOLEAN NOT NULL DEFAULT FALSE,
			tool_allowlist TEXT,
			max_turns INT,
			max_tokens INT,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			seeded_from_config BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prompt_versions (
			id BIGSERIAL PRIMARY KEY,
			version TEXT NOT NULL,
			content TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			activated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT PRIMARY KEY,
			model TEXT,
			hitl_level TEXT,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tool_specs (
			name TEXT PRIMARY KEY,
			description TEXT,
			input_schema JSONB,
			mcp_routing JSONB,
			requires_confirmation BOOLEAN NOT NULL DEFAULT FALSE,
			lifecycle TEXT NOT NULL DEFAULT 'candidate'
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type cockroachAgentStore struct {
	db *sql.DB
}

func (s *cockroachAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	now := time.Now()
	agent.CreatedAt, agent.UpdatedAt = now, now
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if agent.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE agents SET is_default = FALSE WHERE is_default`); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agents (id, display_name, system_prompt, default_model, default_hitl,
				allow_user_model_select, allow_user_hitl_config, tool_allowlist, max_turns, max_tokens,
				is_default, enabled, seeded_from_config, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			agent.ID, agent.DisplayName, agent.SystemPrompt, agent.DefaultModel, string(agent.DefaultHitl),
			agent.AllowUserModel, agent.AllowUserHitl, agent.ToolAllowlist, agent.MaxTurns, agent.MaxTokens,
			agent.IsDefault, agent.Enabled, agent.SeededFromConfig, agent.CreatedAt, agent.UpdatedAt,
		)
		if err != nil && strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return err
	})
}

func scanAgent(row interface{ Scan(...any) error }) (*models.Agent, error) {
	var agent models.Agent
	var defaultHitl string
	if err := row.Scan(
		&agent.ID, &agent.DisplayName, &agent.SystemPrompt, &agent.DefaultModel, &defaultHitl,
		&agent.AllowUserModel, &agent.AllowUserHitl, &agent.ToolAllowlist, &agent.MaxTurns, &agent.MaxTokens,
		&agent.IsDefault, &agent.Enabled, &agent.SeededFromConfig, &agent.CreatedAt, &agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agent.DefaultHitl = models.HitlLevel(defaultHitl)
	return &agent, nil
}

const agentColumns = `id, display_name, system_prompt, default_model, default_hitl,
	allow_user_model_select, allow_user_hitl_config, tool_allowlist, max_turns, max_tokens,
	is_default, enabled, seeded_from_config, created_at, updated_at`

func (s *cockroachAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

func (s *cockroachAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()
	var out []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

func (s *cockroachAgentStore) Update(ctx context.Context, agent *models.Agent) error {
	agent.UpdatedAt = time.Now()
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if agent.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE agents SET is_default = FALSE WHERE is_default AND id <> $1`, agent.ID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE agents SET display_name=$2, system_prompt=$3, default_model=$4, default_hitl=$5,
				allow_user_model_select=$6, allow_user_hitl_config=$7, tool_allowlist=$8, max_turns=$9,
				max_tokens=$10, is_default=$11, enabled=$12, updated_at=$13
			 WHERE id=$1`,
			agent.ID, agent.DisplayName, agent.SystemPrompt, agent.DefaultModel, string(agent.DefaultHitl),
			agent.AllowUserModel, agent.AllowUserHitl, agent.ToolAllowlist, agent.MaxTurns, agent.MaxTokens,
			agent.IsDefault, agent.Enabled, agent.UpdatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *cockroachAgentStore) Delete(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var wasDefault bool
		if err := tx.QueryRowContext(ctx, `SELECT is_default FROM agents WHERE id = $1`, id).Scan(&wasDefault); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id); err != nil {
			return err
		}
		if wasDefault {
			// Auto-promote the first remaining enabled agent, ordered by id
			// for a deterministic pick.
			if _, err := tx.ExecContext(ctx,
				`UPDATE agents SET is_default = TRUE WHERE id = (
					SELECT id FROM agents WHERE enabled ORDER BY id ASC LIMIT 1
				)`); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *cockroachAgentStore) SetDefault(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE agents SET is_default = FALSE WHERE is_default`)
		if err != nil {
			return err
		}
		_ = res
		res, err = tx.ExecContext(ctx, `UPDATE agents SET is_default = TRUE WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *cockroachAgentStore) Default(ctx context.Context) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE is_default AND enabled LIMIT 1`)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("default agent: %w", err)
	}
	return agent, nil
}

type cockroachPromptStore struct {
	db *sql.DB
}

func (s *cockroachPromptStore) Create(ctx context.Context, prompt *models.PromptVersion) error {
	prompt.CreatedAt = time.Now()
	return s.db.QueryRowContext(ctx,
		`INSERT INTO prompt_versions (version, content, is_active, notes, created_at)
		 VALUES ($1,$2,FALSE,$3,$4) RETURNING id`,
		prompt.Version, prompt.Content, prompt.Notes, prompt.CreatedAt,
	).Scan(&prompt.ID)
}

func (s *cockroachPromptStore) Get(ctx context.Context, id int64) (*models.PromptVersion, error) {
	var p models.PromptVersion
	var activatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, version, content, is_active, notes, created_at, activated_at FROM prompt_versions WHERE id = $1`, id,
	).Scan(&p.ID, &p.Version, &p.Content, &p.IsActive, &p.Notes, &p.CreatedAt, &activatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	if activatedAt.Valid {
		p.ActivatedAt = activatedAt.Time
	}
	return &p, nil
}

func (s *cockroachPromptStore) Update(ctx context.Context, prompt *models.PromptVersion) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompt_versions SET version = $2, content = $3, notes = $4 WHERE id = $1`,
		prompt.ID, prompt.Version, prompt.Content, prompt.Notes,
	)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachPromptStore) List(ctx context.Context) ([]*models.PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, content, is_active, notes, created_at, activated_at FROM prompt_versions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()
	var out []*models.PromptVersion
	for rows.Next() {
		var p models.PromptVersion
		var activatedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Version, &p.Content, &p.IsActive, &p.Notes, &p.CreatedAt, &activatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		if activatedAt.Valid {
			p.ActivatedAt = activatedAt.Time
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *cockroachPromptStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompt_versions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Activate is the two-statement deactivate-all/activate-target transaction.
func (s *cockroachPromptStore) Activate(ctx context.Context, id int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE prompt_versions SET is_active = FALSE WHERE is_active`); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE prompt_versions SET is_active = TRUE, activated_at = $2 WHERE id = $1`, id, time.Now())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *cockroachPromptStore) Active(ctx context.Context) (*models.PromptVersion, error) {
	var p models.PromptVersion
	var activatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, version, content, is_active, notes, created_at, activated_at FROM prompt_versions WHERE is_active LIMIT 1`,
	).Scan(&p.ID, &p.Version, &p.Content, &p.IsActive, &p.Notes, &p.CreatedAt, &activatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active prompt: %w", err)
	}
	if activatedAt.Valid {
		p.ActivatedAt = activatedAt.Time
	}
	return &p, nil
}

type cockroachPreferencesStore struct {
	db *sql.DB
}

func (s *cockroachPreferencesStore) Get(ctx context.Context, userID string) (*models.UserPreferences, error) {
	var p models.UserPreferences
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, model, hitl_level, updated_at FROM user_preferences WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Model, &p.HitlLevel, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

func (s *cockroachPreferencesStore) Upsert(ctx context.Context, prefs *models.UserPreferences) error {
	prefs.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, model, hitl_level, updated_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (user_id) DO UPDATE SET model = $2, hitl_level = $3, updated_at = $4`,
		prefs.UserID, prefs.Model, string(prefs.HitlLevel), prefs.UpdatedAt,
	)
	return err
}

type cockroachToolStore struct {
	db *sql.DB
}

func (s *cockroachToolStore) Upsert(ctx context.Context, tool *models.ToolSpec) error {
	schema, err := marshalJSON(tool.InputSchema)
	if err != nil {
		return err
	}
	routing, err := marshalJSON(tool.MCPRouting)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_specs (name, description, input_schema, mcp_routing, requires_confirmation, lifecycle)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (name) DO UPDATE SET description=$2, input_schema=$3, mcp_routing=$4,
			requires_confirmation=$5, lifecycle=$6`,
		tool.Name, tool.Description, schema, routing, tool.RequiresConfirmation, string(tool.Lifecycle),
	)
	return err
}

func scanTool(row interface{ Scan(...any) error }) (*models.ToolSpec, error) {
	var t models.ToolSpec
	var schema, routing []byte
	var lifecycle string
	if err := row.Scan(&t.Name, &t.Description, &schema, &routing, &t.RequiresConfirmation, &lifecycle); err != nil {
		return nil, err
	}
	t.Lifecycle = models.ToolLifecycle(lifecycle)
	if len(schema) > 0 {
		if err := unmarshalJSON(schema, &t.InputSchema); err != nil {
			return nil, err
		}
	}
	if len(routing) > 0 {
		if err := unmarshalJSON(routing, &t.MCPRouting); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

const toolColumns = `name, description, input_schema, mcp_routing, requires_confirmation, lifecycle`

func (s *cockroachToolStore) Get(ctx context.Context, name string) (*models.ToolSpec, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tool_specs WHERE name = $1`, name)
	t, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool: %w", err)
	}
	return t, nil
}

func (s *cockroachToolStore) List(ctx context.Context) ([]*models.ToolSpec, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tool_specs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()
	var out []*models.ToolSpec
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *cockroachToolStore) Promoted(ctx context.Context) ([]*models.ToolSpec, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tool_specs WHERE lifecycle = $1 ORDER BY name ASC`, string(models.ToolPromoted))
	if err != nil {
		return nil, fmt.Errorf("list promoted tools: %w", err)
	}
	defer rows.Close()
	var out []*models.ToolSpec
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *cockroachToolStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_specs WHERE name = $1`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
