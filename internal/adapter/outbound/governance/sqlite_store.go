package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
)

const schema = `
CREATE TABLE IF NOT EXISTS organisations (
	id TEXT PRIMARY KEY, slug TEXT NOT NULL, name TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '{}', active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL, deleted_at TEXT
);
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY, organisation_id TEXT NOT NULL, slug TEXT NOT NULL,
	environment_type TEXT NOT NULL, upstream_url TEXT NOT NULL DEFAULT '',
	settings TEXT NOT NULL DEFAULT '{}', active INTEGER NOT NULL DEFAULT 1, deleted_at TEXT
);
CREATE TABLE IF NOT EXISTS agent_credentials (
	id TEXT PRIMARY KEY, workspace_id TEXT NOT NULL, name TEXT NOT NULL,
	token_hash TEXT NOT NULL UNIQUE, token_prefix TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1, revoked INTEGER NOT NULL DEFAULT 0,
	expires_at TEXT, last_used_at TEXT, usage_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS policies (
	id TEXT PRIMARY KEY, organisation_id TEXT NOT NULL, workspace_id TEXT NOT NULL DEFAULT '',
	agent_id TEXT NOT NULL DEFAULT '', guardrail_id TEXT NOT NULL, guardrail_type TEXT NOT NULL,
	name TEXT NOT NULL, description TEXT NOT NULL DEFAULT '', config TEXT NOT NULL DEFAULT '{}',
	action TEXT NOT NULL, enabled INTEGER NOT NULL DEFAULT 1, deleted_at TEXT
);
`

// SQLiteStore backs both CredentialStore and PolicyStore with an embedded
// modernc.org/sqlite database. A ":memory:" dbPath gives a self-contained,
// dependency-free store suitable for single-process deployments; a file
// path persists across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the schema at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open governance db: %w", err)
	}
	// :memory: sqlite databases are per-connection; force a single
	// connection so concurrent callers share the same in-memory schema.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create governance schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// FindByTokenHash joins agent_credentials to workspaces on the presented
// digest.
func (s *SQLiteStore) FindByTokenHash(ctx context.Context, tokenHash string) (*governance.AgentCredential, *governance.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.workspace_id, c.name, c.token_hash, c.token_prefix, c.active, c.revoked,
		       c.expires_at, c.last_used_at, c.usage_count,
		       w.id, w.organisation_id, w.slug, w.environment_type, w.upstream_url, w.settings, w.active, w.deleted_at
		FROM agent_credentials c
		JOIN workspaces w ON w.id = c.workspace_id
		WHERE c.token_hash = ?`, tokenHash)

	cred, ws, err := scanCredentialWithWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, nil, governance.ErrCredentialNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return cred, ws, nil
}

// Credentials returns every credential (no workspace join -- used for
// Argon2id linear scan, which re-fetches the workspace once it finds a match).
func (s *SQLiteStore) Credentials(ctx context.Context) ([]governance.AgentCredential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, token_hash, token_prefix, active, revoked, expires_at, last_used_at, usage_count
		FROM agent_credentials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []governance.AgentCredential
	for rows.Next() {
		var c governance.AgentCredential
		var expiresAt, lastUsedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.TokenHash, &c.TokenPrefix, &c.Active, &c.Revoked, &expiresAt, &lastUsedAt, &c.UsageCount); err != nil {
			return nil, err
		}
		c.ExpiresAt = parseNullTime(expiresAt)
		c.LastUsedAt = parseNullTime(lastUsedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// BumpUsage increments usage_count and stamps last_used_at.
func (s *SQLiteStore) BumpUsage(ctx context.Context, credentialID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_credentials SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), credentialID)
	return err
}

// ListForScope returns every enabled, non-tombstoned policy overlapping
// the three scope_match disjuncts.
func (s *SQLiteStore) ListForScope(ctx context.Context, organisationID, workspaceID, agentID string) ([]governance.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organisation_id, workspace_id, agent_id, guardrail_id, guardrail_type, name, description, config, action, enabled, deleted_at
		FROM policies
		WHERE enabled = 1 AND deleted_at IS NULL AND organisation_id = ?
		  AND (
		    (workspace_id = '' AND agent_id = '') OR
		    (workspace_id = ? AND agent_id = '') OR
		    (workspace_id = ? AND agent_id = ?)
		  )`, organisationID, workspaceID, workspaceID, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []governance.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns a policy by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*governance.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organisation_id, workspace_id, agent_id, guardrail_id, guardrail_type, name, description, config, action, enabled, deleted_at
		FROM policies WHERE id = ?`, id)

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, governance.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Save creates or updates a policy, enforcing at-most-one-non-tombstoned
// policy per (organisation, workspace, agent, guardrail_type) via a
// pre-check query (sqlite's partial-unique-index support varies by
// build, so this is done as an explicit check rather than a constraint).
func (s *SQLiteStore) Save(ctx context.Context, p *governance.Policy) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var existingID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM policies
		WHERE organisation_id = ? AND workspace_id = ? AND agent_id = ? AND guardrail_type = ?
		  AND deleted_at IS NULL AND id != ?`,
		p.OrganisationID, p.WorkspaceID, p.AgentID, p.GuardrailType, p.ID).Scan(&existingID)
	if err == nil {
		return governance.ErrDuplicatePolicy
	}
	if err != sql.ErrNoRows {
		return err
	}

	config, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("marshal policy config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (id, organisation_id, workspace_id, agent_id, guardrail_id, guardrail_type, name, description, config, action, enabled, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id, agent_id = excluded.agent_id,
			guardrail_id = excluded.guardrail_id, guardrail_type = excluded.guardrail_type,
			name = excluded.name, description = excluded.description, config = excluded.config,
			action = excluded.action, enabled = excluded.enabled`,
		p.ID, p.OrganisationID, p.WorkspaceID, p.AgentID, p.GuardrailID, p.GuardrailType,
		p.Name, p.Description, string(config), string(p.Action), p.Enabled)
	return err
}

// Delete tombstones a policy by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE policies SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return governance.ErrPolicyNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row rowScanner) (governance.Policy, error) {
	var p governance.Policy
	var config string
	var action string
	var enabled int
	var deletedAt sql.NullString

	if err := row.Scan(&p.ID, &p.OrganisationID, &p.WorkspaceID, &p.AgentID, &p.GuardrailID, &p.GuardrailType,
		&p.Name, &p.Description, &config, &action, &enabled, &deletedAt); err != nil {
		return governance.Policy{}, err
	}

	if err := json.Unmarshal([]byte(config), &p.Config); err != nil {
		return governance.Policy{}, fmt.Errorf("unmarshal policy config: %w", err)
	}
	p.Action = governance.PolicyAction(action)
	p.Enabled = enabled != 0
	p.DeletedAt = parseNullTime(deletedAt)
	return p, nil
}

func scanCredentialWithWorkspace(row rowScanner) (*governance.AgentCredential, *governance.Workspace, error) {
	var c governance.AgentCredential
	var w governance.Workspace
	var expiresAt, lastUsedAt, wsDeletedAt sql.NullString
	var settings string
	var wsActive int

	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.TokenHash, &c.TokenPrefix, &c.Active, &c.Revoked,
		&expiresAt, &lastUsedAt, &c.UsageCount,
		&w.ID, &w.OrganisationID, &w.Slug, &w.EnvironmentType, &w.UpstreamURL, &settings, &wsActive, &wsDeletedAt); err != nil {
		return nil, nil, err
	}

	c.ExpiresAt = parseNullTime(expiresAt)
	c.LastUsedAt = parseNullTime(lastUsedAt)
	_ = json.Unmarshal([]byte(settings), &w.Settings)
	w.Active = wsActive != 0
	w.DeletedAt = parseNullTime(wsDeletedAt)

	return &c, &w, nil
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

var (
	_ governance.CredentialStore = (*SQLiteStore)(nil)
	_ governance.PolicyStore     = (*SQLiteStore)(nil)
)
