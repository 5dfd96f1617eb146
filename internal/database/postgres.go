package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chartered-rs/chartered-git-index/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresDB struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*PostgresDB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error { return p.db.Close() }

func (p *PostgresDB) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, pgSchema)
	return err
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ssh_keys (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	fingerprint TEXT NOT NULL UNIQUE,
	public_key TEXT NOT NULL,
	key_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orgs (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS org_members (
	org_id BIGINT NOT NULL REFERENCES orgs(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL DEFAULT 'member',
	PRIMARY KEY (org_id, user_id)
);

CREATE TABLE IF NOT EXISTS crates (
	id BIGSERIAL PRIMARY KEY,
	org_id BIGINT NOT NULL REFERENCES orgs(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE (org_id, name)
);

CREATE TABLE IF NOT EXISTS crate_versions (
	id BIGSERIAL PRIMARY KEY,
	crate_id BIGINT NOT NULL REFERENCES crates(id) ON DELETE CASCADE,
	version TEXT NOT NULL,
	checksum TEXT NOT NULL,
	dependencies JSONB NOT NULL DEFAULT '[]',
	features JSONB NOT NULL DEFAULT '{}',
	links TEXT,
	yanked BOOLEAN NOT NULL DEFAULT FALSE,
	published_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (crate_id, version)
);

CREATE TABLE IF NOT EXISTS user_crate_permissions (
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	crate_id BIGINT NOT NULL REFERENCES crates(id) ON DELETE CASCADE,
	permissions INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, crate_id)
);
`

func (p *PostgresDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_admin, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*models.SSHKey, error) {
	var k models.SSHKey
	err := p.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, fingerprint, public_key, key_type, created_at FROM ssh_keys WHERE fingerprint = $1`, fingerprint,
	).Scan(&k.ID, &k.UserID, &k.Name, &k.Fingerprint, &k.PublicKey, &k.KeyType, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (p *PostgresDB) GetOrgByName(ctx context.Context, name string) (*models.Org, error) {
	var o models.Org
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, display_name FROM orgs WHERE name = $1`, name,
	).Scan(&o.ID, &o.Name, &o.DisplayName)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (p *PostgresDB) IsOrgMember(ctx context.Context, orgID, userID int64) (bool, error) {
	var exists int
	err := p.db.QueryRowContext(ctx,
		`SELECT 1 FROM org_members WHERE org_id = $1 AND user_id = $2`, orgID, userID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *PostgresDB) VisibleCratesWithVersions(ctx context.Context, userID, orgID int64) ([]CrateWithVersions, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.org_id, c.name,
		       v.id, v.crate_id, v.version, v.checksum, v.dependencies, v.features, v.links, v.yanked, v.published_at
		FROM crates c
		INNER JOIN user_crate_permissions p ON p.crate_id = c.id
		INNER JOIN crate_versions v ON v.crate_id = c.id
		WHERE c.org_id = $1 AND p.user_id = $2 AND (p.permissions & $3) != 0
		ORDER BY c.name, v.published_at ASC, v.id ASC
	`, orgID, userID, int64(models.PermVisible))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVisibleCrates(rows)
}
