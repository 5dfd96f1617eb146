package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/chartered-rs/chartered-git-index/internal/models"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() error { return s.db.Close() }

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ssh_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	fingerprint TEXT NOT NULL UNIQUE,
	public_key TEXT NOT NULL,
	key_type TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orgs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS org_members (
	org_id INTEGER NOT NULL REFERENCES orgs(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL DEFAULT 'member',
	PRIMARY KEY (org_id, user_id)
);

CREATE TABLE IF NOT EXISTS crates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	org_id INTEGER NOT NULL REFERENCES orgs(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE (org_id, name)
);

CREATE TABLE IF NOT EXISTS crate_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	crate_id INTEGER NOT NULL REFERENCES crates(id) ON DELETE CASCADE,
	version TEXT NOT NULL,
	checksum TEXT NOT NULL,
	dependencies TEXT NOT NULL DEFAULT '[]',
	features TEXT NOT NULL DEFAULT '{}',
	links TEXT,
	yanked BOOLEAN NOT NULL DEFAULT FALSE,
	published_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (crate_id, version)
);

CREATE TABLE IF NOT EXISTS user_crate_permissions (
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	crate_id INTEGER NOT NULL REFERENCES crates(id) ON DELETE CASCADE,
	permissions INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, crate_id)
);
`

func (s *SQLiteDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_admin, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteDB) GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*models.SSHKey, error) {
	var k models.SSHKey
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, fingerprint, public_key, key_type, created_at FROM ssh_keys WHERE fingerprint = ?`, fingerprint,
	).Scan(&k.ID, &k.UserID, &k.Name, &k.Fingerprint, &k.PublicKey, &k.KeyType, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *SQLiteDB) GetOrgByName(ctx context.Context, name string) (*models.Org, error) {
	var o models.Org
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name FROM orgs WHERE name = ?`, name,
	).Scan(&o.ID, &o.Name, &o.DisplayName)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQLiteDB) IsOrgMember(ctx context.Context, orgID, userID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM org_members WHERE org_id = ? AND user_id = ?`, orgID, userID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteDB) VisibleCratesWithVersions(ctx context.Context, userID, orgID int64) ([]CrateWithVersions, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.org_id, c.name,
		       v.id, v.crate_id, v.version, v.checksum, v.dependencies, v.features, v.links, v.yanked, v.published_at
		FROM crates c
		INNER JOIN user_crate_permissions p ON p.crate_id = c.id
		INNER JOIN crate_versions v ON v.crate_id = c.id
		WHERE c.org_id = ? AND p.user_id = ? AND (p.permissions & ?) != 0
		ORDER BY c.name, v.published_at ASC, v.id ASC
	`, orgID, userID, int64(models.PermVisible))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVisibleCrates(rows)
}

func scanVisibleCrates(rows *sql.Rows) ([]CrateWithVersions, error) {
	order := make([]int64, 0)
	byCrate := make(map[int64]*CrateWithVersions)

	for rows.Next() {
		var c models.Crate
		var v models.CrateVersion
		var deps, feats json.RawMessage
		var links sql.NullString
		if err := rows.Scan(
			&c.ID, &c.OrgID, &c.Name,
			&v.ID, &v.CrateID, &v.Version, &v.Checksum, &deps, &feats, &links, &v.Yanked, &v.PublishedAt,
		); err != nil {
			return nil, err
		}
		v.Dependencies = []byte(deps)
		v.Features = []byte(feats)
		if links.Valid {
			s := links.String
			v.Links = &s
		}

		entry, ok := byCrate[c.ID]
		if !ok {
			entry = &CrateWithVersions{Crate: c}
			byCrate[c.ID] = entry
			order = append(order, c.ID)
		}
		entry.Versions = append(entry.Versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]CrateWithVersions, 0, len(order))
	for _, id := range order {
		out = append(out, *byCrate[id])
	}
	return out, nil
}
