// Package database defines the narrow read-only data-access surface the
// index-view query and SSH front-end need, with SQLite and PostgreSQL
// backends selected by configuration (internal/config). This mirrors the
// teacher's database.DB interface shape but is trimmed to the methods
// spec.md's components call, plus GetUserByID, which no caller in this
// repository uses — the teacher's full ~90-method
// interface backed pull requests, issues, webhooks, and code intelligence,
// none of which exist in this system.
package database

import (
	"context"

	"github.com/chartered-rs/chartered-git-index/internal/models"
)

// CrateWithVersions pairs a crate with its versions in publication order,
// the unit Tree::build (original_source/chartered-git/src/tree.rs) iterates.
type CrateWithVersions struct {
	Crate    models.Crate
	Versions []models.CrateVersion
}

// DB is the data access interface. Implemented by SQLiteDB and PostgresDB.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error

	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*models.SSHKey, error)
	GetOrgByName(ctx context.Context, name string) (*models.Org, error)
	IsOrgMember(ctx context.Context, orgID, userID int64) (bool, error)

	// VisibleCratesWithVersions returns every crate in org orgID where
	// userID holds at least models.PermVisible, each with its versions in
	// publication order. Grounded on
	// original_source/chartered-db/src/crates.rs's
	// Crate::all_visible_with_versions. Returns an empty slice (not an
	// error) for a user with no visible crates, per spec.md §4.D.
	VisibleCratesWithVersions(ctx context.Context, userID, orgID int64) ([]CrateWithVersions, error)
}
