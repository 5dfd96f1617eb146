// Package models holds the relational entities the index-view query and
// SSH front-end need: users, their registered SSH keys, organizations, and
// the crates/versions each user may see.
package models

import "time"

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// SSHKey is a public key registered to a user. Fingerprint is the OpenSSH
// SHA256 base64-no-padding form ("SHA256:AAAA...") and is the join key used
// by publickey authentication (spec.md §4.F, §6).
type SSHKey struct {
	ID          int64
	UserID      int64
	Name        string
	Fingerprint string
	PublicKey   string
	KeyType     string
	CreatedAt   time.Time
}

// Org scopes an index view: a fetch names one organization, and the index
// contains only crates in that organization the authenticated user may see.
type Org struct {
	ID          int64
	Name        string
	DisplayName string
}

type OrgMember struct {
	OrgID  int64
	UserID int64
	Role   string // "owner" or "member"
}

// Permission is the bitmask chartered-db/src/crates.rs's
// user_crate_permissions.permissions column stores. Only VISIBLE is read by
// the index-view query; the remaining bits exist so the schema matches what
// the (out-of-scope) HTTP registry would also need.
type Permission uint32

const (
	PermVisible        Permission = 1 << 0
	PermManageUsers    Permission = 1 << 1
	PermManageVersions Permission = 1 << 2
)

func (p Permission) Has(bit Permission) bool { return p&bit != 0 }

type Crate struct {
	ID    int64
	OrgID int64
	Name  string
}

// CrateVersion mirrors chartered-db/src/crates.rs's CrateVersion row.
// Dependencies and Features are stored as opaque JSON blobs matching the
// Cargo sparse-index schema verbatim (spec.md §3, §4.D) — the server never
// interprets their contents, only re-embeds them in the manifest line.
type CrateVersion struct {
	ID           int64
	CrateID      int64
	Version      string
	Checksum     string
	Dependencies []byte // json.RawMessage-shaped: array of CrateDependency
	Features     []byte // json.RawMessage-shaped: map[string][]string
	Links        *string
	Yanked       bool
	PublishedAt  time.Time
}
