package cargoindex

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chartered-rs/chartered-git-index/internal/database"
)

// ErrUnknownOrganization is returned when View is asked for an organization
// name the database has no record of, or one the user is not a member of
// (spec.md §7 UnknownOrganization).
var ErrUnknownOrganization = errors.New("cargoindex: unknown organization")

// Entry is one crate's rendered manifest, ready to be inserted into the
// virtual repository at Folder(CrateName) + CrateName.
type Entry struct {
	CrateName string
	Manifest  []byte
}

// View queries every crate in the named organization that userID holds at
// least VISIBLE on, and renders each one's manifest (spec.md §4.D). It
// returns an empty, non-nil slice — not an error — for a user with no
// visible crates; this only errors for an organization name the database
// doesn't recognize, an organization the user is not a member of, or a
// query or rendering failure.
func View(ctx context.Context, db database.DB, userID int64, orgName string) ([]Entry, error) {
	org, err := db.GetOrgByName(ctx, orgName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownOrganization
	}
	if err != nil {
		return nil, err
	}

	// A fetch names an organization but the client has no other way to
	// prove membership, so non-members are bounced with the same
	// "unknown organization" error a nonexistent org would produce —
	// this never reveals to a non-member whether the org exists.
	member, err := db.IsOrgMember(ctx, org.ID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrUnknownOrganization
	}

	crates, err := db.VisibleCratesWithVersions(ctx, userID, org.ID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(crates))
	for _, c := range crates {
		versions := make([]versionFields, 0, len(c.Versions))
		for _, v := range c.Versions {
			versions = append(versions, versionFields{
				Version:      v.Version,
				Checksum:     v.Checksum,
				Dependencies: v.Dependencies,
				Features:     v.Features,
				Links:        v.Links,
				Yanked:       v.Yanked,
			})
		}
		manifest, err := renderManifest(c.Crate.Name, versions)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{CrateName: c.Crate.Name, Manifest: manifest})
	}
	return entries, nil
}
