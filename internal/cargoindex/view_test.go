package cargoindex

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/chartered-rs/chartered-git-index/internal/database"
	"github.com/chartered-rs/chartered-git-index/internal/models"
)

// fakeDB is a minimal in-memory stand-in for database.DB, used so these
// tests exercise View's logic without a real SQLite/Postgres connection.
type fakeDB struct {
	orgs      map[string]*models.Org
	visible   map[int64][]database.CrateWithVersions // keyed by orgID
	nonMember map[int64]bool                         // orgIDs where IsOrgMember returns false
}

func (f *fakeDB) Close() error                              { return nil }
func (f *fakeDB) Migrate(ctx context.Context) error          { return nil }
func (f *fakeDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeDB) GetSSHKeyByFingerprint(ctx context.Context, fp string) (*models.SSHKey, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeDB) GetOrgByName(ctx context.Context, name string) (*models.Org, error) {
	o, ok := f.orgs[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o, nil
}
func (f *fakeDB) IsOrgMember(ctx context.Context, orgID, userID int64) (bool, error) {
	return !f.nonMember[orgID], nil
}
func (f *fakeDB) VisibleCratesWithVersions(ctx context.Context, userID, orgID int64) ([]database.CrateWithVersions, error) {
	return f.visible[orgID], nil
}

func TestViewUnknownOrganization(t *testing.T) {
	f := &fakeDB{orgs: map[string]*models.Org{}}
	_, err := View(context.Background(), f, 1, "nope")
	if !errors.Is(err, ErrUnknownOrganization) {
		t.Fatalf("got %v, want ErrUnknownOrganization", err)
	}
}

func TestViewNonMemberTreatedAsUnknownOrganization(t *testing.T) {
	// A user who can authenticate but isn't a member of the named
	// organization gets the same error a nonexistent org would produce —
	// membership is never leaked to a non-member.
	f := &fakeDB{
		orgs:      map[string]*models.Org{"acme": {ID: 1, Name: "acme"}},
		nonMember: map[int64]bool{1: true},
	}
	_, err := View(context.Background(), f, 1, "acme")
	if !errors.Is(err, ErrUnknownOrganization) {
		t.Fatalf("got %v, want ErrUnknownOrganization", err)
	}
}

func TestViewVisibilityFiltering(t *testing.T) {
	// Property 6: a user with VISIBLE on crates A and C but not B sees
	// exactly {A, C} — modeled here by VisibleCratesWithVersions already
	// having applied the filter (its contract per database.DB), and View
	// simply trusting and rendering what comes back.
	f := &fakeDB{
		orgs: map[string]*models.Org{"acme": {ID: 1, Name: "acme"}},
		visible: map[int64][]database.CrateWithVersions{
			1: {
				{Crate: models.Crate{ID: 10, OrgID: 1, Name: "A"}, Versions: []models.CrateVersion{
					{Version: "1.0.0", Checksum: "deadbeef", Dependencies: nil, Features: nil},
				}},
				{Crate: models.Crate{ID: 12, OrgID: 1, Name: "C"}, Versions: []models.CrateVersion{
					{Version: "2.0.0", Checksum: "cafebabe", Dependencies: nil, Features: nil},
				}},
			},
		},
	}

	entries, err := View(context.Background(), f, 99, "acme")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.CrateName] = true
	}
	if !names["A"] || !names["C"] || names["B"] {
		t.Fatalf("got crates %v, want exactly {A, C}", names)
	}
}

func TestViewNoVisibleCratesIsEmptyNotError(t *testing.T) {
	// S1: a user with no visible crates gets an empty index, not an error.
	f := &fakeDB{
		orgs:    map[string]*models.Org{"acme": {ID: 1, Name: "acme"}},
		visible: map[int64][]database.CrateWithVersions{1: {}},
	}
	entries, err := View(context.Background(), f, 1, "acme")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func TestViewManifestFieldsAndYanked(t *testing.T) {
	// S2/S5: manifest JSON carries name/vers/cksum/yanked correctly, and a
	// yanked version is still listed (with yanked: true), not omitted.
	links := "libfoo"
	f := &fakeDB{
		orgs: map[string]*models.Org{"acme": {ID: 1, Name: "acme"}},
		visible: map[int64][]database.CrateWithVersions{
			1: {
				{Crate: models.Crate{ID: 10, OrgID: 1, Name: "foo"}, Versions: []models.CrateVersion{
					{Version: "1.0.0", Checksum: "aaaa", Dependencies: []byte(`[{"name":"bar","req":"^1"}]`), Features: []byte(`{"default":["bar"]}`), Links: &links, Yanked: false},
					{Version: "1.1.0", Checksum: "bbbb", Yanked: true},
				}},
			},
		},
	}

	entries, err := View(context.Background(), f, 1, "acme")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	manifest := string(entries[0].Manifest)

	want := []string{
		`"name":"foo"`,
		`"vers":"1.0.0"`,
		`"cksum":"aaaa"`,
		`"links":"libfoo"`,
		`"deps":[{"name":"bar","req":"^1"}]`,
		`"vers":"1.1.0"`,
		`"cksum":"bbbb"`,
		`"yanked":true`,
	}
	for _, w := range want {
		if !strings.Contains(manifest, w) {
			t.Fatalf("manifest missing %q, got:\n%s", w, manifest)
		}
	}

	// S5: exactly two lines, one per version, each valid on its own.
	lines := strings.Split(strings.TrimRight(manifest, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d manifest lines, want 2", len(lines))
	}
}
