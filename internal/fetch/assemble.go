// Package fetch wires the index-view query, the virtual repository
// builder, and the packfile writer behind a single entry point that
// internal/sshfront calls per git-upload-pack request (spec.md §4.G).
// Grounded on the teacher's internal/api/router.go composition-closure
// pattern — constructing a unit of work by capturing already-built
// collaborators — expressed here as a plain function rather than an HTTP
// handler closure, since there is no router to register it with.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chartered-rs/chartered-git-index/internal/cargoindex"
	"github.com/chartered-rs/chartered-git-index/internal/database"
	"github.com/chartered-rs/chartered-git-index/internal/gitobject"
	"github.com/chartered-rs/chartered-git-index/internal/packfile"
	"github.com/chartered-rs/chartered-git-index/internal/vrepo"
)

// author is the fixed synthetic identity every commit is attributed to
// (spec.md §4.G step 5).
const (
	authorName  = "chartered"
	authorEmail = "chartered@chartered.dev"
	commitMsg   = "initial commit"
)

// RegistryConfig carries the values spec.md §4.G step 4 embeds into the
// virtual repository's top-level config.json.
type RegistryConfig struct {
	DownloadURLTemplate string
	APIBaseURL          string
	// MaxIndexBytes, if non-zero, caps the total manifest bytes gathered
	// from the index view before a fetch is rejected (spec.md §5
	// "Resource limits", §7 OversizeIndex).
	MaxIndexBytes int64
}

// ErrOversizeIndex is returned when the gathered index view exceeds
// cfg.MaxIndexBytes.
var ErrOversizeIndex = fmt.Errorf("fetch: index exceeds configured size budget")

// Clock returns the current time; tests substitute a fixed clock to
// exercise testable property 1 (content-addressing determinism).
type Clock func() time.Time

// Assemble runs the full per-request pipeline (spec.md §4.G):
//  1. build a fresh virtual repository,
//  2. query the index view for (userID, orgName),
//  3. insert each crate's manifest at its computed folder,
//  4. insert a top-level config.json,
//  5. commit with a fixed synthetic author,
//  6. build the packfile.
//
// It returns the commit hash (used for both HEAD and refs/heads/master)
// and the packfile bytes ready for delivery.
func Assemble(ctx context.Context, db database.DB, userID int64, orgName string, cfg RegistryConfig, now Clock) (gitobject.Hash, []byte, error) {
	entries, err := cargoindex.View(ctx, db, userID, orgName)
	if err != nil {
		return gitobject.Hash{}, nil, err
	}

	if cfg.MaxIndexBytes > 0 {
		var total int64
		for _, e := range entries {
			total += int64(len(e.Manifest))
		}
		if total > cfg.MaxIndexBytes {
			return gitobject.Hash{}, nil, ErrOversizeIndex
		}
	}

	repo := vrepo.New()
	for _, e := range entries {
		folder := cargoindex.Folder(e.CrateName)
		if err := repo.Insert(folder, e.CrateName, e.Manifest); err != nil {
			return gitobject.Hash{}, nil, err
		}
	}

	configJSON := fmt.Sprintf(`{"dl":%q,"api":%q}`, cfg.DownloadURLTemplate, cfg.APIBaseURL)
	if err := repo.Insert(nil, "config.json", []byte(configJSON)); err != nil {
		return gitobject.Hash{}, nil, err
	}

	commitHash, objects, err := repo.Commit(ctx, authorName, authorEmail, commitMsg, now().Unix())
	if err != nil {
		return gitobject.Hash{}, nil, err
	}

	packEntries := make([]packfile.Entry, 0, len(objects))
	for _, o := range objects {
		packEntries = append(packEntries, packfile.Entry{Kind: o.Object.Kind(), Payload: o.Object.Encode()})
	}
	pack, err := packfile.Build(packEntries)
	if err != nil {
		return gitobject.Hash{}, nil, err
	}

	return commitHash, pack, nil
}
