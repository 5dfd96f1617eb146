// Package vrepo implements the virtual repository builder: accept
// (path, name, content) inserts, produce a deduplicated in-memory object
// set and a root commit hash (spec.md §4.C). Grounded on
// original_source/chartered-git/src/git/packfile/high_level.rs's
// Directory/TreeItem/GitRepository — a direct structural port from Rust's
// ordered IndexMap to a Go map plus a parallel insertion-order key slice.
package vrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/chartered-rs/chartered-git-index/internal/gitobject"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidPath is returned when an insert tries to descend through a path
// component that already resolved to a blob (spec.md §7 InvalidPath).
var ErrInvalidPath = fmt.Errorf("vrepo: path component is a blob, not a directory")

type node struct {
	blob *gitobject.Hash // set if this node is a file
	dir  *directory      // set if this node is a directory
}

// directory is an ordered mapping from path component to child node.
// Insertion order of first occurrence is preserved in keys, but Commit's
// tree serialization re-sorts per Git's tree-ordering rule regardless — the
// order here is only a deterministic iteration convenience (spec.md §3).
type directory struct {
	children map[string]*node
	keys     []string
}

func newDirectory() *directory {
	return &directory{children: make(map[string]*node)}
}

func (d *directory) child(name string) *node {
	n, ok := d.children[name]
	if !ok {
		n = &node{}
		d.children[name] = n
		d.keys = append(d.keys, name)
	}
	return n
}

// Repository is the builder. Zero value is not usable; use New.
type Repository struct {
	root    *directory
	objects map[gitobject.Hash]gitobject.Object
	mu      sync.Mutex
}

// New returns an empty builder.
func New() *Repository {
	return &Repository{root: newDirectory(), objects: make(map[gitobject.Hash]gitobject.Object)}
}

// Insert walks/creates the directory chain named by path, then attaches a
// blob named `name` containing content under the leaf directory. If `name`
// already exists there, it is silently overwritten (last-writer-wins, per
// spec.md §9's Open Question, resolved against high_level.rs's insert,
// which maps to a plain IndexMap insert with no duplicate check).
func (r *Repository) Insert(path []string, name string, content []byte) error {
	dir := r.root
	for _, part := range path {
		n := dir.child(part)
		if n.blob != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPath, part)
		}
		if n.dir == nil {
			n.dir = newDirectory()
		}
		dir = n.dir
	}

	blob := gitobject.Blob{Content: content}
	h := gitobject.HashOf(blob)
	r.objects[h] = blob

	leaf := dir.child(name)
	if leaf.dir != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	hc := h
	leaf.blob = &hc
	return nil
}

// Commit recursively serializes every directory into Tree objects (leaves
// first, since a parent's entry needs its child's hash), builds and hashes
// the root Commit, and returns the commit hash plus every accumulated
// object in pack emission order: commit, then trees, then blobs — matching
// spec.md §4.C's build-then-commit contract. Time is captured once and
// reused for both author and committer lines.
func (r *Repository) Commit(ctx context.Context, authorName, authorEmail, message string, unixTime int64) (gitobject.Hash, []packEntry, error) {
	rootHash, err := r.serializeTree(ctx, r.root)
	if err != nil {
		return gitobject.Hash{}, nil, err
	}

	sig := gitobject.Signature{Name: authorName, Email: authorEmail, Unix: unixTime}
	commit := gitobject.Commit{
		Tree:      rootHash,
		Author:    sig,
		Committer: sig,
		Message:   message,
	}
	commitHash := gitobject.HashOf(commit)
	r.objects[commitHash] = commit

	entries := make([]packEntry, 0, 1+len(r.objects))
	entries = append(entries, packEntry{Hash: commitHash, Object: commit})
	for _, kind := range []gitobject.Kind{gitobject.KindTree, gitobject.KindBlob} {
		for h, o := range r.objects {
			if o.Kind() == kind {
				entries = append(entries, packEntry{Hash: h, Object: o})
			}
		}
	}

	return commitHash, entries, nil
}

// packEntry pairs a content-addressed hash with its object, the shape
// internal/fetch hands to the packfile writer.
type packEntry struct {
	Hash   gitobject.Hash
	Object gitobject.Object
}

// serializeTree hashes and records a directory's Tree object, parallelizing
// over sibling subdirectories with errgroup since each subtree's
// serialization is independent CPU-bound work (spec.md §5 explicitly
// allows offloading hashing/tree-assembly to a worker pool).
func (r *Repository) serializeTree(ctx context.Context, d *directory) (gitobject.Hash, error) {
	entries := make([]gitobject.TreeEntry, len(d.keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range d.keys {
		i, name := i, name
		n := d.children[name]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if n.blob != nil {
				entries[i] = gitobject.TreeEntry{Mode: gitobject.ModeFile, Name: name, Hash: *n.blob}
				return nil
			}
			childHash, err := r.serializeTree(gctx, n.dir)
			if err != nil {
				return err
			}
			entries[i] = gitobject.TreeEntry{Mode: gitobject.ModeDir, Name: name, Hash: childHash}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return gitobject.Hash{}, err
	}

	tree := gitobject.Tree{Entries: entries}
	h := gitobject.HashOf(tree)
	r.mu.Lock()
	r.objects[h] = tree
	r.mu.Unlock()
	return h, nil
}
