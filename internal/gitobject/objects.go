// Package gitobject produces Git's canonical byte encoding and SHA-1 object
// IDs for blobs, trees, and commits (spec.md §4.A). It has no notion of a
// persisted object store — everything here is a pure function from
// in-memory content to bytes and a hash.
package gitobject

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a Git object type.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindTree   Kind = "tree"
	KindCommit Kind = "commit"
)

// Hash is a 20-byte SHA-1 digest. Its hex form is what's advertised in
// refs and want/have lines.
type Hash [20]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// Mode is a tree entry's file mode, written as the ASCII octal string with
// no leading zeros per spec.md §4.A.
type Mode string

const (
	ModeFile Mode = "100644"
	ModeDir  Mode = "40000"
)

// HashObject computes the content ID for the canonical "<kind> <len>\0"
// header followed by payload, exactly as git-hash-object does. Grounded on
// gitinterop/objects.go's GitHashBytes.
func HashObject(kind Kind, payload []byte) Hash {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(payload))
	h.Write(payload)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Blob is opaque content; its canonical form is the payload verbatim.
type Blob struct {
	Content []byte
}

func (b Blob) Encode() []byte { return b.Content }
func (b Blob) Kind() Kind     { return KindBlob }

// TreeEntry is one (mode, name, hash) row of a Tree object.
type TreeEntry struct {
	Mode Mode
	Name string
	Hash Hash
}

// Tree is an ordered set of entries. Encode re-sorts them under Git's
// tree-ordering rule (spec.md §3) regardless of the order they were
// appended in — callers do not need to pre-sort.
type Tree struct {
	Entries []TreeEntry
}

// sortKey implements Git's tree-ordering comparison: compare name bytes,
// but a directory name is compared as if suffixed with "/".
func sortKey(e TreeEntry) string {
	if e.Mode == ModeDir {
		return e.Name + "/"
	}
	return e.Name
}

// Encode concatenates entries in Git tree-order: mode, space, name, NUL,
// 20 raw hash bytes.
func (t Tree) Encode() []byte {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool { return sortKey(sorted[i]) < sortKey(sorted[j]) })

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s\x00", e.Mode, e.Name)
		buf.Write(e.Hash[:])
	}
	return buf.Bytes()
}

func (t Tree) Kind() Kind { return KindTree }

// Signature is a commit author/committer line's identity+time.
type Signature struct {
	Name  string
	Email string
	Unix  int64
}

// Commit references a single tree with no parent (spec.md §1, §3: the
// synthesized repository always has exactly one commit).
type Commit struct {
	Tree      Hash
	Author    Signature
	Committer Signature
	Message   string
}

// Encode produces the canonical commit text. Time zone is always "+0000"
// per spec.md §4.A.
func (c Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	fmt.Fprintf(&buf, "author %s <%s> %d +0000\n", c.Author.Name, c.Author.Email, c.Author.Unix)
	fmt.Fprintf(&buf, "committer %s <%s> %d +0000\n", c.Committer.Name, c.Committer.Email, c.Committer.Unix)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

func (c Commit) Kind() Kind { return KindCommit }

// Object is any of Blob, Tree, Commit.
type Object interface {
	Encode() []byte
	Kind() Kind
}

// HashOf returns the object's content ID.
func HashOf(o Object) Hash {
	return HashObject(o.Kind(), o.Encode())
}

// LooseForm returns the "<kind> <len>\0<payload>" bytes used both for
// hashing and as the uncompressed loose-object body.
func LooseForm(o Object) []byte {
	payload := o.Encode()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d\x00", o.Kind(), len(payload))
	buf.Write(payload)
	return buf.Bytes()
}

// ParseKind maps a wire type name back to Kind; used by the packfile reader.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "blob":
		return KindBlob, true
	case "tree":
		return KindTree, true
	case "commit":
		return KindCommit, true
	default:
		return "", false
	}
}
