package cargoindex

import (
	"bytes"
	"encoding/json"
)

// crateFileEntry is one line of a crate's manifest file: the Cargo-format
// version fields flattened alongside cksum/yanked, matching
// original_source/chartered-git/src/tree.rs's CrateFileEntry (`#[serde(flatten)]`).
// Dependencies and Features are carried as opaque json.RawMessage — the
// server re-embeds whatever the relational store already holds in Cargo's
// own schema (spec.md §3, §4.D) without interpreting it.
type crateFileEntry struct {
	Name     string          `json:"name"`
	Vers     string          `json:"vers"`
	Deps     json.RawMessage `json:"deps"`
	Features json.RawMessage `json:"features"`
	Links    *string         `json:"links,omitempty"`
	Cksum    string          `json:"cksum"`
	Yanked   bool            `json:"yanked"`
}

// renderManifest joins one line per version, in publication order, each
// terminated by a newline (spec.md §3 CrateManifestLine, §4.D).
func renderManifest(crateName string, versions []versionFields) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range versions {
		entry := crateFileEntry{
			Name:     crateName,
			Vers:     v.Version,
			Deps:     nonEmptyRaw(v.Dependencies, "[]"),
			Features: nonEmptyRaw(v.Features, "{}"),
			Links:    v.Links,
			Cksum:    v.Checksum,
			Yanked:   v.Yanked,
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func nonEmptyRaw(b []byte, fallback string) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(b)
}

// versionFields is the subset of models.CrateVersion the renderer needs;
// View copies each version's fields into one before rendering.
type versionFields struct {
	Version      string
	Checksum     string
	Dependencies []byte
	Features     []byte
	Links        *string
	Yanked       bool
}
