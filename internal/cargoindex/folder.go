// Package cargoindex implements the Cargo folder-layout rule (spec.md
// §4.E) and the index-view query that renders per-user, per-organization
// crate manifests (spec.md §4.D). Grounded on
// original_source/chartered-git/src/tree.rs's get_crate_folder and
// Tree::build.
package cargoindex

// Folder maps a crate name to its index directory path components, per the
// table in spec.md §4.E / the Cargo spec. The crate's own leaf file name is
// the crate name itself, appended by the caller.
func Folder(name string) []string {
	switch len(name) {
	case 0:
		return nil
	case 1:
		return []string{"1"}
	case 2:
		return []string{"2"}
	case 3:
		return []string{"3", name[:1]}
	default:
		return []string{name[:2], name[2:4]}
	}
}
