package cargoindex

import (
	"strings"
	"testing"
)

func TestFolderTable(t *testing.T) {
	cases := []struct {
		name string
		want []string
	}{
		{"", nil},
		{"a", []string{"1"}},
		{"ab", []string{"2"}},
		{"abc", []string{"3", "a"}},
		{"abcd", []string{"ab", "cd"}},
		{"serde", []string{"se", "rd"}},
	}
	for _, c := range cases {
		got := Folder(c.name)
		if len(got) != len(c.want) {
			t.Fatalf("Folder(%q) = %v, want %v", c.name, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("Folder(%q) = %v, want %v", c.name, got, c.want)
			}
		}
	}
}

func TestFolderTotalForLengthFourPlus(t *testing.T) {
	// Property: for names of length >= 4, the returned folders concatenate
	// to the first 4 characters of the name (spec.md §8 property 4).
	names := []string{"abcd", "abcde", "serde", "tokio", "zzzzzzzzzz"}
	for _, n := range names {
		folders := Folder(n)
		if len(folders) != 2 {
			t.Fatalf("Folder(%q) returned %d components, want 2", n, len(folders))
		}
		got := strings.Join(folders, "")
		want := n[:4]
		if got != want {
			t.Fatalf("Folder(%q) concatenates to %q, want %q", n, got, want)
		}
	}
}
