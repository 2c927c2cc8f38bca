package id

import (
	"strings"
	"testing"
)

func TestGenerateUniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for range 500 {
		got, err := Generate("grp")
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !strings.HasPrefix(got, "grp-") || len(got) != len("grp-")+21 {
			t.Fatalf("unexpected id %q", got)
		}
		if seen[got] {
			t.Fatalf("duplicate id %q", got)
		}
		seen[got] = true
	}
}

func TestGeneratorWithoutPrefix(t *testing.T) {
	got := Generator("")()
	if len(got) != 21 {
		t.Fatalf("unexpected id %q", got)
	}
}
