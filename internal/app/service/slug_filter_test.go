package service

import "testing"

func TestSlugFilter_SeededSlugs(t *testing.T) {
	filter := NewSlugFilter([]string{"abc123", "def456"})

	if !filter.MightContain("abc123") || !filter.MightContain("def456") {
		t.Fatal("seeded slugs must test positive")
	}
}

func TestSlugFilter_Add(t *testing.T) {
	filter := NewSlugFilter(nil)

	if filter.MightContain("newone") {
		t.Fatal("a fresh filter should not contain the slug yet")
	}
	filter.Add("newone")
	if !filter.MightContain("newone") {
		t.Fatal("added slugs must test positive")
	}
}

func TestSlugFilter_NegativesAreCommon(t *testing.T) {
	filter := NewSlugFilter([]string{"only-one"})

	negatives := 0
	probes := []string{"aaa111", "bbb222", "ccc333", "ddd444", "eee555"}
	for _, p := range probes {
		if !filter.MightContain(p) {
			negatives++
		}
	}
	// With a 0.1% false positive rate, all five should be negative.
	if negatives != len(probes) {
		t.Fatalf("expected %d negatives, got %d", len(probes), negatives)
	}
}
