package id

import (
	"regexp"
	"testing"
)

var pattern = regexp.MustCompile(`^clip-\d+-[0-9a-f]{12}$`)

func TestGenerate(t *testing.T) {
	id := Generate()
	if !pattern.MatchString(id) {
		t.Errorf("unexpected ID format: %s", id)
	}
	if id == Generate() {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Generate()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}
