package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	if !strings.HasPrefix(id, "job-") {
		t.Errorf("expected ID to start with 'job-', got %s", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "job-")); err != nil {
		t.Errorf("expected a uuid suffix, got %s: %v", id, err)
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
