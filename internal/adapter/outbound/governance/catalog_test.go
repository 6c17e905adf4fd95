package governance

import (
	"context"
	"testing"
)

func TestStaticCatalog_Get(t *testing.T) {
	catalog := NewStaticCatalog()
	def, err := catalog.Get(context.Background(), "rbac")
	if err != nil {
		t.Fatalf("get rbac: %v", err)
	}
	if def.Type != "rbac" {
		t.Fatalf("expected type rbac, got %s", def.Type)
	}
}

func TestStaticCatalog_GetUnknown(t *testing.T) {
	catalog := NewStaticCatalog()
	if _, err := catalog.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown guardrail type")
	}
}

func TestStaticCatalog_ListHasAllNine(t *testing.T) {
	catalog := NewStaticCatalog()
	defs, err := catalog.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(defs) != 9 {
		t.Fatalf("expected 9 catalog entries (rbac + 5 pii + content_filter + 2 rate_limit), got %d", len(defs))
	}
}
