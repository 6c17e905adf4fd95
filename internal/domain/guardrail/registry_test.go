package guardrail

import "testing"

func TestDefaultRegistry_Order(t *testing.T) {
	store := newFakeRateLimitStore()
	r := DefaultRegistry(store)

	order := r.Order()
	if order[0] != RBACType {
		t.Fatalf("expected RBAC first, got %s", order[0])
	}
	if order[len(order)-1] != RateLimitPerHourType {
		t.Fatalf("expected rate_limit_per_hour last, got %s", order[len(order)-1])
	}

	for _, piiType := range piiTypeTags {
		found := false
		for _, tag := range order {
			if tag == PIITypePrefix+piiType {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %s in registry order", PIITypePrefix+piiType)
		}
	}
}

func TestDefaultRegistry_ConstructUnknownType(t *testing.T) {
	store := newFakeRateLimitStore()
	r := DefaultRegistry(store)
	if _, err := r.Construct("not_a_type", map[string]interface{}{}); err == nil {
		t.Fatal("expected error for unregistered guardrail type")
	}
}

func TestDefaultRegistry_ConstructEach(t *testing.T) {
	store := newFakeRateLimitStore()
	r := DefaultRegistry(store)
	for _, tag := range r.Order() {
		if _, err := r.Construct(tag, map[string]interface{}{}); err != nil {
			t.Fatalf("construct %s: %v", tag, err)
		}
	}
}
