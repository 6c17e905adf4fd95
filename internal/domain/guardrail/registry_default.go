package guardrail

import "github.com/cerberusgate/cerberusgate/internal/domain/governance"

// pii types registered under the "pii_" prefix, matching the catalog
// entries seeded by the default guardrail definitions.
var piiTypeTags = []string{"ssn", "credit_card", "email", "phone", "ip_address"}

// DefaultRegistry builds the registry in the fixed pipeline order: RBAC
// first (cheapest, tool-scoped denial), then the five PII scanners, then
// content filtering, then the two rate-limit windows last (they mutate
// shared counters and should only fire once a message has cleared the
// cheaper checks).
func DefaultRegistry(rateLimitStore governance.RateLimitStore) *Registry {
	r := NewRegistry()

	r.Register(RBACType, NewRBAC)

	for _, piiType := range piiTypeTags {
		r.Register(PIITypePrefix+piiType, NewPII(piiType))
	}

	r.Register(ContentFilterType, NewContentFilter)

	r.Register(RateLimitPerMinuteType, NewRateLimit(RateLimitPerMinuteType, secondsPerMinute, rateLimitStore))
	r.Register(RateLimitPerHourType, NewRateLimit(RateLimitPerHourType, secondsPerHour, rateLimitStore))

	return r
}
