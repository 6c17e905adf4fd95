package governance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
)

// StaticCatalog is the built-in GuardrailCatalog: the nine guardrail
// types the gateway ships with, seeded at process start. Catalog
// administration (adding new guardrail types at runtime) is out of
// scope, so this implementation is read-only and never mutated after
// construction.
type StaticCatalog struct {
	byType map[string]governance.GuardrailDefinition
}

// NewStaticCatalog builds the default catalog.
func NewStaticCatalog() *StaticCatalog {
	defs := []governance.GuardrailDefinition{
		{ID: uuid.NewString(), Type: "rbac", DisplayName: "Tool Access Control", Category: governance.CategoryRBAC, Active: true, DefaultConfig: map[string]interface{}{
			"default_action": "deny",
		}},
		{ID: uuid.NewString(), Type: "pii_ssn", DisplayName: "PII: Social Security Number", Category: governance.CategoryPII, Active: true, DefaultConfig: map[string]interface{}{
			"direction": "response", "action": "redact", "redaction_pattern": "[REDACTED:{TYPE}]",
		}},
		{ID: uuid.NewString(), Type: "pii_credit_card", DisplayName: "PII: Credit Card", Category: governance.CategoryPII, Active: true, DefaultConfig: map[string]interface{}{
			"direction": "response", "action": "redact", "redaction_pattern": "[REDACTED:{TYPE}]",
		}},
		{ID: uuid.NewString(), Type: "pii_email", DisplayName: "PII: Email Address", Category: governance.CategoryPII, Active: true, DefaultConfig: map[string]interface{}{
			"direction": "response", "action": "redact", "redaction_pattern": "[REDACTED:{TYPE}]",
		}},
		{ID: uuid.NewString(), Type: "pii_phone", DisplayName: "PII: Phone Number", Category: governance.CategoryPII, Active: true, DefaultConfig: map[string]interface{}{
			"direction": "response", "action": "redact", "redaction_pattern": "[REDACTED:{TYPE}]",
		}},
		{ID: uuid.NewString(), Type: "pii_ip_address", DisplayName: "PII: IP Address", Category: governance.CategoryPII, Active: true, DefaultConfig: map[string]interface{}{
			"direction": "response", "action": "redact", "redaction_pattern": "[REDACTED:{TYPE}]",
		}},
		{ID: uuid.NewString(), Type: "content_filter", DisplayName: "Content Filter", Category: governance.CategoryContent, Active: true, DefaultConfig: map[string]interface{}{
			"direction": "both",
		}},
		{ID: uuid.NewString(), Type: "rate_limit_per_minute", DisplayName: "Rate Limit (per minute)", Category: governance.CategoryRateLimit, Active: true, DefaultConfig: map[string]interface{}{
			"limit": 60,
		}},
		{ID: uuid.NewString(), Type: "rate_limit_per_hour", DisplayName: "Rate Limit (per hour)", Category: governance.CategoryRateLimit, Active: true, DefaultConfig: map[string]interface{}{
			"limit": 1000,
		}},
	}

	byType := make(map[string]governance.GuardrailDefinition, len(defs))
	for _, d := range defs {
		byType[d.Type] = d
	}
	return &StaticCatalog{byType: byType}
}

// Get returns the definition for guardrailType.
func (c *StaticCatalog) Get(ctx context.Context, guardrailType string) (*governance.GuardrailDefinition, error) {
	def, ok := c.byType[guardrailType]
	if !ok {
		return nil, fmt.Errorf("governance: unknown guardrail type %q", guardrailType)
	}
	return &def, nil
}

// List returns every catalog entry.
func (c *StaticCatalog) List(ctx context.Context) ([]governance.GuardrailDefinition, error) {
	out := make([]governance.GuardrailDefinition, 0, len(c.byType))
	for _, d := range c.byType {
		out = append(out, d)
	}
	return out, nil
}

var _ governance.GuardrailCatalog = (*StaticCatalog)(nil)
