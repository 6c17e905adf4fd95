package service

import (
	"context"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/internal/domain/guardrail"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// mergeConfig overlays policy config onto a guardrail's default config,
// key by key. Policy config never merges deeper than the top level: a key
// present in policy replaces the default's value for that key wholesale,
// it does not recursively merge nested maps.
func mergeConfig(defaultConfig, policyConfig map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaultConfig)+len(policyConfig))
	for k, v := range defaultConfig {
		merged[k] = v
	}
	for k, v := range policyConfig {
		merged[k] = v
	}
	return merged
}

// PipelineResult is one guardrail's contribution to a pipeline run, kept
// for audit trail construction regardless of whether it decided the
// overall outcome.
type PipelineResult struct {
	GuardrailType string
	Outcome       guardrail.Outcome
}

// PipelineOutcome is the aggregate result of running every applicable
// guardrail over one message.
type PipelineOutcome struct {
	Kind     guardrail.OutcomeKind
	Message  *mcp.Message
	Reason   string
	Results  []PipelineResult
}

// Pipeline runs an ordered set of guardrails (RBAC, PII scanners, content
// filter, rate limiters) over a single message, short-circuiting on the
// first Block and threading a Modify's replacement message forward into
// subsequent guardrails.
type Pipeline struct {
	registry *guardrail.Registry
}

// NewPipeline builds a pipeline dispatching through registry.
func NewPipeline(registry *guardrail.Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// guardrailConfig pairs a guardrail type with its catalog default config
// and its winning policy's config. The defaults are resolved by the caller
// (the decision engine) from the guardrail definition catalog and passed
// in here rather than looked up internally, so the pipeline stays free of
// a store dependency.
type guardrailConfig struct {
	guardrailType string
	defaultConfig map[string]interface{}
	policyConfig  map[string]interface{}
}

// Run evaluates message against every guardrail named in configs, in
// registry order filtered to only the types present in configs (i.e. only
// guardrail types with a winning policy at this scope are evaluated).
// Construction and execution failures are surfaced as
// *governance.GuardrailConfigError / *governance.GuardrailExecutionError
// respectively so the caller can translate them into an internal-error
// block without losing which guardrail misbehaved.
func (p *Pipeline) Run(ctx context.Context, message *mcp.Message, evalCtx guardrail.EvalContext, configs []guardrailConfig) (PipelineOutcome, error) {
	byType := make(map[string]guardrailConfig, len(configs))
	for _, c := range configs {
		byType[c.guardrailType] = c
	}

	out := PipelineOutcome{Kind: guardrail.OutcomeAllow, Message: message}

	for _, guardrailType := range p.registry.Order() {
		cfg, applicable := byType[guardrailType]
		if !applicable {
			continue
		}

		effective := mergeConfig(cfg.defaultConfig, cfg.policyConfig)
		g, err := p.registry.Construct(guardrailType, effective)
		if err != nil {
			return out, err
		}

		if !directionSupported(g, evalCtx.Direction) {
			continue
		}

		outcome, err := g.Evaluate(ctx, out.Message, evalCtx)
		if err != nil {
			return out, &governance.GuardrailExecutionError{GuardrailType: guardrailType, Cause: err}
		}

		out.Results = append(out.Results, PipelineResult{GuardrailType: guardrailType, Outcome: outcome})

		switch outcome.Kind {
		case guardrail.OutcomeBlock:
			out.Kind = guardrail.OutcomeBlock
			out.Reason = outcome.Reason
			return out, nil
		case guardrail.OutcomeModify:
			out.Message = outcome.Modified
			out.Kind = guardrail.OutcomeModify
		case guardrail.OutcomeLogOnly:
			if out.Kind == guardrail.OutcomeAllow {
				out.Kind = guardrail.OutcomeLogOnly
			}
		}
	}

	return out, nil
}

func directionSupported(g guardrail.Guardrail, current mcp.Direction) bool {
	want := governance.DirectionRequest
	if current == mcp.ServerToClient {
		want = governance.DirectionResponse
	}
	for _, d := range g.SupportedDirections() {
		if d.Includes(want) {
			return true
		}
	}
	return false
}
