package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/internal/domain/guardrail"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

var tracer = otel.Tracer("github.com/cerberusgate/cerberusgate/internal/service")

// decisionCounter counts every decision the engine makes, labelled by
// outcome and the guardrail (if any) that decided it.
var decisionCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cerberusgate_governance_decisions_total",
		Help: "Total governance decisions, labelled by outcome and guardrail.",
	},
	[]string{"outcome", "guardrail_type"},
)

func init() {
	prometheus.MustRegister(decisionCounter)
}

// Decision is the engine's outcome for one message: whether to allow it
// through (possibly modified), block it, or fail it as an internal error.
// Decision is always produced -- DecisionEngine.Evaluate is a total
// function that never panics and never returns without a Decision, per
// the "always audits" contract.
type Decision struct {
	Kind    guardrail.OutcomeKind
	Message *mcp.Message
	Reason  string
	Results []PipelineResult
	Audit   governance.AuditRecord
}

// DecisionEngine orchestrates policy resolution, config merge, guardrail
// pipeline execution, and audit emission for one message leg (request or
// response).
type DecisionEngine struct {
	policies *PolicyResolver
	catalog  governance.GuardrailCatalog
	pipeline *Pipeline
	audit    governance.AuditSink
	logger   *slog.Logger
}

// NewDecisionEngine wires a decision engine from its collaborators.
func NewDecisionEngine(policies *PolicyResolver, catalog governance.GuardrailCatalog, pipeline *Pipeline, audit governance.AuditSink, logger *slog.Logger) *DecisionEngine {
	return &DecisionEngine{policies: policies, catalog: catalog, pipeline: pipeline, audit: audit, logger: logger}
}

// Evaluate resolves the effective policy set for agent, runs the
// guardrail pipeline over message, and emits an AuditRecord. It never
// returns an error: every internal failure (policy store down, guardrail
// misconfigured, guardrail panic-equivalent error) is translated into a
// Block decision with reason "internal_error" and a synthesized "system"
// guardrail entry in the audit trail, so a broken dependency fails closed
// instead of silently allowing traffic through ungoverned.
func (e *DecisionEngine) Evaluate(ctx context.Context, message *mcp.Message, agent governance.AgentContext, direction mcp.Direction, requestID, sessionID string) Decision {
	ctx, span := tracer.Start(ctx, "governance.decision",
		trace.WithAttributes(
			attribute.String("agent.id", agent.AgentID),
			attribute.String("agent.workspace_id", agent.WorkspaceID),
			attribute.String("direction", directionString(direction)),
		),
	)
	defer span.End()

	start := time.Now()

	decision := e.evaluateInner(ctx, message, agent, direction)
	decision.Audit = e.buildAuditRecord(agent, direction, message, requestID, sessionID, decision, time.Since(start))
	span.SetAttributes(attribute.String("decision_id", decision.Audit.ID), attribute.String("action", string(decision.Kind)))

	decisionCounter.WithLabelValues(string(decision.Kind), decidingGuardrail(decision)).Inc()

	e.emitAudit(decision.Audit)

	return decision
}

func (e *DecisionEngine) evaluateInner(ctx context.Context, message *mcp.Message, agent governance.AgentContext, direction mcp.Direction) Decision {
	set, err := e.policies.Resolve(ctx, agent.OrganisationID, agent.WorkspaceID, agent.AgentID)
	if err != nil {
		return e.internalErrorDecision(message, "database_error", "failed to resolve policies", err)
	}

	winners := Resolved(set)

	configs := make([]guardrailConfig, 0, len(winners))
	for guardrailType, policy := range winners {
		def, err := e.catalog.Get(ctx, guardrailType)
		if err != nil {
			return e.internalErrorDecision(message, "internal_error", "unknown guardrail type in policy: "+guardrailType, err)
		}
		configs = append(configs, guardrailConfig{
			guardrailType: guardrailType,
			defaultConfig: def.DefaultConfig,
			policyConfig:  policy.Config,
		})
	}

	evalCtx := guardrail.EvalContext{Agent: agent, Direction: direction}
	outcome, err := e.pipeline.Run(ctx, message, evalCtx, configs)
	if err != nil {
		return e.internalErrorDecision(message, "guardrail_error", "guardrail pipeline failed", err)
	}

	return Decision{Kind: outcome.Kind, Message: outcome.Message, Reason: outcome.Reason, Results: outcome.Results}
}

func (e *DecisionEngine) internalErrorDecision(message *mcp.Message, errorType, reason string, cause error) Decision {
	if e.logger != nil {
		e.logger.Error("governance decision failed, blocking", "reason", reason, "error", cause)
	}
	system := PipelineResult{
		GuardrailType: "system",
		Outcome:       guardrail.Block(reason, guardrail.SeverityCritical, map[string]interface{}{"error_type": errorType}),
	}
	return Decision{Kind: guardrail.OutcomeBlock, Message: message, Reason: "internal_error", Results: []PipelineResult{system}}
}

func (e *DecisionEngine) buildAuditRecord(agent governance.AgentContext, direction mcp.Direction, message *mcp.Message, requestID, sessionID string, decision Decision, latency time.Duration) governance.AuditRecord {
	results := make(map[string]governance.GuardrailResult, len(decision.Results))
	for _, r := range decision.Results {
		results[r.GuardrailType] = governance.GuardrailResult{
			Triggered: r.Outcome.Kind != guardrail.OutcomeAllow,
			Action:    string(r.Outcome.Kind),
			Details:   r.Outcome.Details,
			Severity:  string(r.Outcome.Severity),
		}
	}

	return governance.AuditRecord{
		ID:               uuid.NewString(),
		OrganisationID:   agent.OrganisationID,
		WorkspaceID:      agent.WorkspaceID,
		AgentID:          agent.AgentID,
		AgentName:        agent.AgentName,
		RequestID:        requestID,
		SessionID:        sessionID,
		Direction:        governance.Direction(directionString(direction)),
		ToolName:         message.ToolName(),
		Decision:         string(decision.Kind),
		Reason:           decision.Reason,
		GuardrailResults: results,
		LatencyMS:        float64(latency.Microseconds()) / 1000.0,
		CreatedAt:        time.Now(),
	}
}

func (e *DecisionEngine) emitAudit(record governance.AuditRecord) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Emit(context.Background(), record); err != nil && e.logger != nil {
		e.logger.Warn("failed to emit audit record", "error", err)
	}
}

// decidingGuardrail returns the type of the guardrail that produced the
// final non-allow outcome, or "none" when every guardrail allowed, or
// "system" for a block with no guardrail results at all. An internal-error
// block carries its synthesized "system" result, so it is named "system" too.
func decidingGuardrail(d Decision) string {
	if len(d.Results) == 0 {
		if d.Kind == guardrail.OutcomeBlock {
			return "system"
		}
		return "none"
	}
	last := d.Results[len(d.Results)-1]
	if last.Outcome.Kind == guardrail.OutcomeAllow {
		return "none"
	}
	return last.GuardrailType
}

func directionString(d mcp.Direction) string {
	if d == mcp.ClientToServer {
		return "request"
	}
	return "response"
}
