package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/divingclub/clubattrs/internal/repositories"
)

// DefaultFailureMessage is reported for failing conditions without a
// message of their own.
const DefaultFailureMessage = "You do not meet the requirements for this action."

// Failure is one unmet condition.
type Failure struct {
	ConditionID int64  `json:"conditionId"`
	Condition   string `json:"condition"`
	Message     string `json:"message"`
}

// Decision is the outcome of gating an action.
type Decision struct {
	Allowed  bool      `json:"allowed"`
	Failures []Failure `json:"failures"`
}

// Messages returns the failure messages in condition order.
func (d Decision) Messages() []string {
	msgs := make([]string, 0, len(d.Failures))
	for _, f := range d.Failures {
		msgs = append(msgs, f.Message)
	}
	return msgs
}

// Error joins the failure messages, or returns "" when allowed.
func (d Decision) Error() string {
	return strings.Join(d.Messages(), "; ")
}

// DecisionRecorder observes gate outcomes.
type DecisionRecorder interface {
	RecordDecision(allowed bool)
}

// Gate combines the conditions of an action with AND semantics.
type Gate struct {
	engine         *Engine
	conditions     repositories.ConditionRepository
	defaultMessage string
	recorder       DecisionRecorder
	logger         *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithDefaultMessage overrides DefaultFailureMessage.
func WithDefaultMessage(msg string) GateOption {
	return func(g *Gate) {
		if strings.TrimSpace(msg) != "" {
			g.defaultMessage = msg
		}
	}
}

// WithDecisionRecorder reports every decision to r.
func WithDecisionRecorder(r DecisionRecorder) GateOption {
	return func(g *Gate) { g.recorder = r }
}

// WithGateLogger sets the gate logger.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate. conditions may be nil if only CheckAll is used.
func NewGate(engine *Engine, conditions repositories.ConditionRepository, opts ...GateOption) *Gate {
	g := &Gate{
		engine:         engine,
		conditions:     conditions,
		defaultMessage: DefaultFailureMessage,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrDiscard(g.logger)
	return g
}

// CheckAll evaluates every active condition against inst. All conditions
// are evaluated so that every failure is reported; inactive conditions are
// skipped. An empty set is allowed.
func (g *Gate) CheckAll(ctx context.Context, conds []*entities.Condition, inst entities.Instance) Decision {
	d := Decision{Allowed: true, Failures: []Failure{}}
	for _, c := range conds {
		if c == nil || !c.Active {
			continue
		}
		if g.engine.Evaluate(ctx, c, inst) {
			continue
		}
		d.Allowed = false
		d.Failures = append(d.Failures, Failure{
			ConditionID: c.ID,
			Condition:   c.String(),
			Message:     g.messageFor(c),
		})
	}

	if g.recorder != nil {
		g.recorder.RecordDecision(d.Allowed)
	}
	if !d.Allowed {
		g.logger.Info("eligibility denied",
			"instance_kind", kindOf(inst),
			"failures", len(d.Failures),
		)
	}
	return d
}

// CheckAction loads the active conditions of actionID and checks them.
func (g *Gate) CheckAction(ctx context.Context, actionID int64, inst entities.Instance) (Decision, error) {
	if g.conditions == nil {
		return Decision{}, fmt.Errorf("no condition repository configured")
	}
	conds, err := g.conditions.ListByAction(ctx, actionID, true)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load conditions for action %d: %w", actionID, err)
	}
	return g.CheckAll(ctx, conds, inst), nil
}

func (g *Gate) messageFor(c *entities.Condition) string {
	if c.ErrorMessage != nil && strings.TrimSpace(*c.ErrorMessage) != "" {
		return *c.ErrorMessage
	}
	return g.defaultMessage
}

func kindOf(inst entities.Instance) string {
	if inst == nil {
		return ""
	}
	return inst.EntityKind()
}
