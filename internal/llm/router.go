package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

/*
LLM router

The pipeline treats language models as an optional accelerant: planning
and rerank calls are non-essential and are dropped on budget pressure or
provider failure; the pipeline must produce its full output without them.
*/

// Role names the call site; budgets and essentialness key off it.
type Role string

const (
	RolePlan     Role = "plan"
	RoleExtract  Role = "extract"
	RoleValidate Role = "validate"
	RoleWrite    Role = "write"
)

// Essential reports whether a role may abort the round when it cannot
// run. Planning and rerank degrade silently; identity validation does not.
func (r Role) Essential() bool {
	return r == RoleValidate
}

// Router is the cost-gated LLM capability contract.
type Router interface {
	Call(ctx context.Context, role Role, system, user string, schema json.RawMessage) (json.RawMessage, failure.ClassifiedError)
}

type ProviderError struct {
	Message   string
	Retryable bool
	Provider  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ProviderError) IsRetryable() bool {
	return e.Retryable
}

// BudgetError aborts essential calls; non-essential callers treat it as
// a silent skip.
type BudgetError struct {
	Message string
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("llm budget: %s", e.Message)
}

func (e *BudgetError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *BudgetError) IsRetryable() bool {
	return false
}

// NoopRouter is the fully-degraded router: every call reports provider
// unavailability. The pipeline runs deterministically on top of it.
type NoopRouter struct{}

func NewNoopRouter() NoopRouter { return NoopRouter{} }

func (NoopRouter) Call(ctx context.Context, role Role, system, user string, schema json.RawMessage) (json.RawMessage, failure.ClassifiedError) {
	return nil, &ProviderError{
		Message:   "no provider configured",
		Retryable: false,
		Provider:  "noop",
	}
}
