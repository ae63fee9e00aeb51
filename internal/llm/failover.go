package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

// NamedProvider pairs a router implementation with its breaker identity.
type NamedProvider struct {
	Name   string
	Router Router
}

// FailoverRouter walks the provider list in order, skipping providers
// whose circuit is open and charging the budget before each dispatch.
// When every provider is down the caller gets a ProviderError and the
// pipeline continues without LLM assistance.
type FailoverRouter struct {
	providers    []NamedProvider
	registry     *Registry
	budget       *Budget
	productID    string
	callEstimate int64
	metadataSink metadata.MetadataSink
}

func NewFailoverRouter(
	providers []NamedProvider,
	registry *Registry,
	budget *Budget,
	productID string,
	callEstimate int64,
	metadataSink metadata.MetadataSink,
) *FailoverRouter {
	return &FailoverRouter{
		providers:    providers,
		registry:     registry,
		budget:       budget,
		productID:    productID,
		callEstimate: callEstimate,
		metadataSink: metadataSink,
	}
}

func (f *FailoverRouter) Call(ctx context.Context, role Role, system, user string, schema json.RawMessage) (json.RawMessage, failure.ClassifiedError) {
	if budgetErr := f.budget.Reserve(f.productID, f.callEstimate); budgetErr != nil {
		f.metadataSink.RecordEvent(metadata.EventBudgetDropped, []metadata.Attribute{
			metadata.NewAttr(metadata.AttrProductID, f.productID),
			metadata.NewAttr(metadata.AttrReason, budgetErr.Message),
		})
		return nil, budgetErr
	}

	var lastErr failure.ClassifiedError
	for _, provider := range f.providers {
		breaker := f.registry.For(provider.Name)
		if !breaker.Allow() {
			continue
		}
		result, err := provider.Router.Call(ctx, role, system, user, schema)
		if err == nil {
			breaker.RecordSuccess()
			return result, nil
		}
		breaker.RecordFailure()
		lastErr = err
		f.metadataSink.RecordEvent(metadata.EventProviderDegraded, []metadata.Attribute{
			metadata.NewAttr(metadata.AttrProvider, provider.Name),
			metadata.NewAttr(metadata.AttrReason, err.Error()),
		})
	}

	f.budget.Refund(f.productID, f.callEstimate)
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &ProviderError{
		Message:   "all providers unavailable",
		Retryable: true,
		Provider:  "failover",
	}
}

// HealthProbe re-checks open circuits by issuing a minimal call.
// Intended for between-round housekeeping, never the hot path.
func (f *FailoverRouter) HealthProbe(ctx context.Context) {
	for _, provider := range f.providers {
		breaker := f.registry.For(provider.Name)
		if breaker.State() != BreakerOpen {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := provider.Router.Call(probeCtx, RolePlan, "", "ping", nil)
		cancel()
		if err == nil {
			breaker.RecordSuccess()
		}
	}
}
