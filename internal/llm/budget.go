package llm

import (
	"sync"
)

// Budget enforces per-product and monthly cost ceilings before dispatch.
// Amounts are tracked in micro-dollars to stay integral.
type Budget struct {
	mu            sync.Mutex
	perProductMax int64
	monthlyMax    int64
	perProduct    map[string]int64
	monthlySpent  int64
}

func NewBudget(perProductMax, monthlyMax int64) *Budget {
	return &Budget{
		perProductMax: perProductMax,
		monthlyMax:    monthlyMax,
		perProduct:    make(map[string]int64),
	}
}

// Reserve admits a call of the estimated cost, charging it immediately.
// A zero ceiling means unlimited.
func (b *Budget) Reserve(productID string, estimated int64) *BudgetError {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.monthlyMax > 0 && b.monthlySpent+estimated > b.monthlyMax {
		return &BudgetError{Message: "monthly budget exhausted"}
	}
	if b.perProductMax > 0 && b.perProduct[productID]+estimated > b.perProductMax {
		return &BudgetError{Message: "per-product budget exhausted"}
	}
	b.monthlySpent += estimated
	b.perProduct[productID] += estimated
	return nil
}

// Refund returns unspent reservation (e.g. a call that failed before
// any tokens were billed).
func (b *Budget) Refund(productID string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monthlySpent -= amount
	if b.monthlySpent < 0 {
		b.monthlySpent = 0
	}
	b.perProduct[productID] -= amount
	if b.perProduct[productID] < 0 {
		b.perProduct[productID] = 0
	}
}

// SpentForProduct reports the product's charged total.
func (b *Budget) SpentForProduct(productID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perProduct[productID]
}
