package validation

import (
	"context"
	"sync"

	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/table"
)

// MockValidator is a mock raw or flat validator for testing
type MockValidator struct {
	mu sync.Mutex

	// Control behavior
	ValidateFunc func(ctx context.Context, c contracts.Contract, t *table.Table) (Outcome, error)

	// Track calls for assertions
	Calls []string
}

// NewMockValidator creates a mock that passes every dataset
func NewMockValidator() *MockValidator {
	return &MockValidator{Calls: make([]string, 0)}
}

// Validate records the call and delegates to ValidateFunc
func (m *MockValidator) Validate(ctx context.Context, c contracts.Contract, t *table.Table) (Outcome, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, c.Name)
	fn := m.ValidateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, c, t)
	}

	return Outcome{Passed: true, Location: "mock://" + c.Name}, nil
}

// CallCount returns how many times Validate ran
func (m *MockValidator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
