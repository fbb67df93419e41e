package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemorySink keeps reports in memory
type MemorySink struct {
	mu      sync.RWMutex
	reports map[string][]byte
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{reports: make(map[string][]byte)}
}

func memoryLocation(dataset, stage string) string {
	return fmt.Sprintf("memory://%s/%s", dataset, stage)
}

// Write stores doc as JSON
func (s *MemorySink) Write(_ context.Context, dataset, stage string, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s %s report: %w", dataset, stage, err)
	}

	loc := memoryLocation(dataset, stage)

	s.mu.Lock()
	s.reports[loc] = body
	s.mu.Unlock()

	return loc, nil
}

// Read returns the stored report
func (s *MemorySink) Read(_ context.Context, dataset, stage string) ([]byte, error) {
	loc := memoryLocation(dataset, stage)

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.reports[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, loc)
	}

	return data, nil
}

// Len returns the number of stored reports
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.reports)
}
