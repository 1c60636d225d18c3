package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockSource is an in-memory Source for tests and examples.
type MockSource struct {
	Responses map[string]json.RawMessage // Endpoint to response body
	Errors    map[string]error           // Endpoint to forced failure

	mu       sync.Mutex
	calls    int
	requests []Request
}

// NewMockSource creates a mock source with a small storefront catalogue.
func NewMockSource() *MockSource {
	return &MockSource{
		Responses: map[string]json.RawMessage{
			"catalog/categories":  json.RawMessage(`[{"id":1,"name":"Electronics"},{"id":2,"name":"Fashion"}]`),
			"marketing/banners":   json.RawMessage(`[{"id":"summer","image":"summer.png"}]`),
			"catalog/bestsellers": json.RawMessage(`[{"sku":"A-100","price":19.9}]`),
		},
		Errors: make(map[string]error),
	}
}

// Fetch returns the canned response for req.Endpoint. Unknown endpoints
// echo the request so tests can tell locales apart.
func (m *MockSource) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	resp, ok := m.Responses[req.Endpoint]
	err := m.Errors[req.Endpoint]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if ok {
		return resp, nil
	}
	return json.RawMessage(fmt.Sprintf(`{"endpoint":%q,"culture":%d}`, req.Endpoint, req.CultureID)), nil
}

// CallCount returns the number of Fetch calls.
func (m *MockSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request received.
func (m *MockSource) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears recorded calls.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.requests = nil
}

// Verify MockSource implements Source
var _ Source = (*MockSource)(nil)
