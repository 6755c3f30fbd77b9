package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/v2gplan/core/mqtt"
)

// MockPublisher records published plans; it is used in tests.
type MockPublisher struct {
	Messages []coremqtt.PlanMessage
	// Fail makes every publish return an error.
	Fail bool
	mu   sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishPlan records msg or returns an error if configured to fail.
func (m *MockPublisher) PublishPlan(_ context.Context, msg coremqtt.PlanMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

// Published returns a copy of the recorded messages.
func (m *MockPublisher) Published() []coremqtt.PlanMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coremqtt.PlanMessage(nil), m.Messages...)
}
