package email

import (
	"context"
	"sync"
	"time"
)

// MockEmailService implements EmailService for testing. It is safe for
// concurrent use since notification emails are sent from goroutines.
type MockEmailService struct {
	mu         sync.Mutex
	sentEmails []SentEmail
	failWith   error
}

// SentEmail represents an email that was sent via MockEmailService
type SentEmail struct {
	To       string
	Template string
	Data     EmailData
	SentAt   time.Time
}

// NewMockEmailService creates a new mock email service
func NewMockEmailService() *MockEmailService {
	return &MockEmailService{}
}

// FailWith makes every later send return err, nil restores success.
func (m *MockEmailService) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// SendTaskAssignedEmail mock implementation
func (m *MockEmailService) SendTaskAssignedEmail(ctx context.Context, to string, data *EmailData) error {
	return m.record(to, "task_assigned", data)
}

// SendNotificationEmail mock implementation
func (m *MockEmailService) SendNotificationEmail(ctx context.Context, to string, data *EmailData) error {
	return m.record(to, "notification", data)
}

func (m *MockEmailService) record(to, template string, data *EmailData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	m.sentEmails = append(m.sentEmails, SentEmail{
		To:       to,
		Template: template,
		Data:     *data,
		SentAt:   time.Now(),
	})
	return nil
}

// GetSentEmails returns all sent emails (for testing)
func (m *MockEmailService) GetSentEmails() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentEmail, len(m.sentEmails))
	copy(out, m.sentEmails)
	return out
}

// GetLastSentEmail returns the last sent email (for testing)
func (m *MockEmailService) GetLastSentEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sentEmails) == 0 {
		return nil
	}
	last := m.sentEmails[len(m.sentEmails)-1]
	return &last
}

// Clear clears all sent emails (for testing)
func (m *MockEmailService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentEmails = nil
}
