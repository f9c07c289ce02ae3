package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		SMTPHost:  "smtp.example.com",
		SMTPPort:  587,
		FromEmail: "tasks@example.com",
		FromName:  "Task Tracker",
		BaseURL:   "https://tasks.example.com/",
		AppName:   "Task Tracker",
	}
}

type parsedMessage struct {
	subject string
	to      string
	parts   map[string]string
}

func parseMessage(t *testing.T, raw []byte) parsedMessage {
	t.Helper()

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)

	parts := make(map[string]string)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, err := h.ContentType()
			require.NoError(t, err)
			body, err := io.ReadAll(p.Body)
			require.NoError(t, err)
			parts[contentType] = string(body)
		}
	}

	return parsedMessage{subject: subject, to: to[0].Address, parts: parts}
}

func TestSMTPEmailService_ComposeTaskAssigned(t *testing.T) {
	s := NewSMTPEmailService(testConfig())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	deadline := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	data := s.buildEmailData(&EmailData{
		RecipientName: "Elif",
		TaskID:        12,
		TaskTitle:     "Replace street lamps",
		Deadline:      &deadline,
	})

	raw, err := s.composeMessage("elif@example.com", s.templates.TaskAssigned, data)
	require.NoError(t, err)

	msg := parseMessage(t, raw)
	assert.Equal(t, "New task assigned: Replace street lamps", msg.subject)
	assert.Equal(t, "elif@example.com", msg.to)
	require.Contains(t, msg.parts, "text/plain")
	require.Contains(t, msg.parts, "text/html")
	assert.Contains(t, msg.parts["text/plain"], "Deadline: 15.06.2024")
	assert.Contains(t, msg.parts["text/plain"], "https://tasks.example.com/user/tasks/12")
	assert.Contains(t, msg.parts["text/html"], `href="https://tasks.example.com/user/tasks/12"`)
}

func TestSMTPEmailService_ComposeNotificationEscapesHTML(t *testing.T) {
	s := NewSMTPEmailService(testConfig())
	data := s.buildEmailData(&EmailData{
		RecipientName: "Can",
		TaskID:        3,
		Message:       "Status: Done - Note: <b>finished</b>",
	})

	raw, err := s.composeMessage("can@example.com", s.templates.Notification, data)
	require.NoError(t, err)

	msg := parseMessage(t, raw)
	assert.Equal(t, "Task Tracker: task notification", msg.subject)
	assert.Contains(t, msg.parts["text/plain"], "<b>finished</b>")
	assert.NotContains(t, msg.parts["text/html"], "<b>finished</b>")
	assert.Contains(t, msg.parts["text/html"], "&lt;b&gt;finished&lt;/b&gt;")
}

func TestSMTPEmailService_NotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.SMTPHost = ""
	s := NewSMTPEmailService(cfg)

	err := s.SendNotificationEmail(context.Background(), "x@example.com", &EmailData{Message: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, s.TestConnection(context.Background()), ErrNotConfigured)
}

func TestTaskURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3000/user/tasks/5", TaskURL("http://localhost:3000", 5))
	assert.Equal(t, "http://localhost:3000/user/tasks/5", TaskURL("http://localhost:3000/", 5))
}

func TestMockEmailService(t *testing.T) {
	m := NewMockEmailService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := strings.Repeat("a", i+1) + "@example.com"
			assert.NoError(t, m.SendNotificationEmail(ctx, to, &EmailData{Message: "m"}))
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.GetSentEmails(), 20)

	require.NoError(t, m.SendTaskAssignedEmail(ctx, "last@example.com", &EmailData{TaskTitle: "T"}))
	last := m.GetLastSentEmail()
	require.NotNil(t, last)
	assert.Equal(t, "task_assigned", last.Template)
	assert.Equal(t, "T", last.Data.TaskTitle)

	m.FailWith(errors.New("relay down"))
	assert.Error(t, m.SendNotificationEmail(ctx, "x@example.com", &EmailData{}))
	assert.Len(t, m.GetSentEmails(), 21)

	m.Clear()
	assert.Empty(t, m.GetSentEmails())
	assert.Nil(t, m.GetLastSentEmail())
}
