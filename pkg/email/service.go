// pkg/email/service.go
package email

import (
	"context"
	"errors"
	"time"
)

var ErrNotConfigured = errors.New("email transport is not configured")

// EmailService defines the interface for sending task emails
type EmailService interface {
	SendTaskAssignedEmail(ctx context.Context, to string, data *EmailData) error
	SendNotificationEmail(ctx context.Context, to string, data *EmailData) error
}

// EmailTemplate represents an email template
type EmailTemplate struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailData contains data for template rendering
type EmailData struct {
	RecipientName string
	TaskID        int64
	TaskTitle     string
	Deadline      *time.Time
	Message       string
	TaskURL       string
	AppName       string
	SupportEmail  string
}

// Config holds email service configuration
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	BaseURL      string
	AppName      string
	SupportEmail string
}

// Enabled reports whether an SMTP relay is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.SMTPHost != ""
}

// Templates holds all email templates
type Templates struct {
	TaskAssigned EmailTemplate
	Notification EmailTemplate
}

// NewTemplates creates default email templates
func NewTemplates() *Templates {
	return &Templates{
		TaskAssigned: EmailTemplate{
			Subject: "New task assigned: {{.TaskTitle}}",
			HTMLBody: `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>New task</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 5px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 14px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <p>Hello {{.RecipientName}},</p>
        <p>A new task has been assigned to you: <strong>{{.TaskTitle}}</strong></p>
        {{if .Deadline}}<p>Deadline: {{.Deadline.Format "02.01.2006"}}</p>{{end}}
        <p style="text-align: center; margin: 30px 0;">
            <a href="{{.TaskURL}}" class="button">Open task</a>
        </p>
        <div class="footer">
            <p>{{.AppName}}</p>
        </div>
    </div>
</body>
</html>`,
			TextBody: `Hello {{.RecipientName}},

A new task has been assigned to you: {{.TaskTitle}}
{{if .Deadline}}Deadline: {{.Deadline.Format "02.01.2006"}}
{{end}}
Open the task: {{.TaskURL}}

{{.AppName}}`,
		},

		Notification: EmailTemplate{
			Subject: "{{.AppName}}: task notification",
			HTMLBody: `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Task notification</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 14px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <p>Hello {{.RecipientName}},</p>
        <p>{{.Message}}</p>
        {{if .TaskURL}}<p><a href="{{.TaskURL}}">{{.TaskURL}}</a></p>{{end}}
        <div class="footer">
            <p>{{.AppName}}</p>
        </div>
    </div>
</body>
</html>`,
			TextBody: `Hello {{.RecipientName}},

{{.Message}}
{{if .TaskURL}}
{{.TaskURL}}
{{end}}
{{.AppName}}`,
		},
	}
}
