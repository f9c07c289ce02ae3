// pkg/email/smtp.go
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	htmltemplate "html/template"
	"io"
	"net"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// SMTPEmailService implements EmailService using SMTP
type SMTPEmailService struct {
	config    *Config
	templates *Templates
	auth      smtp.Auth
	now       func() time.Time
}

// NewSMTPEmailService creates a new SMTP email service
func NewSMTPEmailService(config *Config) *SMTPEmailService {
	var auth smtp.Auth
	if config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPHost)
	}

	return &SMTPEmailService{
		config:    config,
		templates: NewTemplates(),
		auth:      auth,
		now:       time.Now,
	}
}

// SendTaskAssignedEmail sends the email announcing a new assignment
func (s *SMTPEmailService) SendTaskAssignedEmail(ctx context.Context, to string, data *EmailData) error {
	return s.sendEmail(ctx, to, s.templates.TaskAssigned, s.buildEmailData(data))
}

// SendNotificationEmail sends the generic notification email
func (s *SMTPEmailService) SendNotificationEmail(ctx context.Context, to string, data *EmailData) error {
	return s.sendEmail(ctx, to, s.templates.Notification, s.buildEmailData(data))
}

// TaskURL returns the link to a task in the web application.
func TaskURL(baseURL string, taskID int64) string {
	return fmt.Sprintf("%s/user/tasks/%d", strings.TrimRight(baseURL, "/"), taskID)
}

// buildEmailData fills the configuration dependent fields of data
func (s *SMTPEmailService) buildEmailData(data *EmailData) *EmailData {
	out := *data
	if out.AppName == "" {
		out.AppName = s.config.AppName
	}
	if out.SupportEmail == "" {
		out.SupportEmail = s.config.SupportEmail
	}
	if out.TaskURL == "" && out.TaskID > 0 && s.config.BaseURL != "" {
		out.TaskURL = TaskURL(s.config.BaseURL, out.TaskID)
	}
	return &out
}

// sendEmail renders the template and delivers it over SMTP
func (s *SMTPEmailService) sendEmail(ctx context.Context, to string, tmpl EmailTemplate, data *EmailData) error {
	if !s.config.Enabled() {
		return ErrNotConfigured
	}

	message, err := s.composeMessage(to, tmpl, data)
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, to, message); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// composeMessage builds a multipart/alternative message with text and HTML parts
func (s *SMTPEmailService) composeMessage(to string, tmpl EmailTemplate, data *EmailData) ([]byte, error) {
	subject, err := renderText(tmpl.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	textBody, err := renderText(tmpl.TextBody, data)
	if err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	htmlBody, err := renderHTML(tmpl.HTMLBody, data)
	if err != nil {
		return nil, fmt.Errorf("render HTML body: %w", err)
	}

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Name: s.config.FromName, Address: s.config.FromEmail}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(strings.TrimSpace(subject))
	h.SetMessageID(fmt.Sprintf("%s@%s", uuid.NewString(), messageIDHost(s.config.FromEmail)))

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline part: %w", err)
	}
	parts := []struct {
		contentType string
		body        string
	}{
		{contentType: "text/plain", body: textBody},
		{contentType: "text/html", body: htmlBody},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, fmt.Errorf("write %s part: %w", p.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close %s part: %w", p.contentType, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}

	return buf.Bytes(), nil
}

// deliver runs one SMTP transaction, honouring ctx for dial and I/O deadlines
func (s *SMTPEmailService) deliver(ctx context.Context, to string, message []byte) error {
	addr := net.JoinHostPort(s.config.SMTPHost, fmt.Sprint(s.config.SMTPPort))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.SMTPHost}); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}
	if s.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(s.auth); err != nil {
				return fmt.Errorf("SMTP authentication failed: %w", err)
			}
		}
	}

	if err := client.Mail(s.config.FromEmail); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return client.Quit()
}

// TestConnection tests the SMTP connection
func (s *SMTPEmailService) TestConnection(ctx context.Context) error {
	if !s.config.Enabled() {
		return ErrNotConfigured
	}

	addr := net.JoinHostPort(s.config.SMTPHost, fmt.Sprint(s.config.SMTPPort))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.SMTPHost}); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}
	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	return client.Quit()
}

func renderText(tmpl string, data *EmailData) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderHTML(tmpl string, data *EmailData) (string, error) {
	t, err := htmltemplate.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func messageIDHost(from string) string {
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		return from[at+1:]
	}
	return "localhost"
}
