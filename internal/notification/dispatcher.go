// Package notification fans task events out to users as in-app
// notifications and best-effort emails.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/repository"
	"github.com/gurkanbulca/tasktracker/internal/responsibility"
	"github.com/gurkanbulca/tasktracker/pkg/email"
)

// Message is one event to announce.
type Message struct {
	Text      string
	Type      models.NotificationType
	TaskID    int64
	TaskTitle string
	Deadline  *time.Time
}

// Dispatcher persists one unread notification per recipient and emails every
// recipient that has an address. Email runs in the background and its
// failures are logged, never returned.
type Dispatcher struct {
	notifications *repository.NotificationRepository
	users         *repository.UserRepository
	email         email.EmailService
	emailTimeout  time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil email service disables email.
func NewDispatcher(notifications *repository.NotificationRepository, users *repository.UserRepository, emailService email.EmailService, emailTimeout time.Duration) *Dispatcher {
	if emailTimeout <= 0 {
		emailTimeout = 15 * time.Second
	}
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		email:         emailService,
		emailTimeout:  emailTimeout,
	}
}

// Notify announces msg to recipients, never to actor. It returns the number
// of notifications stored. Recipients unknown to the directory are skipped.
func (d *Dispatcher) Notify(ctx context.Context, q database.Queryer, recipients *responsibility.IdentitySet, msg Message, actor int64) (int, error) {
	targets := recipients.Without(actor)
	if targets.Len() == 0 {
		return 0, nil
	}

	users, err := d.users.Lookup(ctx, q, targets.Slice())
	if err != nil {
		return 0, fmt.Errorf("lookup recipients: %w", err)
	}

	var (
		stored int
		errs   []error
		mailTo []*models.User
	)
	for _, id := range targets.Slice() {
		user, ok := users[id]
		if !ok {
			log.Printf("[WARN] notification for task %d skipped: user %d does not exist", msg.TaskID, id)
			continue
		}

		if _, err := d.notifications.Insert(ctx, q, id, msg.Text, msg.Type, msg.TaskID); err != nil {
			errs = append(errs, fmt.Errorf("notify user %d: %w", id, err))
			continue
		}
		stored++

		if user.MailAddress() != "" {
			mailTo = append(mailTo, user)
		}
	}

	for _, user := range mailTo {
		d.sendEmail(ctx, user, msg)
	}

	return stored, errors.Join(errs...)
}

// sendEmail delivers one email in the background. Assignment events use the
// assignment template, every other type the generic one.
func (d *Dispatcher) sendEmail(ctx context.Context, user *models.User, msg Message) {
	if d.email == nil {
		return
	}

	to := user.MailAddress()
	data := &email.EmailData{
		RecipientName: user.Username,
		TaskID:        msg.TaskID,
		TaskTitle:     msg.TaskTitle,
		Deadline:      msg.Deadline,
		Message:       msg.Text,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.emailTimeout)
		defer cancel()

		var err error
		if msg.Type == models.NotificationTaskAssigned {
			err = d.email.SendTaskAssignedEmail(sendCtx, to, data)
		} else {
			err = d.email.SendNotificationEmail(sendCtx, to, data)
		}
		if err != nil && !errors.Is(err, email.ErrNotConfigured) {
			log.Printf("[WARN] %s email to user %d for task %d failed: %v", msg.Type, user.ID, msg.TaskID, err)
		}
	}()
}

// Wait blocks until every email started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
