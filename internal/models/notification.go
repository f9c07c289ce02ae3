package models

import (
	"database/sql"
	"time"
)

type NotificationType string

const (
	NotificationTaskAssigned NotificationType = "task_assigned"
	NotificationTaskUpdated  NotificationType = "task_updated"
	NotificationTaskUpdate   NotificationType = "task_update"
)

type Notification struct {
	ID            int64            `db:"id"`
	UserID        int64            `db:"user_id"`
	Message       string           `db:"message"`
	Type          NotificationType `db:"type"`
	RelatedTaskID sql.NullInt64    `db:"related_task_id"`
	IsRead        bool             `db:"is_read"`
	CreatedAt     time.Time        `db:"created_at"`
}
