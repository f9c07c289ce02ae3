package repository

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
)

const notificationsTable = "notifications"

type NotificationRepository struct {
	now func() time.Time
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{now: time.Now}
}

// Insert stores an unread notification and returns its id.
func (r *NotificationRepository) Insert(ctx context.Context, q database.Queryer, userID int64, message string, typ models.NotificationType, relatedTaskID int64) (int64, error) {
	query, args := database.Builder(q).
		Insert(notificationsTable).
		Columns("user_id", "message", "type", "related_task_id", "is_read", "created_at").
		Values(userID, message, string(typ), positiveID(relatedTaskID), false, r.now().UTC()).
		Returning("id").
		Query()

	var id int64
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, database.Classify(fmt.Errorf("insert notification: %w", err))
	}
	return id, nil
}

// ListForUser returns the newest notifications of a user. limit <= 0 means all.
func (r *NotificationRepository) ListForUser(ctx context.Context, q database.Queryer, userID int64, limit int) ([]*models.Notification, error) {
	b := database.Builder(q)
	selector := b.Select().
		From(b.Table(notificationsTable)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if limit > 0 {
		selector.Limit(limit)
	}

	query, args := selector.Query()
	var notifications []*models.Notification
	if err := q.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, database.Classify(fmt.Errorf("list notifications: %w", err))
	}
	return notifications, nil
}

// MarkAllRead flips every unread notification of a user and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, q database.Queryer, userID int64) (int64, error) {
	query, args := database.Builder(q).
		Update(notificationsTable).
		Set("is_read", true).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("is_read", false))).
		Query()

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("mark notifications read: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Classify(fmt.Errorf("mark notifications read: %w", err))
	}
	return n, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, q database.Queryer, userID int64) (int, error) {
	return r.count(ctx, q, "count unread notifications",
		entsql.And(entsql.EQ("user_id", userID), entsql.EQ("is_read", false)))
}

func (r *NotificationRepository) count(ctx context.Context, q database.Queryer, op string, where *entsql.Predicate) (int, error) {
	b := database.Builder(q)
	query, args := b.Select(entsql.Count("*")).From(b.Table(notificationsTable)).Where(where).Query()

	var n int
	if err := q.GetContext(ctx, &n, query, args...); err != nil {
		return 0, database.Classify(fmt.Errorf("%s: %w", op, err))
	}
	return n, nil
}
