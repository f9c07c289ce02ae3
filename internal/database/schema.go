package database

import (
	"context"
	"fmt"
	"log"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
	"github.com/jmoiron/sqlx"
)

var textType = map[string]string{dialect.Postgres: "text"}

var (
	// UsersColumns holds the columns for the "users" table.
	UsersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "username", Type: field.TypeString, Unique: true},
		{Name: "password_hash", Type: field.TypeString, Nullable: true},
		{Name: "role", Type: field.TypeString, Default: "user"},
		{Name: "email", Type: field.TypeString, Nullable: true},
		{Name: "avatar", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// UsersTable holds the schema information for the "users" table.
	UsersTable = &schema.Table{
		Name:       "users",
		Columns:    UsersColumns,
		PrimaryKey: []*schema.Column{UsersColumns[0]},
		Indexes: []*schema.Index{
			{Name: "users_role", Columns: []*schema.Column{UsersColumns[3]}},
		},
	}

	// TasksColumns holds the columns for the "tasks" table.
	TasksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "title", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, SchemaType: textType, Default: ""},
		{Name: "status", Type: field.TypeString, Default: "pending"},
		{Name: "deadline", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "urgent", Type: field.TypeBool, Default: false},
		{Name: "subject_owner", Type: field.TypeString, Nullable: true},
		{Name: "form_date", Type: field.TypeTime, Nullable: true},
		{Name: "region", Type: field.TypeString, Nullable: true},
		{Name: "city", Type: field.TypeString, Nullable: true},
		{Name: "municipality", Type: field.TypeString, Nullable: true},
		{Name: "department", Type: field.TypeString, Nullable: true},
		{Name: "archive", Type: field.TypeString, Default: "NO"},
		{Name: "given_date", Type: field.TypeTime, Nullable: true},
		{Name: "task_subject", Type: field.TypeString, Nullable: true},
		{Name: "assigned_to", Type: field.TypeInt64},
		{Name: "secondary_id", Type: field.TypeInt64, Nullable: true},
		{Name: "tertiary_id", Type: field.TypeInt64, Nullable: true},
		{Name: "created_by", Type: field.TypeInt64, Nullable: true},
	}
	// TasksTable holds the schema information for the "tasks" table.
	TasksTable = &schema.Table{
		Name:       "tasks",
		Columns:    TasksColumns,
		PrimaryKey: []*schema.Column{TasksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "tasks_users_assigned",
				Columns:    []*schema.Column{TasksColumns[17]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "tasks_users_secondary",
				Columns:    []*schema.Column{TasksColumns[18]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.SetNull,
			},
			{
				Symbol:     "tasks_users_tertiary",
				Columns:    []*schema.Column{TasksColumns[19]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.SetNull,
			},
			{
				Symbol:     "tasks_users_created",
				Columns:    []*schema.Column{TasksColumns[20]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{Name: "task_status", Columns: []*schema.Column{TasksColumns[3]}},
			{Name: "task_assigned_to", Columns: []*schema.Column{TasksColumns[17]}},
			{Name: "task_created_at", Columns: []*schema.Column{TasksColumns[5]}},
		},
	}

	// TaskUpdatesColumns holds the columns for the "task_updates" table.
	TaskUpdatesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "status", Type: field.TypeString, Nullable: true},
		{Name: "note", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "task_id", Type: field.TypeInt64},
		{Name: "user_id", Type: field.TypeInt64},
	}
	// TaskUpdatesTable holds the schema information for the "task_updates" table.
	TaskUpdatesTable = &schema.Table{
		Name:       "task_updates",
		Columns:    TaskUpdatesColumns,
		PrimaryKey: []*schema.Column{TaskUpdatesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "task_updates_tasks_history",
				Columns:    []*schema.Column{TaskUpdatesColumns[4]},
				RefColumns: []*schema.Column{TasksColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "task_updates_users_actor",
				Columns:    []*schema.Column{TaskUpdatesColumns[5]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "taskupdate_task_id_created_at", Columns: []*schema.Column{TaskUpdatesColumns[4], TaskUpdatesColumns[3]}},
		},
	}

	// TaskFilesColumns holds the columns for the "task_files" table.
	TaskFilesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "filename", Type: field.TypeString},
		{Name: "original_name", Type: field.TypeString},
		{Name: "mime_type", Type: field.TypeString, Nullable: true},
		{Name: "uploaded_at", Type: field.TypeTime},
		{Name: "task_id", Type: field.TypeInt64},
		{Name: "update_id", Type: field.TypeInt64, Nullable: true},
		{Name: "uploader_id", Type: field.TypeInt64},
	}
	// TaskFilesTable holds the schema information for the "task_files" table.
	TaskFilesTable = &schema.Table{
		Name:       "task_files",
		Columns:    TaskFilesColumns,
		PrimaryKey: []*schema.Column{TaskFilesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "task_files_tasks_files",
				Columns:    []*schema.Column{TaskFilesColumns[5]},
				RefColumns: []*schema.Column{TasksColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "task_files_task_updates_files",
				Columns:    []*schema.Column{TaskFilesColumns[6]},
				RefColumns: []*schema.Column{TaskUpdatesColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "task_files_users_uploader",
				Columns:    []*schema.Column{TaskFilesColumns[7]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "taskfile_task_id", Columns: []*schema.Column{TaskFilesColumns[5]}},
		},
	}

	// NotificationsColumns holds the columns for the "notifications" table.
	NotificationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "message", Type: field.TypeString, SchemaType: textType},
		{Name: "type", Type: field.TypeString},
		{Name: "is_read", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "user_id", Type: field.TypeInt64},
		{Name: "related_task_id", Type: field.TypeInt64, Nullable: true},
	}
	// NotificationsTable holds the schema information for the "notifications" table.
	NotificationsTable = &schema.Table{
		Name:       "notifications",
		Columns:    NotificationsColumns,
		PrimaryKey: []*schema.Column{NotificationsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "notifications_users_recipient",
				Columns:    []*schema.Column{NotificationsColumns[5]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "notifications_tasks_notifications",
				Columns:    []*schema.Column{NotificationsColumns[6]},
				RefColumns: []*schema.Column{TasksColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "notification_user_id_is_read", Columns: []*schema.Column{NotificationsColumns[5], NotificationsColumns[3]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		UsersTable,
		TasksTable,
		TaskUpdatesTable,
		TaskFilesTable,
		NotificationsTable,
	}
)

func init() {
	for _, fk := range TasksTable.ForeignKeys {
		fk.RefTable = UsersTable
	}
	TaskUpdatesTable.ForeignKeys[0].RefTable = TasksTable
	TaskUpdatesTable.ForeignKeys[1].RefTable = UsersTable
	TaskFilesTable.ForeignKeys[0].RefTable = TasksTable
	TaskFilesTable.ForeignKeys[1].RefTable = TaskUpdatesTable
	TaskFilesTable.ForeignKeys[2].RefTable = UsersTable
	NotificationsTable.ForeignKeys[0].RefTable = UsersTable
	NotificationsTable.ForeignKeys[1].RefTable = TasksTable
}

// Migrate creates or upgrades the schema on db.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	log.Println("🔄 Running auto migration...")

	drv := entsql.OpenDB(db.DriverName(), db.DB)
	migrate, err := schema.NewMigrate(
		drv,
		schema.WithDropIndex(true),
		schema.WithDropColumn(true),
		schema.WithForeignKeys(true),
	)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrate.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("run auto migration: %w", err)
	}

	log.Println("✅ Auto migration completed")
	return nil
}
