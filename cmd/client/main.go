// cmd/client/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gurkanbulca/tasktracker/internal/config"
	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/service"
	"github.com/gurkanbulca/tasktracker/pkg/auth"
)

type options struct {
	addr    string
	token   string
	timeout time.Duration
}

func main() {
	_ = godotenv.Load()

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "tasktracker",
		Short:         "Command line client for the task tracker gRPC server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", "localhost:50051", "server address")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("TASKTRACKER_TOKEN"), "bearer token (or TASKTRACKER_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(
		tokenCmd(),
		createCmd(opts),
		getCmd(opts),
		listCmd(opts),
		updateCmd(opts),
		statusCmd(opts),
		deleteCmd(opts),
		notificationsCmd(opts),
		statsCmd(opts),
		usersCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// tokenCmd mints an access token with the server's secret. Meant for local
// setups where the operator holds the configuration.
func tokenCmd() *cobra.Command {
	var (
		userID   int64
		username string
		mail     string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token from the local configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user-id is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.AccessTokenDuration)
			token, err := tokens.GenerateAccessToken(userID, username, mail, role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id")
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&mail, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", "user", "admin, creator or user")
	return cmd
}

func createCmd(opts *options) *cobra.Command {
	var (
		title, description, deadline string
		assignee, secondary          int64
		urgent                       bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and assign a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"title":       title,
				"description": description,
				"assigned_to": assignee,
				"urgent":      urgent,
			}
			if secondary > 0 {
				body["secondary_id"] = secondary
			}
			if deadline != "" {
				body["deadline"] = deadline
			}
			return opts.run(service.TaskServiceName, "CreateTask", body)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "task title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline, YYYY-MM-DD or RFC 3339")
	cmd.Flags().Int64VarP(&assignee, "assign", "a", 0, "assignee user id")
	cmd.Flags().Int64Var(&secondary, "secondary", 0, "secondary responsible user id")
	cmd.Flags().BoolVar(&urgent, "urgent", false, "mark the task urgent")
	return cmd
}

func getCmd(opts *options) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a task with its history and attachments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(service.TaskServiceName, "GetTask", map[string]interface{}{"id": id})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	return cmd
}

func listCmd(opts *options) *cobra.Command {
	var (
		status, search string
		limit, offset  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"limit": limit, "offset": offset}
			if status != "" {
				body["status"] = status
			}
			if search != "" {
				body["search"] = search
			}
			return opts.run(service.TaskServiceName, "ListTasks", body)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status")
	cmd.Flags().StringVarP(&search, "search", "q", "", "search title and description")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func updateCmd(opts *options) *cobra.Command {
	var (
		id           int64
		status, note string
		files        []string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Post a status update, note or attachments on a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"task_id": id}
			if status != "" {
				body["status"] = status
			}
			if note != "" {
				body["note"] = note
			}
			if len(files) > 0 {
				refs := make([]interface{}, 0, len(files))
				for _, f := range files {
					refs = append(refs, map[string]interface{}{"filename": f})
				}
				body["files"] = refs
			}
			return opts.run(service.TaskServiceName, "ApplyUpdate", body)
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	cmd.Flags().StringVarP(&status, "status", "s", "", "new status")
	cmd.Flags().StringVarP(&note, "note", "m", "", "free-text note")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "stored attachment filename, repeatable")
	return cmd
}

func statusCmd(opts *options) *cobra.Command {
	var (
		id     int64
		status string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Change a task status without notifying anyone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(service.TaskServiceName, "ChangeStatus", map[string]interface{}{"id": id, "status": status})
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	cmd.Flags().StringVarP(&status, "status", "s", "", "new status")
	return cmd
}

func deleteCmd(opts *options) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a task with its history and attachments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(service.TaskServiceName, "DeleteTask", map[string]interface{}{"id": id})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	return cmd
}

func notificationsCmd(opts *options) *cobra.Command {
	var (
		limit  int
		unread bool
	)

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications and mark them read",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unread {
				return opts.run(service.NotificationServiceName, "UnreadCount", map[string]interface{}{})
			}
			return opts.run(service.NotificationServiceName, "ListNotifications", map[string]interface{}{"limit": limit})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "how many to show")
	cmd.Flags().BoolVar(&unread, "unread", false, "only print the unread count")
	return cmd
}

func statsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status and urgency (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(service.TaskServiceName, "Stats", map[string]interface{}{})
		},
	}
}

func usersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(service.UserServiceName, "ListUsers", map[string]interface{}{})
		},
	}

	var (
		username, password, mail, role string
		id                             int64
	)
	userBody := func(cmd *cobra.Command) map[string]interface{} {
		body := map[string]interface{}{}
		for flag, value := range map[string]string{"username": username, "password": password, "email": mail, "role": role} {
			if cmd.Flags().Changed(flag) {
				body[flag] = value
			}
		}
		return body
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := userBody(cmd)
			body["role"] = role
			return opts.run(service.UserServiceName, "CreateUser", body)
		},
	}
	edit := &cobra.Command{
		Use:   "edit",
		Short: "Change a user's name, password, role or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := userBody(cmd)
			body["id"] = id
			return opts.run(service.UserServiceName, "EditUser", body)
		},
	}
	remove := &cobra.Command{
		Use:   "delete",
		Short: "Delete a user without assignments or history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(service.UserServiceName, "DeleteUser", map[string]interface{}{"id": id})
		},
	}

	for _, c := range []*cobra.Command{add, edit} {
		c.Flags().StringVarP(&username, "username", "u", "", "login name")
		c.Flags().StringVarP(&password, "password", "p", "", "password, at least 8 characters")
		c.Flags().StringVarP(&mail, "email", "e", "", "notification address")
		c.Flags().StringVarP(&role, "role", "r", string(models.RoleUser), "admin, creator or user")
	}
	for _, c := range []*cobra.Command{edit, remove} {
		c.Flags().Int64Var(&id, "id", 0, "user id")
	}

	cmd.AddCommand(add, edit, remove)
	return cmd
}

func (o *options) run(svc, method string, body map[string]interface{}) error {
	conn, err := grpc.NewClient(o.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	resp, err := service.NewClient(conn, o.token).Call(ctx, svc, method, body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
