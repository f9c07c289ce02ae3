package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gurkanbulca/tasktracker/internal/config"
	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/repository"
	"github.com/gurkanbulca/tasktracker/pkg/auth"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the task tracker schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(db *sqlx.DB) error {
				log.Println("Running database migrations...")
				if err := database.Migrate(cmd.Context(), db); err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}
				log.Println("✅ Migrations completed successfully!")
				return nil
			})
		},
	}
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seedCmd() *cobra.Command {
	var (
		username string
		password string
		mail     string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a user account, an administrator by default",
		Example: `  migrate seed --username admin --password 'S3cret!' --email admin@example.com
  migrate seed --username field1 --password 'S3cret!' --role user`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			return withDatabase(func(db *sqlx.DB) error {
				if err := database.Migrate(cmd.Context(), db); err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}

				id, err := repository.NewUserRepository().Create(cmd.Context(), db, &repository.UserInput{
					Username:     username,
					PasswordHash: hash,
					Role:         models.Role(role),
					Email:        mail,
				})
				if err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				log.Printf("✅ Created %s %q with id %d", role, username, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password")
	cmd.Flags().StringVarP(&mail, "email", "e", "", "notification address")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleAdmin), "admin, creator or user")

	return cmd
}

func withDatabase(fn func(db *sqlx.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Open(cfg.ToDatabaseConfig())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	return fn(db)
}
