// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"github.com/spf13/viper"

	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/middleware"
	"github.com/gurkanbulca/tasktracker/pkg/email"
)

const devAccessSecret = "dev-access-secret-change-in-production"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Email      EmailConfig      `mapstructure:"email"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Validation ValidationConfig `mapstructure:"validation"`
}

type ServerConfig struct {
	GRPCPort         string `mapstructure:"grpc_port"`
	Environment      string `mapstructure:"environment"`
	EnableReflection bool   `mapstructure:"enable_reflection"`
	AutoMigrate      bool   `mapstructure:"auto_migrate"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Path     string `mapstructure:"path"`
}

type JWTConfig struct {
	AccessSecret        string        `mapstructure:"access_secret"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration"`
}

type EmailConfig struct {
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUsername string        `mapstructure:"smtp_username"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	FromEmail    string        `mapstructure:"from_email"`
	FromName     string        `mapstructure:"from_name"`
	BaseURL      string        `mapstructure:"base_url"`
	SupportEmail string        `mapstructure:"support_email"`
	TestingMode  bool          `mapstructure:"testing_mode"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
}

type WorkflowConfig struct {
	TxTimeout     time.Duration `mapstructure:"tx_timeout"`
	AdminOverride bool          `mapstructure:"admin_override"`
}

type ValidationConfig struct {
	MaxTitleLength       int `mapstructure:"max_title_length"`
	MaxDescriptionLength int `mapstructure:"max_description_length"`
	MaxNoteLength        int `mapstructure:"max_note_length"`
	MaxAttachments       int `mapstructure:"max_attachments"`
}

// bindings maps every key to its environment variables, first match wins.
var bindings = map[string][]string{
	"server.grpc_port":                  {"GRPC_PORT"},
	"server.environment":                {"ENVIRONMENT"},
	"server.enable_reflection":          {"GRPC_REFLECTION"},
	"server.auto_migrate":               {"AUTO_MIGRATE"},
	"database.driver":                   {"DB_DRIVER"},
	"database.host":                     {"DB_HOST"},
	"database.port":                     {"DB_PORT"},
	"database.user":                     {"DB_USER"},
	"database.password":                 {"DB_PASSWORD"},
	"database.name":                     {"DB_NAME"},
	"database.ssl_mode":                 {"DB_SSL_MODE"},
	"database.path":                     {"DB_PATH"},
	"jwt.access_secret":                 {"JWT_ACCESS_SECRET", "JWT_SECRET"},
	"jwt.access_token_duration":         {"JWT_ACCESS_TOKEN_DURATION"},
	"email.smtp_host":                   {"SMTP_HOST"},
	"email.smtp_port":                   {"SMTP_PORT"},
	"email.smtp_username":               {"SMTP_USER"},
	"email.smtp_password":               {"SMTP_PASS"},
	"email.from_email":                  {"MAIL_FROM"},
	"email.from_name":                   {"MAIL_FROM_NAME"},
	"email.base_url":                    {"APP_BASE_URL"},
	"email.support_email":               {"SUPPORT_EMAIL"},
	"email.testing_mode":                {"EMAIL_TESTING_MODE"},
	"email.send_timeout":                {"EMAIL_SEND_TIMEOUT"},
	"workflow.tx_timeout":               {"WORKFLOW_TX_TIMEOUT"},
	"workflow.admin_override":           {"WORKFLOW_ADMIN_OVERRIDE"},
	"validation.max_title_length":       {"MAX_TITLE_LENGTH"},
	"validation.max_description_length": {"MAX_DESCRIPTION_LENGTH"},
	"validation.max_note_length":        {"MAX_NOTE_LENGTH"},
	"validation.max_attachments":        {"MAX_ATTACHMENTS"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", "50051")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.enable_reflection", true)
	v.SetDefault("server.auto_migrate", true)

	v.SetDefault("database.driver", dialect.Postgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "tasktracker")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "tasktracker.db")

	v.SetDefault("jwt.access_secret", devAccessSecret)
	v.SetDefault("jwt.access_token_duration", 24*time.Hour)

	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_username", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.from_email", "no-reply@localhost")
	v.SetDefault("email.from_name", "Task Tracker")
	v.SetDefault("email.base_url", "http://localhost:3000")
	v.SetDefault("email.support_email", "")
	v.SetDefault("email.testing_mode", false)
	v.SetDefault("email.send_timeout", 15*time.Second)

	v.SetDefault("workflow.tx_timeout", 10*time.Second)
	v.SetDefault("workflow.admin_override", true)

	v.SetDefault("validation.max_title_length", 200)
	v.SetDefault("validation.max_description_length", 5000)
	v.SetDefault("validation.max_note_length", 2000)
	v.SetDefault("validation.max_attachments", 10)
}

// Load reads the configuration from defaults, the optional YAML file named by
// CONFIG_FILE and the environment, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	return cfg, nil
}

// ValidateConfig rejects settings the server cannot start with.
func (c *Config) ValidateConfig() error {
	var errs []error

	switch c.Database.Driver {
	case dialect.Postgres, dialect.SQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("jwt.access_secret: must be set"))
	}
	if !c.IsDevelopment() && c.JWT.AccessSecret == devAccessSecret {
		errs = append(errs, errors.New("jwt.access_secret: development secret used outside development"))
	}
	if c.JWT.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.access_token_duration: must be positive"))
	}
	if c.Workflow.TxTimeout <= 0 {
		errs = append(errs, errors.New("workflow.tx_timeout: must be positive"))
	}
	if c.Email.SMTPHost != "" && c.Email.FromEmail == "" {
		errs = append(errs, errors.New("email.from_email: required when smtp_host is set"))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// ToDatabaseConfig converts to the database package config
func (c *Config) ToDatabaseConfig() database.Config {
	return database.Config{
		Driver:   c.Database.Driver,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		DBName:   c.Database.DBName,
		SSLMode:  c.Database.SSLMode,
		Path:     c.Database.Path,
	}
}

// ToEmailConfig converts to the email package config
func (c *Config) ToEmailConfig() *email.Config {
	return &email.Config{
		SMTPHost:     c.Email.SMTPHost,
		SMTPPort:     c.Email.SMTPPort,
		SMTPUsername: c.Email.SMTPUsername,
		SMTPPassword: c.Email.SMTPPassword,
		FromEmail:    c.Email.FromEmail,
		FromName:     c.Email.FromName,
		BaseURL:      c.Email.BaseURL,
		AppName:      c.Email.FromName,
		SupportEmail: c.Email.SupportEmail,
	}
}

// ToValidationConfig converts to the request validation limits
func (c *Config) ToValidationConfig() *middleware.ValidationConfig {
	return &middleware.ValidationConfig{
		MaxTitleLength:       c.Validation.MaxTitleLength,
		MaxDescriptionLength: c.Validation.MaxDescriptionLength,
		MaxNoteLength:        c.Validation.MaxNoteLength,
		MaxAttachments:       c.Validation.MaxAttachments,
	}
}
