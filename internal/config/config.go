// Package config loads the YAML settings file: connection details for
// both stores, migration defaults, logging, secrets and triggers.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
)

// EnvPath names the environment variable consulted when no --config
// flag is given.
const EnvPath = "SQLNOSQL_CONFIG"

// DefaultPath is used when neither the flag nor EnvPath is set.
const DefaultPath = "sqlnosql.yaml"

// Config is the whole settings file.
type Config struct {
	SQL       SQLConfig       `yaml:"sql" validate:"required"`
	Mongo     MongoConfig     `yaml:"mongo" validate:"required"`
	Migration MigrationConfig `yaml:"migration"`
	Log       LogConfig       `yaml:"log"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Triggers  []TriggerConfig `yaml:"triggers" validate:"dive"`
}

// SQLConfig describes the relational store. Path is only used by sqlite.
type SQLConfig struct {
	Driver      string `yaml:"driver" validate:"required,oneof=mysql postgres sqlserver sqlite"`
	Host        string `yaml:"host" validate:"required_unless=Driver sqlite"`
	Port        int    `yaml:"port" validate:"gte=0,lte=65535"`
	Database    string `yaml:"database" validate:"required_unless=Driver sqlite"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	PasswordKey string `yaml:"password_key"`
	SSLMode     string `yaml:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	Path        string `yaml:"path" validate:"required_if=Driver sqlite"`
}

// Connection converts the section into the domain connection.
func (c SQLConfig) Connection() domain.DatabaseConnection {
	host := c.Host
	if domain.DatabaseDriver(c.Driver).Embedded() {
		host = c.Path
	}
	return domain.DatabaseConnection{
		Driver:   domain.DatabaseDriver(c.Driver),
		Host:     host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.Username,
		SSLMode:  c.SSLMode,
	}
}

// MongoConfig describes the document store.
type MongoConfig struct {
	URI         string `yaml:"uri" validate:"required,startswith=mongodb"`
	Database    string `yaml:"database"`
	Password    string `yaml:"password"`
	PasswordKey string `yaml:"password_key"`
}

func (c MongoConfig) Connection() domain.DocumentConnection {
	return domain.DocumentConnection{URI: c.URI, Database: c.Database}
}

// MigrationConfig holds engine defaults that CLI flags may override.
type MigrationConfig struct {
	Policy string `yaml:"policy" validate:"omitempty,oneof=ask overwrite skip"`
	// ConfirmTimeout defaults to etl.DefaultConfirmTimeout; an explicit
	// 0 waits forever.
	ConfirmTimeout  *time.Duration `yaml:"confirm_timeout" validate:"omitempty,gte=0"`
	ContinueOnError bool           `yaml:"continue_on_error"`
	OutputDir       string         `yaml:"output_dir"`
}

// Timeout returns the effective decision timeout.
func (c MigrationConfig) Timeout() time.Duration {
	if c.ConfirmTimeout == nil {
		return etl.DefaultConfirmTimeout
	}
	return *c.ConfirmTimeout
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// SecretsConfig picks where password_key entries are looked up.
type SecretsConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=env keychain"`
}

// TriggerConfig re-runs a job on a cron schedule or when a file changes.
type TriggerConfig struct {
	Name string    `yaml:"name" validate:"required"`
	Kind string    `yaml:"kind" validate:"required,oneof=cron file_watch"`
	Expr string    `yaml:"expr" validate:"required_if=Kind cron"`
	Path string    `yaml:"path" validate:"required_if=Kind file_watch"`
	Job  JobConfig `yaml:"job"`
}

// JobConfig is an unattended job. An empty Source converts the whole
// database; triggers cannot ask questions, so the policy is mandatory.
type JobConfig struct {
	Direction string `yaml:"direction" validate:"required,oneof=sql-to-mongo mongo-to-sql"`
	Source    string `yaml:"source"`
	Query     string `yaml:"query"`
	Target    string `yaml:"target"`
	Policy    string `yaml:"policy" validate:"required,oneof=overwrite skip"`
}

// ResolvePath applies the flag → environment → default order.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if p, ok := os.LookupEnv(EnvPath); ok && p != "" {
		return p
	}
	return DefaultPath
}

// LoadFile reads and parses the settings file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Load(data)
}

// Load parses data, fills defaults and validates the result.
func Load(data []byte) (*Config, error) {
	n := &yaml.Node{}
	if err := yaml.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}
	if l := len(n.Content); l != 1 {
		return nil, fmt.Errorf("found %d children nodes, instead of 1 mapping child", l)
	}
	c := &Config{}
	if err := n.Decode(c); err != nil {
		return nil, fmt.Errorf("decoding yaml node: %w", err)
	}
	if err := c.ValidateAndNormalize(); err != nil {
		return nil, fmt.Errorf("validating configs: %w", err)
	}
	return c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAndNormalize fills defaults and checks every section.
func (c *Config) ValidateAndNormalize() error {
	if c.Migration.Policy == "" {
		c.Migration.Policy = string(domain.PolicyAsk)
	}
	if c.Migration.OutputDir == "" {
		c.Migration.OutputDir = "."
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Secrets.Backend == "" {
		c.Secrets.Backend = "env"
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	seen := make(map[string]bool, len(c.Triggers))
	for _, t := range c.Triggers {
		if seen[t.Name] {
			return fmt.Errorf("duplicate trigger name %q", t.Name)
		}
		seen[t.Name] = true
		if t.Job.Query != "" && t.Job.Direction != "sql-to-mongo" {
			return fmt.Errorf("trigger %q: query is only valid for sql-to-mongo", t.Name)
		}
		if t.Job.Query != "" && t.Job.Target == "" {
			return fmt.Errorf("trigger %q: a query job needs a target", t.Name)
		}
	}
	return nil
}
