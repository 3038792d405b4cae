package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/buildtall-systems/storebridge/internal/commands"
)

// DefaultSecret is the shipped bearer token. Running with it logs a warning.
const DefaultSecret = "change-me-super-secret-key"

// ErrInvalidConfig indicates a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Verbose         bool
	Secret          string
	Server          ServerConfig
	AllowedCommands []string // whitelist prefixes; empty allows every command
	Advanced        AdvancedConfig
	Queue           QueueConfig
	Database        DatabaseConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Bind string
	Port int
	Name string // reported by /health
}

// AdvancedConfig holds delivery behavior switches.
type AdvancedConfig struct {
	QueueOfflineItems bool
	JoinDeliveryDelay time.Duration
}

// QueueConfig holds pending queue settings.
type QueueConfig struct {
	Path string
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("verbose", false)
	v.SetDefault("secret", DefaultSecret)
	v.SetDefault("bind", "")
	v.SetDefault("port", 8123)
	v.SetDefault("server_name", "storebridge")
	v.SetDefault("allowed_commands", []string{})
	v.SetDefault("advanced.queue_offline_items", true)
	v.SetDefault("advanced.join_delivery_delay", time.Second)
	v.SetDefault("queue.path", "pending.yml")
	v.SetDefault("database.path", "storebridge.db")
}

// BindEnv maps STOREBRIDGE_* environment variables onto config keys, so
// advanced.queue_offline_items reads STOREBRIDGE_ADVANCED_QUEUE_OFFLINE_ITEMS.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("STOREBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the global Viper and returns a Config struct.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Verbose: v.GetBool("verbose"),
		Secret:  v.GetString("secret"),
		Server: ServerConfig{
			Bind: v.GetString("bind"),
			Port: v.GetInt("port"),
			Name: v.GetString("server_name"),
		},
		AllowedCommands: v.GetStringSlice("allowed_commands"),
		Advanced: AdvancedConfig{
			QueueOfflineItems: v.GetBool("advanced.queue_offline_items"),
			JoinDeliveryDelay: v.GetDuration("advanced.join_delivery_delay"),
		},
		Queue: QueueConfig{
			Path: v.GetString("queue.path"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
	}

	// Apply defaults
	if cfg.Secret == "" {
		cfg.Secret = DefaultSecret
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8123
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "storebridge"
	}
	if cfg.Queue.Path == "" {
		cfg.Queue.Path = "pending.yml"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "storebridge.db"
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Server.Port)
	}
	if cfg.Advanced.JoinDeliveryDelay < 0 {
		return nil, fmt.Errorf("%w: advanced.join_delivery_delay must not be negative", ErrInvalidConfig)
	}

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

// UsesDefaultSecret reports whether the shipped secret is still configured.
func (c *Config) UsesDefaultSecret() bool {
	return c.Secret == DefaultSecret
}

// Policy is the part of the configuration a delivery request runs under.
// Values are never mutated after construction.
type Policy struct {
	Secret            string
	Whitelist         *commands.Whitelist
	QueueOfflineItems bool
}

// Policy returns the request-time policy for this configuration.
func (c *Config) Policy() Policy {
	return Policy{
		Secret:            c.Secret,
		Whitelist:         commands.NewWhitelist(c.AllowedCommands),
		QueueOfflineItems: c.Advanced.QueueOfflineItems,
	}
}
