package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrBadConfiguration is returned when required setup is missing or invalid.
// It is fatal at initialisation time.
var ErrBadConfiguration = errors.New("config: bad configuration")

// Config is the root configuration structure for the IoT Agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	ContextBroker ContextBrokerConfig `yaml:"context_broker"`

	// ProviderURL is the callback URL advertised to the Context Broker in registrations.
	ProviderURL string `yaml:"provider_url"`

	// DeviceRegistrationDuration is the ISO-8601 duration of new registrations (e.g. "P1M").
	DeviceRegistrationDuration string `yaml:"device_registration_duration"`

	// Service and Subservice are the process-wide tenant defaults used for updates.
	Service    string `yaml:"service"`
	Subservice string `yaml:"subservice"`

	// Types holds the per device type defaults, keyed by type name.
	Types map[string]TypeConfig `yaml:"types"`

	// SerializeDeviceOperations serialises register, unregister and update
	// calls that target the same device id.
	SerializeDeviceOperations bool `yaml:"serialize_device_operations"`

	Authentication AuthenticationConfig `yaml:"authentication"`
	DeviceRegistry DeviceRegistryConfig `yaml:"device_registry"`
	Database       DatabaseConfig       `yaml:"database"`
	MQTT           MQTTConfig           `yaml:"mqtt"`
	API            APIConfig            `yaml:"api"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ContextBrokerConfig locates the NGSI Context Broker.
type ContextBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Timeout is the HTTP request timeout in seconds. Zero disables it.
	Timeout int `yaml:"timeout"`
}

// TypeConfig contains the defaults applied to devices of one type.
type TypeConfig struct {
	Service    string            `yaml:"service"`
	Subservice string            `yaml:"subservice"`
	Lazy       []AttributeConfig `yaml:"lazy"`
	// Trust is the credential exchanged for an access token when authentication is enabled.
	Trust string `yaml:"trust"`
}

// AttributeConfig describes a lazy attribute.
type AttributeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// AuthenticationConfig controls how update requests are authenticated.
type AuthenticationConfig struct {
	Enabled bool `yaml:"enabled"`
	// Type selects the token provider: "keystone" or "jwt".
	Type string `yaml:"type"`

	// Keystone settings.
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Domain   string `yaml:"domain"`

	// JWT settings.
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"`
}

// DeviceRegistryConfig selects and locates the device registry backend.
type DeviceRegistryConfig struct {
	// Type is one of "memory", "sqlite" or "mongodb".
	Type string `yaml:"type"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   string `yaml:"db"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the southbound.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the northbound HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for measure history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IOTA_SECTION_KEY
// For example: IOTA_CB_HOST, IOTA_REGISTRY_TYPE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		ContextBroker: ContextBrokerConfig{
			Host:    "localhost",
			Port:    1026,
			Timeout: 30,
		},
		DeviceRegistrationDuration: "P1M",
		Service:                    "default",
		Subservice:                 "/",
		Types:                      map[string]TypeConfig{},
		Authentication: AuthenticationConfig{
			Type:     "keystone",
			Port:     5000,
			Domain:   "admin_domain",
			TokenTTL: 60,
		},
		DeviceRegistry: DeviceRegistryConfig{
			Type: "memory",
			Port: 27017,
		},
		Database: DatabaseConfig{
			Path:        "./data/iotagent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "iotagent-ngsi",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    4041,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Context Broker
	if v := os.Getenv("IOTA_CB_HOST"); v != "" {
		cfg.ContextBroker.Host = v
	}
	if v := os.Getenv("IOTA_CB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ContextBroker.Port = port
		}
	}
	if v := os.Getenv("IOTA_PROVIDER_URL"); v != "" {
		cfg.ProviderURL = v
	}
	if v := os.Getenv("IOTA_SERVICE"); v != "" {
		cfg.Service = v
	}
	if v := os.Getenv("IOTA_SUBSERVICE"); v != "" {
		cfg.Subservice = v
	}

	// Registry
	if v := os.Getenv("IOTA_REGISTRY_TYPE"); v != "" {
		cfg.DeviceRegistry.Type = v
	}
	if v := os.Getenv("IOTA_MONGO_HOST"); v != "" {
		cfg.DeviceRegistry.Host = v
	}
	if v := os.Getenv("IOTA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Authentication secrets
	if v := os.Getenv("IOTA_AUTH_PASSWORD"); v != "" {
		cfg.Authentication.Password = v
	}
	if v := os.Getenv("IOTA_AUTH_SECRET"); v != "" {
		cfg.Authentication.Secret = v
	}

	// MQTT
	if v := os.Getenv("IOTA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IOTA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IOTA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("IOTA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for missing or inconsistent settings.
// All problems are reported at once, wrapped in ErrBadConfiguration.
func (c *Config) Validate() error {
	var errs []string

	if c.ContextBroker.Host == "" {
		errs = append(errs, "context_broker.host is required")
	}
	if c.ContextBroker.Port < 1 || c.ContextBroker.Port > 65535 {
		errs = append(errs, "context_broker.port must be between 1 and 65535")
	}
	if c.ProviderURL == "" {
		errs = append(errs, "provider_url is required")
	}
	if c.DeviceRegistrationDuration == "" {
		errs = append(errs, "device_registration_duration is required")
	}

	switch c.DeviceRegistry.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite registry")
		}
	case "mongodb":
		if c.DeviceRegistry.Host == "" {
			errs = append(errs, "device_registry.host is required for the mongodb registry")
		}
	default:
		errs = append(errs, fmt.Sprintf("device_registry.type %q is not one of memory, sqlite, mongodb", c.DeviceRegistry.Type))
	}

	if c.Authentication.Enabled {
		switch c.Authentication.Type {
		case "keystone":
			if c.Authentication.Host == "" {
				errs = append(errs, "authentication.host is required for keystone")
			}
		case "jwt":
			if c.Authentication.Secret == "" {
				errs = append(errs, "authentication.secret is required for jwt (set IOTA_AUTH_SECRET)")
			}
		default:
			errs = append(errs, fmt.Sprintf("authentication.type %q is not one of keystone, jwt", c.Authentication.Type))
		}
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrBadConfiguration, strings.Join(errs, "; "))
	}

	return nil
}

// BrokerURL returns the base URL of the Context Broker.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("http://%s:%d", c.ContextBroker.Host, c.ContextBroker.Port)
}

// GetBrokerTimeout returns the Context Broker request timeout as a Duration.
func (c *Config) GetBrokerTimeout() time.Duration {
	return time.Duration(c.ContextBroker.Timeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
