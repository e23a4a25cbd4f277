// Package config loads and validates the loggate configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/loggate-io/loggate/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	Environment string                    `mapstructure:"environment" yaml:"environment"`
	Server      ServerConfig              `mapstructure:"server" yaml:"server"`
	Auth        AuthConfig                `mapstructure:"auth" yaml:"auth"`
	Logging     LoggingConfig             `mapstructure:"logging" yaml:"logging"`
	Docker      DockerConfig              `mapstructure:"docker" yaml:"docker"`
	CloudWatch  CloudWatchConfig          `mapstructure:"cloudwatch" yaml:"cloudwatch"`
	Services    map[string]*ServiceConfig `mapstructure:"services" yaml:"services"`

	// ServiceOrder preserves the declaration order of the services mapping.
	// Viper unmarshals maps without order, so it is recovered from a second
	// yaml pass in Load.
	ServiceOrder []string `mapstructure:"-" yaml:"-"`
}

// ServerConfig configures the gateway listener
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// AuthConfig configures the token verifier
type AuthConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Tokens         []TokenConfig `mapstructure:"tokens" yaml:"tokens"`
	SecretID       string        `mapstructure:"secret_id" yaml:"secret_id"`
}

// TokenConfig maps a bearer token to a principal
type TokenConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	Subject string `mapstructure:"subject" yaml:"subject"`
	Admin   bool   `mapstructure:"admin" yaml:"admin"`
}

// LoggingConfig configures the server-side logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DockerConfig configures the container log source
type DockerConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	CertPath    string `mapstructure:"cert_path" yaml:"cert_path"`
	TLSVerify   bool   `mapstructure:"tls_verify" yaml:"tls_verify"`
	HistoryTail int    `mapstructure:"history_tail" yaml:"history_tail"`
}

// CloudWatchConfig configures the aggregated log source
type CloudWatchConfig struct {
	Region          string        `mapstructure:"region" yaml:"region"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	QueryLimit      int           `mapstructure:"query_limit" yaml:"query_limit"`
	Lookback        time.Duration `mapstructure:"lookback" yaml:"lookback"`
	HistoryLookback time.Duration `mapstructure:"history_lookback" yaml:"history_lookback"`
}

// ServiceConfig binds a logical service name to its backing log streams
type ServiceConfig struct {
	Container string `mapstructure:"container" yaml:"container"`
	LogGroup  string `mapstructure:"log_group" yaml:"log_group"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Environment: EnvLocal,
		Services:    make(map[string]*ServiceConfig),
	}

	cfg.Server.Host = DefaultHost
	cfg.Server.Port = DefaultPort

	cfg.Logging.Level = DefaultLogLevel
	cfg.Logging.Format = DefaultLogFormat

	cfg.Docker.HistoryTail = DefaultHistoryTail

	cfg.CloudWatch.PollInterval = DefaultPollInterval
	cfg.CloudWatch.QueryLimit = DefaultQueryLimit
	cfg.CloudWatch.Lookback = DefaultLookback
	cfg.CloudWatch.HistoryLookback = DefaultHistoryLookback

	return cfg
}

// Load loads the configuration from the given file. An empty path falls back
// to loggate.yaml in the working directory, which is allowed to be absent.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = "loggate.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}

		return nil, errors.Wrap(errors.ErrCodeConfig, "failed to read config file", err).
			WithDetail("path", path)
	}

	order, err := parseServiceOrder(data)
	if err != nil {
		return nil, errors.ParseError(path, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvOverrides(v)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.ParseError(path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ParseError(path, err)
	}

	cfg.ServiceOrder = order
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindEnvOverrides registers the keys that may be overridden from the
// environment, e.g. LOGGATE_SERVER_PORT or LOGGATE_CLOUDWATCH_REGION.
func bindEnvOverrides(v *viper.Viper) {
	for _, key := range []string{
		"environment",
		"server.host",
		"server.port",
		"logging.level",
		"logging.format",
		"docker.host",
		"cloudwatch.region",
		"cloudwatch.endpoint",
		"auth.secret_id",
	} {
		_ = v.BindEnv(key)
	}
}

// ApplyDefaults fills unset fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvLocal
	}

	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}

	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Docker.HistoryTail == 0 {
		c.Docker.HistoryTail = DefaultHistoryTail
	}

	if c.CloudWatch.PollInterval == 0 {
		c.CloudWatch.PollInterval = DefaultPollInterval
	}

	if c.CloudWatch.QueryLimit == 0 {
		c.CloudWatch.QueryLimit = DefaultQueryLimit
	}

	if c.CloudWatch.Lookback == 0 {
		c.CloudWatch.Lookback = DefaultLookback
	}

	if c.CloudWatch.HistoryLookback == 0 {
		c.CloudWatch.HistoryLookback = DefaultHistoryLookback
	}

	if c.Services == nil {
		c.Services = make(map[string]*ServiceConfig)
	}
}

// parseServiceOrder extracts the declaration order of the services mapping.
// Keys are lowercased to match viper's case folding.
func parseServiceOrder(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	order := []string{}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return order, nil
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return order, nil
	}

	for i := 0; i < len(doc.Content); i += 2 {
		key := doc.Content[i]
		value := doc.Content[i+1]

		if key.Value != "services" || value.Kind != yaml.MappingNode {
			continue
		}

		for j := 0; j < len(value.Content); j += 2 {
			order = append(order, strings.ToLower(value.Content[j].Value))
		}
	}

	return order, nil
}

// OrderedServices returns service names in declaration order. Configs built
// in code without a ServiceOrder fall back to sorted names so iteration stays
// deterministic.
func (c *Config) OrderedServices() []string {
	if len(c.ServiceOrder) > 0 {
		return c.ServiceOrder
	}

	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New(errors.ErrCodeConfig, fmt.Sprintf("server port %d out of range", c.Server.Port))
	}

	if c.CloudWatch.PollInterval <= 0 {
		return errors.New(errors.ErrCodeConfig, "cloudwatch poll_interval must be positive")
	}

	if c.CloudWatch.QueryLimit <= 0 {
		return errors.New(errors.ErrCodeConfig, "cloudwatch query_limit must be positive")
	}

	if c.Docker.HistoryTail <= 0 {
		return errors.New(errors.ErrCodeConfig, "docker history_tail must be positive")
	}

	for name, svc := range c.Services {
		if err := c.validateService(name, svc); err != nil {
			return err
		}
	}

	return nil
}

// ValidateServe applies the stricter checks the serve command needs on top
// of Validate: a source to read from and a way to authenticate clients.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if len(c.Services) == 0 {
		return errors.New(errors.ErrCodeConfig, "no services configured")
	}

	if len(c.Auth.Tokens) == 0 && c.Auth.SecretID == "" {
		return errors.New(errors.ErrCodeConfig, "auth requires tokens or a secret_id")
	}

	return nil
}

// validateService checks that a service is bound to a stream for the active
// environment.
func (c *Config) validateService(name string, svc *ServiceConfig) error {
	if svc == nil {
		return errors.New(errors.ErrCodeConfig, fmt.Sprintf("service %s has no configuration", name))
	}

	if c.Environment == EnvLocal {
		if svc.Container == "" {
			return errors.New(errors.ErrCodeConfig, fmt.Sprintf("service %s requires a container in the %s environment", name, EnvLocal))
		}
		return nil
	}

	if svc.LogGroup == "" {
		return errors.New(errors.ErrCodeConfig, fmt.Sprintf("service %s requires a log_group in the %s environment", name, c.Environment))
	}

	return nil
}
