package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server" yaml:"server"`
	Cluster   ClusterConfig       `mapstructure:"cluster" yaml:"cluster"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox" yaml:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Languages map[string]Language `mapstructure:"languages" yaml:"languages"`
}

// ServerConfig holds inbound transport configuration
type ServerConfig struct {
	HTTPPort           int    `mapstructure:"http_port" yaml:"http_port"`
	MCPTransport       string `mapstructure:"mcp_transport" yaml:"mcp_transport"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// ClusterConfig holds the Kubernetes connection and pod placement settings
type ClusterConfig struct {
	Kubeconfig        string  `mapstructure:"kubeconfig" yaml:"kubeconfig"`
	Namespace         string  `mapstructure:"namespace" yaml:"namespace"`
	CreateNamespace   bool    `mapstructure:"create_namespace" yaml:"create_namespace"`
	PodNamePrefix     string  `mapstructure:"pod_name_prefix" yaml:"pod_name_prefix"`
	ContainerName     string  `mapstructure:"container_name" yaml:"container_name"`
	ActiveDeadlineSec int64   `mapstructure:"active_deadline_sec" yaml:"active_deadline_sec"`
	QPS               float32 `mapstructure:"qps" yaml:"qps"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	ReaperIntervalSec int     `mapstructure:"reaper_interval_sec" yaml:"reaper_interval_sec"`
	ReaperMaxAgeSec   int     `mapstructure:"reaper_max_age_sec" yaml:"reaper_max_age_sec"`
}

// SandboxConfig holds execution limits and polling policy
type SandboxConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"`
	MaxCodeLength   int    `mapstructure:"max_code_length" yaml:"max_code_length"`
	PollIntervalMs  int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	MaxWaitMs       int    `mapstructure:"max_wait_ms" yaml:"max_wait_ms"`
	LogTimeoutMs    int    `mapstructure:"log_timeout_ms" yaml:"log_timeout_ms"`
	DeleteTimeoutMs int    `mapstructure:"delete_timeout_ms" yaml:"delete_timeout_ms"`
	LogLimitBytes   int64  `mapstructure:"log_limit_bytes" yaml:"log_limit_bytes"`
	CPULimit        string `mapstructure:"cpu_limit" yaml:"cpu_limit"`
	MemoryLimit     string `mapstructure:"memory_limit" yaml:"memory_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// Language describes the image and inline-execution command for one language.
// The submitted code is appended to Command as a single argument.
type Language struct {
	Image   string   `mapstructure:"image" yaml:"image"`
	Command []string `mapstructure:"command" yaml:"command"`
	Aliases []string `mapstructure:"aliases" yaml:"aliases,omitempty"`
}

const envPrefix = "CODERUNNER"

// New loads the configuration from ./config.yaml or ./config/config.yaml
func New() (*Config, error) {
	return Load("")
}

// Load reads the configuration from path, or searches the default locations
// when path is empty. A missing file in the default locations is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 3000)
	v.SetDefault("server.mcp_transport", "none")
	v.SetDefault("server.shutdown_timeout_sec", 30)

	v.SetDefault("cluster.kubeconfig", "")
	v.SetDefault("cluster.namespace", "default")
	v.SetDefault("cluster.create_namespace", false)
	v.SetDefault("cluster.pod_name_prefix", "code-runner")
	v.SetDefault("cluster.container_name", "runner")
	v.SetDefault("cluster.active_deadline_sec", 60)
	v.SetDefault("cluster.qps", 20)
	v.SetDefault("cluster.burst", 40)
	v.SetDefault("cluster.reaper_interval_sec", 60)
	v.SetDefault("cluster.reaper_max_age_sec", 300)

	v.SetDefault("sandbox.backend", "kubernetes")
	v.SetDefault("sandbox.max_code_length", 1000)
	v.SetDefault("sandbox.poll_interval_ms", 500)
	v.SetDefault("sandbox.max_wait_ms", 10000)
	v.SetDefault("sandbox.log_timeout_ms", 5000)
	v.SetDefault("sandbox.delete_timeout_ms", 10000)
	v.SetDefault("sandbox.log_limit_bytes", 1<<20)
	v.SetDefault("sandbox.cpu_limit", "500m")
	v.SetDefault("sandbox.memory_limit", "128Mi")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("languages.python.image", "python:3.11")
	v.SetDefault("languages.python.command", []string{"python", "-c"})
	v.SetDefault("languages.node.image", "node:22")
	v.SetDefault("languages.node.command", []string{"node", "-e"})
	v.SetDefault("languages.shell.image", "alpine")
	v.SetDefault("languages.shell.command", []string{"sh", "-c"})
	v.SetDefault("languages.shell.aliases", []string{"sh"})
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	switch c.Server.MCPTransport {
	case "none", "stdio", "http":
	default:
		return fmt.Errorf("invalid server.mcp_transport: %s, must be 'none', 'stdio' or 'http'", c.Server.MCPTransport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if errs := validation.IsDNS1123Label(c.Cluster.Namespace); len(errs) > 0 {
		return fmt.Errorf("invalid cluster.namespace %q: %s", c.Cluster.Namespace, strings.Join(errs, "; "))
	}

	// Generated names append "-<13 digit millis>-<8 hex>" to the prefix.
	if errs := validation.IsDNS1123Label(c.Cluster.PodNamePrefix); len(errs) > 0 || len(c.Cluster.PodNamePrefix) > 40 {
		return fmt.Errorf("invalid cluster.pod_name_prefix %q: must be a DNS-1123 label of at most 40 characters", c.Cluster.PodNamePrefix)
	}

	if errs := validation.IsDNS1123Label(c.Cluster.ContainerName); len(errs) > 0 {
		return fmt.Errorf("invalid cluster.container_name %q", c.Cluster.ContainerName)
	}

	if c.Cluster.ActiveDeadlineSec < 0 {
		return fmt.Errorf("cluster.active_deadline_sec must not be negative, got: %d", c.Cluster.ActiveDeadlineSec)
	}

	if c.Cluster.ReaperIntervalSec < 0 || c.Cluster.ReaperMaxAgeSec < 0 {
		return errors.New("cluster.reaper_interval_sec and cluster.reaper_max_age_sec must not be negative")
	}

	switch c.Sandbox.Backend {
	case "kubernetes", "docker", "podman":
	default:
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.MaxCodeLength <= 0 {
		return fmt.Errorf("sandbox.max_code_length must be positive, got: %d", c.Sandbox.MaxCodeLength)
	}

	if c.Sandbox.PollIntervalMs <= 0 {
		return fmt.Errorf("sandbox.poll_interval_ms must be positive, got: %d", c.Sandbox.PollIntervalMs)
	}

	if c.Sandbox.MaxWaitMs < c.Sandbox.PollIntervalMs {
		return fmt.Errorf("sandbox.max_wait_ms must be at least sandbox.poll_interval_ms, got: %d", c.Sandbox.MaxWaitMs)
	}

	if c.Sandbox.LogTimeoutMs <= 0 || c.Sandbox.DeleteTimeoutMs <= 0 {
		return errors.New("sandbox.log_timeout_ms and sandbox.delete_timeout_ms must be positive")
	}

	// An in-flight request may still be waiting, reading logs and deleting.
	if run := c.MaxWait() + c.LogTimeout() + c.DeleteTimeout(); c.ShutdownTimeout() < run {
		return fmt.Errorf("server.shutdown_timeout_sec must cover max_wait + log_timeout + delete_timeout (%s), got: %ds",
			run, c.Server.ShutdownTimeoutSec)
	}

	if _, err := resource.ParseQuantity(c.Sandbox.CPULimit); err != nil {
		return fmt.Errorf("invalid sandbox.cpu_limit %q: %w", c.Sandbox.CPULimit, err)
	}

	if _, err := resource.ParseQuantity(c.Sandbox.MemoryLimit); err != nil {
		return fmt.Errorf("invalid sandbox.memory_limit %q: %w", c.Sandbox.MemoryLimit, err)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if len(c.Languages) == 0 {
		return errors.New("at least one language must be configured")
	}

	seen := make(map[string]string)
	for name, lang := range c.Languages {
		if lang.Image == "" {
			return fmt.Errorf("languages.%s.image must not be empty", name)
		}
		if len(lang.Command) == 0 {
			return fmt.Errorf("languages.%s.command must not be empty", name)
		}
		for _, key := range append([]string{name}, lang.Aliases...) {
			if owner, dup := seen[key]; dup {
				return fmt.Errorf("language name %q is used by both %s and %s", key, owner, name)
			}
			seen[key] = name
		}
	}

	return nil
}

// PollInterval returns the status polling interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sandbox.PollIntervalMs) * time.Millisecond
}

// MaxWait returns the polling budget measured from pod creation
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Sandbox.MaxWaitMs) * time.Millisecond
}

// LogTimeout returns the bound on a single log retrieval
func (c *Config) LogTimeout() time.Duration {
	return time.Duration(c.Sandbox.LogTimeoutMs) * time.Millisecond
}

// DeleteTimeout returns the bound on a single teardown call
func (c *Config) DeleteTimeout() time.Duration {
	return time.Duration(c.Sandbox.DeleteTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful HTTP shutdown bound
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}
