package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ozzus/netcheck-agent/internal/checks"
	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Server    ServerConfig    `mapstructure:"server"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Health    HealthConfig    `mapstructure:"health"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Checks    ChecksConfig    `mapstructure:"checks"`
	Log       LogConfig       `mapstructure:"log"`
}

type AgentConfig struct {
	Name            string            `mapstructure:"name"`
	Token           string            `mapstructure:"token"`
	Version         string            `mapstructure:"version"`
	Metadata        map[string]string `mapstructure:"-"`
	CredentialsPath string            `mapstructure:"credentials_path"`
	AutoIssueToken  bool              `mapstructure:"auto_issue_token"`
}

type ServerConfig struct {
	URL string `mapstructure:"url"`
}

type ReconnectConfig struct {
	Delay       time.Duration `mapstructure:"delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ChecksConfig struct {
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	TCPTimeout     time.Duration `mapstructure:"tcp_timeout"`
	UDPTimeout     time.Duration `mapstructure:"udp_timeout"`
	DNSTimeout     time.Duration `mapstructure:"dns_timeout"`
	PingCount      int           `mapstructure:"ping_count"`
	PingPrivileged bool          `mapstructure:"ping_privileged"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load читает конфигурацию: defaults < файл < env < флаги.
func Load(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("local")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// metadata из env/флагов приходит строкой, cast разбирает JSON и k=v
	cfg.Agent.Metadata = v.GetStringMapString("agent.metadata")
	cfg.Kafka.Brokers = splitBrokers(cfg.Kafka.Brokers)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", logger.EnvLocal)

	// Agent defaults
	v.SetDefault("agent.name", "netcheck-agent-01")
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.version", "dev")
	v.SetDefault("agent.metadata", map[string]string{})
	v.SetDefault("agent.credentials_path", "./config/credentials.json")
	v.SetDefault("agent.auto_issue_token", false)

	// Coordinator defaults
	v.SetDefault("server.url", "ws://localhost:8080/ws")
	v.SetDefault("reconnect.delay", time.Second)
	v.SetDefault("reconnect.max_delay", 30*time.Second)
	v.SetDefault("reconnect.max_attempts", 0)
	v.SetDefault("heartbeat.interval", 30*time.Second)

	// Health server defaults
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.port", "8081")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "check-results")

	// Checks defaults
	d := checks.DefaultSettings()
	v.SetDefault("checks.http_timeout", d.HTTPTimeout)
	v.SetDefault("checks.ping_timeout", d.PingTimeout)
	v.SetDefault("checks.tcp_timeout", d.TCPTimeout)
	v.SetDefault("checks.udp_timeout", d.UDPTimeout)
	v.SetDefault("checks.dns_timeout", d.DNSTimeout)
	v.SetDefault("checks.ping_count", d.PingCount)
	v.SetDefault("checks.ping_privileged", d.PingPrivileged)

	// Log defaults
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", true)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file")
	fs.String("env", "", "environment: local, dev or prod")
	fs.String("server", "", "coordinator url")
	fs.String("token", "", "agent token")
	fs.String("name", "", "agent name")
	fs.StringToString("metadata", nil, "agent metadata as key=value pairs")
	fs.Duration("reconnect-delay", 0, "initial reconnect delay")
	fs.Duration("reconnect-max-delay", 0, "maximum reconnect delay")
	fs.Int("max-reconnect-attempts", 0, "reconnect attempts before giving up, 0 retries forever")
	fs.Duration("heartbeat-interval", 0, "heartbeat interval, 0 disables heartbeats")
	fs.String("credentials", "", "credential file path (.json, .yaml or .toml)")
	fs.Bool("auto-issue-token", false, "request a personal token after registration")
	fs.String("health-port", "", "health server port")
	fs.String("log-file", "", "also write logs to this file")
	return fs
}

var flagKeys = map[string]string{
	"env":                    "env",
	"server":                 "server.url",
	"token":                  "agent.token",
	"name":                   "agent.name",
	"metadata":               "agent.metadata",
	"reconnect-delay":        "reconnect.delay",
	"reconnect-max-delay":    "reconnect.max_delay",
	"max-reconnect-attempts": "reconnect.max_attempts",
	"heartbeat-interval":     "heartbeat.interval",
	"credentials":            "agent.credentials_path",
	"auto-issue-token":       "agent.auto_issue_token",
	"health-port":            "health.port",
	"log-file":               "log.file",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func splitBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// AgentOptionsParams возвращает сырые параметры сессии, до подстановки сохранённого токена.
func (c *Config) AgentOptionsParams() domain.AgentOptionsParams {
	return domain.AgentOptionsParams{
		ServerURL:              c.Server.URL,
		Token:                  c.Agent.Token,
		AgentName:              c.Agent.Name,
		ReconnectDelay:         c.Reconnect.Delay,
		ReconnectDelayMax:      c.Reconnect.MaxDelay,
		MaxReconnectAttempts:   c.Reconnect.MaxAttempts,
		HeartbeatInterval:      c.Heartbeat.Interval,
		Metadata:               c.Agent.Metadata,
		CredentialsPath:        c.Agent.CredentialsPath,
		AutoIssuePersonalToken: c.Agent.AutoIssueToken,
	}
}

func (c *Config) AgentOptions() (domain.AgentOptions, error) {
	return domain.NewAgentOptions(c.AgentOptionsParams())
}

func (c *Config) CheckDefaults() checks.Defaults {
	return checks.Defaults{
		PingTimeout:    c.Checks.PingTimeout,
		PingCount:      c.Checks.PingCount,
		PingPrivileged: c.Checks.PingPrivileged,
		DNSTimeout:     c.Checks.DNSTimeout,
		TCPTimeout:     c.Checks.TCPTimeout,
		UDPTimeout:     c.Checks.UDPTimeout,
		HTTPTimeout:    c.Checks.HTTPTimeout,
	}
}

func (c *Config) LogFile() logger.FileConfig {
	return logger.FileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
