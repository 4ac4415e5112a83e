// Package config provides Viper-based configuration loading for the game runner.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. GAMERUNNER_LOGGING_LEVEL.
const EnvPrefix = "GAMERUNNER"

// Database drivers accepted in DatabaseConfig.Driver.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL, e.g. http://localhost:4318.
	// Empty disables export.
	Endpoint string `mapstructure:"endpoint"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name"`
	// SampleRatio is the fraction of traces sampled, 0 to 1.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// RunnerConfig tunes the session router.
type RunnerConfig struct {
	// QueueSize is the router task buffer.
	QueueSize int `mapstructure:"queue_size"`
	// OutboxSize is the per-connection outbound event buffer.
	OutboxSize int `mapstructure:"outbox_size"`
	// ResultTimeout bounds one result archive write.
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
	// StatsInterval is how often router stats are logged; 0 disables.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

// WebSocketConfig holds the WebSocket listener settings.
type WebSocketConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Path is the HTTP path upgraded to WebSocket.
	Path string `mapstructure:"path"`
	// HandshakeTimeout bounds the wait for the identify event.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	// MaxMessageBytes limits a single inbound frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
}

// Addr returns the "host:port" listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// TelnetConfig holds Telnet acceptor settings.
type TelnetConfig struct {
	// Host is the bind address for the Telnet listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the Telnet listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for Telnet connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for Telnet connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// GameServerConfig holds the gRPC stream service settings.
type GameServerConfig struct {
	// GRPCHost is the bind/connect address for the gRPC service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the gRPC service.
	GRPCPort int `mapstructure:"grpc_port"`
	// HandshakeTimeout bounds the wait for the identify message.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GameServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.GRPCHost, g.GRPCPort)
}

// DatabaseConfig selects and configures the result archive.
type DatabaseConfig struct {
	// Driver is "none", "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// GamesConfig locates the game catalog.
type GamesConfig struct {
	// Catalog is the YAML game catalog file.
	Catalog string `mapstructure:"catalog"`
	// ScriptRoot resolves relative Lua script paths.
	ScriptRoot string `mapstructure:"script_root"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Telnet     TelnetConfig     `mapstructure:"telnet"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Games      GamesConfig      `mapstructure:"games"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateLogging(c.Logging),
		validateTracing(c.Tracing),
		validateRunner(c.Runner),
		validateWebSocket(c.WebSocket),
		validateGameServer(c.GameServer),
		validateTelnet(c.Telnet),
		validateDatabase(c.Database),
		validateGames(c.Games),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joined(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateTracing(t TracingConfig) error {
	var errs []string
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be 0-1, got %g", t.SampleRatio))
	}
	if t.Endpoint != "" && t.ServiceName == "" {
		errs = append(errs, "tracing.service_name must not be empty when an endpoint is set")
	}
	return joined(errs)
}

func validateRunner(r RunnerConfig) error {
	var errs []string
	if r.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("runner.queue_size must be >= 1, got %d", r.QueueSize))
	}
	if r.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("runner.outbox_size must be >= 1, got %d", r.OutboxSize))
	}
	if r.ResultTimeout <= 0 {
		errs = append(errs, "runner.result_timeout must be positive")
	}
	if r.StatsInterval < 0 {
		errs = append(errs, "runner.stats_interval must not be negative")
	}
	return joined(errs)
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if !validPort(w.Port) {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with /, got %q", w.Path))
	}
	if w.HandshakeTimeout <= 0 {
		errs = append(errs, "websocket.handshake_timeout must be positive")
	}
	if w.PingInterval <= 0 || w.PongWait <= w.PingInterval {
		errs = append(errs, "websocket.pong_wait must exceed a positive websocket.ping_interval")
	}
	if w.WriteWait <= 0 {
		errs = append(errs, "websocket.write_wait must be positive")
	}
	if w.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_bytes must be >= 1, got %d", w.MaxMessageBytes))
	}
	return joined(errs)
}

func validateGameServer(g GameServerConfig) error {
	var errs []string
	if g.GRPCHost == "" {
		errs = append(errs, "gameserver.grpc_host must not be empty")
	}
	if !validPort(g.GRPCPort) {
		errs = append(errs, fmt.Sprintf("gameserver.grpc_port must be 1-65535, got %d", g.GRPCPort))
	}
	if g.HandshakeTimeout <= 0 {
		errs = append(errs, "gameserver.handshake_timeout must be positive")
	}
	return joined(errs)
}

func validateTelnet(t TelnetConfig) error {
	var errs []string
	if !validPort(t.Port) {
		errs = append(errs, fmt.Sprintf("telnet.port must be 1-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	return joined(errs)
}

func validateDatabase(d DatabaseConfig) error {
	switch d.Driver {
	case DriverNone:
		return nil
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("database.path must not be empty for the sqlite driver")
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be one of [none, postgres, sqlite], got %q", d.Driver)
	}

	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joined(errs)
}

func validateGames(g GamesConfig) error {
	if g.Catalog == "" {
		return fmt.Errorf("games.catalog must not be empty")
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "gamerunner")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("runner.queue_size", 256)
	v.SetDefault("runner.outbox_size", 64)
	v.SetDefault("runner.result_timeout", "5s")
	v.SetDefault("runner.stats_interval", "1m")

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8080)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_bytes", 64*1024)

	v.SetDefault("gameserver.grpc_host", "127.0.0.1")
	v.SetDefault("gameserver.grpc_port", 50051)
	v.SetDefault("gameserver.handshake_timeout", "10s")

	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 4000)
	v.SetDefault("telnet.read_timeout", "5m")
	v.SetDefault("telnet.write_timeout", "30s")

	v.SetDefault("database.driver", DriverNone)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gamerunner")
	v.SetDefault("database.password", "gamerunner")
	v.SetDefault("database.name", "gamerunner")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.path", "gamerunner.db")

	v.SetDefault("games.catalog", "content/games.yaml")
	v.SetDefault("games.script_root", "content/scripts")
}
