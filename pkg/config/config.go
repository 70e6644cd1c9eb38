// Package config loads the device connection settings used by the client.
//
// Values are resolved from, lowest priority first: built-in defaults, an
// optional YAML file, M8LINK_* environment variables, and command-line
// flags that were explicitly set.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m8test/m8link/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDeviceIP       = "192.168.1.100"
	DefaultDebugPort      = 8080
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultSocketTimeout  = 30 * time.Second
	DefaultMaxRetries     = 5
	DefaultReconnectDelay = 3 * time.Second
)

// Environment variable names.
const (
	EnvConfig         = "M8LINK_CONFIG"
	EnvDeviceIP       = "M8LINK_DEVICE_IP"
	EnvDebugPort      = "M8LINK_DEBUG_PORT"
	EnvAdbForwarding  = "M8LINK_ADB_FORWARDING"
	EnvConnectTimeout = "M8LINK_CONNECT_TIMEOUT"
	EnvRequestTimeout = "M8LINK_REQUEST_TIMEOUT"
	EnvSocketTimeout  = "M8LINK_SOCKET_TIMEOUT"
	EnvMaxRetries     = "M8LINK_MAX_RETRIES"
	EnvReconnectDelay = "M8LINK_RECONNECT_DELAY"
	EnvLogLevel       = "M8LINK_LOG_LEVEL"
)

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*$`)

// Config holds the settings for one device connection
type Config struct {
	DeviceIP            string
	DebugPort           int
	EnableAdbForwarding bool

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	SocketTimeout  time.Duration

	MaxRetries     int
	ReconnectDelay time.Duration

	LogLevel slog.Level
}

// fileConfig mirrors Config for YAML overlays; nil fields are left untouched.
type fileConfig struct {
	DeviceIP            *string        `yaml:"device_ip"`
	DebugPort           *int           `yaml:"debug_port"`
	EnableAdbForwarding *bool          `yaml:"enable_adb_forwarding"`
	ConnectTimeout      *time.Duration `yaml:"connect_timeout"`
	RequestTimeout      *time.Duration `yaml:"request_timeout"`
	SocketTimeout       *time.Duration `yaml:"socket_timeout"`
	MaxRetries          *int           `yaml:"max_retries"`
	ReconnectDelay      *time.Duration `yaml:"reconnect_delay"`
	LogLevel            *string        `yaml:"log_level"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		DeviceIP:       DefaultDeviceIP,
		DebugPort:      DefaultDebugPort,
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		SocketTimeout:  DefaultSocketTimeout,
		MaxRetries:     DefaultMaxRetries,
		ReconnectDelay: DefaultReconnectDelay,
		LogLevel:       slog.LevelInfo,
	}
}

// LoadFile overlays the keys present in a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewConfigError("reading config file", err.Error())
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return errors.NewConfigError("parsing config file", err.Error())
	}

	if fc.DeviceIP != nil {
		c.DeviceIP = *fc.DeviceIP
	}
	if fc.DebugPort != nil {
		c.DebugPort = *fc.DebugPort
	}
	if fc.EnableAdbForwarding != nil {
		c.EnableAdbForwarding = *fc.EnableAdbForwarding
	}
	if fc.ConnectTimeout != nil {
		c.ConnectTimeout = *fc.ConnectTimeout
	}
	if fc.RequestTimeout != nil {
		c.RequestTimeout = *fc.RequestTimeout
	}
	if fc.SocketTimeout != nil {
		c.SocketTimeout = *fc.SocketTimeout
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.ReconnectDelay != nil {
		c.ReconnectDelay = *fc.ReconnectDelay
	}
	if fc.LogLevel != nil {
		c.LogLevel = getLogLevel(*fc.LogLevel)
	}
	return nil
}

// ApplyEnv overlays M8LINK_* environment variables onto c. Unparseable
// values are ignored with a warning.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDeviceIP); v != "" {
		c.DeviceIP = v
	}
	if v := os.Getenv(EnvDebugPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.DebugPort = port
		} else {
			warnEnv(EnvDebugPort, v, err)
		}
	}
	if v := os.Getenv(EnvAdbForwarding); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.EnableAdbForwarding = enabled
		} else {
			warnEnv(EnvAdbForwarding, v, err)
		}
	}
	envDuration(EnvConnectTimeout, &c.ConnectTimeout)
	envDuration(EnvRequestTimeout, &c.RequestTimeout)
	envDuration(EnvSocketTimeout, &c.SocketTimeout)
	envDuration(EnvReconnectDelay, &c.ReconnectDelay)
	if v := os.Getenv(EnvMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		} else {
			warnEnv(EnvMaxRetries, v, err)
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = getLogLevel(v)
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnEnv(key, v, err)
		return
	}
	*dst = d
}

func warnEnv(key, value string, err error) {
	slog.Warn("Ignoring invalid environment value",
		slog.String("key", key),
		slog.String("value", value),
		slog.String("error", err.Error()))
}

// Validate checks the address and timing settings before any network use.
func (c *Config) Validate() error {
	if !c.EnableAdbForwarding {
		ip := strings.TrimSpace(c.DeviceIP)
		if ip == "" {
			return errors.NewConfigError("device IP is required when ADB forwarding is disabled")
		}
		if net.ParseIP(ip) == nil && !hostnamePattern.MatchString(ip) {
			return errors.NewConfigError("invalid device address", ip)
		}
	}
	if c.DebugPort < 1 || c.DebugPort > 65535 {
		return errors.NewConfigError("debug port out of range", strconv.Itoa(c.DebugPort))
	}
	if c.ConnectTimeout <= 0 || c.RequestTimeout <= 0 || c.SocketTimeout <= 0 {
		return errors.NewConfigError("timeouts must be positive",
			fmt.Sprintf("connect=%s request=%s socket=%s", c.ConnectTimeout, c.RequestTimeout, c.SocketTimeout))
	}
	if c.MaxRetries < 0 {
		return errors.NewConfigError("max retries must not be negative", strconv.Itoa(c.MaxRetries))
	}
	if c.ReconnectDelay < 0 {
		return errors.NewConfigError("reconnect delay must not be negative", c.ReconnectDelay.String())
	}
	return nil
}

// Host returns host:port of the device, or localhost:port when the debug
// port is forwarded over ADB.
func (c *Config) Host() string {
	host := strings.TrimSpace(c.DeviceIP)
	if c.EnableAdbForwarding {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.DebugPort))
}

// HTTPURL builds the request/response address for path.
func (c *Config) HTTPURL(path string) string {
	return "http://" + c.Host() + path
}

// WebSocketURL builds the streaming address for path.
func (c *Config) WebSocketURL(path string) string {
	return "ws://" + c.Host() + path
}

// getLogLevel converts a level name to slog.Level, defaulting to info
func getLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Flags binds the config flags to a flag set. Only flags the user set
// override file and environment values.
type Flags struct {
	fs *pflag.FlagSet

	configFile          string
	deviceIP            string
	debugPort           int
	enableAdbForwarding bool
	connectTimeout      time.Duration
	requestTimeout      time.Duration
	socketTimeout       time.Duration
	maxRetries          int
	reconnectDelay      time.Duration
	logLevel            string
}

// RegisterFlags adds the config flags to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.configFile, "config", "", "path to a YAML config file (env "+EnvConfig+")")
	fs.StringVar(&f.deviceIP, "device-ip", DefaultDeviceIP, "device IP address")
	fs.IntVar(&f.debugPort, "debug-port", DefaultDebugPort, "device debug port")
	fs.BoolVar(&f.enableAdbForwarding, "adb-forwarding", false, "connect through localhost (adb forward of the debug port)")
	fs.DurationVar(&f.connectTimeout, "connect-timeout", DefaultConnectTimeout, "connection timeout")
	fs.DurationVar(&f.requestTimeout, "request-timeout", DefaultRequestTimeout, "request timeout")
	fs.DurationVar(&f.socketTimeout, "socket-timeout", DefaultSocketTimeout, "socket idle timeout")
	fs.IntVar(&f.maxRetries, "max-retries", DefaultMaxRetries, "reconnect attempts before giving up")
	fs.DurationVar(&f.reconnectDelay, "reconnect-delay", DefaultReconnectDelay, "delay between reconnect attempts")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return f
}

// Load resolves defaults, file, environment and set flags into a validated Config.
func (f *Flags) Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv(EnvConfig)
	if f.fs.Changed("config") {
		path = f.configFile
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()
	f.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *Flags) apply(cfg *Config) {
	if f.fs.Changed("device-ip") {
		cfg.DeviceIP = f.deviceIP
	}
	if f.fs.Changed("debug-port") {
		cfg.DebugPort = f.debugPort
	}
	if f.fs.Changed("adb-forwarding") {
		cfg.EnableAdbForwarding = f.enableAdbForwarding
	}
	if f.fs.Changed("connect-timeout") {
		cfg.ConnectTimeout = f.connectTimeout
	}
	if f.fs.Changed("request-timeout") {
		cfg.RequestTimeout = f.requestTimeout
	}
	if f.fs.Changed("socket-timeout") {
		cfg.SocketTimeout = f.socketTimeout
	}
	if f.fs.Changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if f.fs.Changed("reconnect-delay") {
		cfg.ReconnectDelay = f.reconnectDelay
	}
	if f.fs.Changed("log-level") {
		cfg.LogLevel = getLogLevel(f.logLevel)
	}
}

// ParseCfg parses args with a fresh flag set and loads the resulting Config.
func ParseCfg(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("m8link", pflag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, errors.NewConfigError("parsing flags", err.Error())
	}
	return f.Load()
}
