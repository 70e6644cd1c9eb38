package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m8test/m8link/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var knownEnv = []string{
	EnvConfig, EnvDeviceIP, EnvDebugPort, EnvAdbForwarding, EnvConnectTimeout,
	EnvRequestTimeout, EnvSocketTimeout, EnvMaxRetries, EnvReconnectDelay, EnvLogLevel,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range knownEnv {
		t.Setenv(k, "")
	}
}

func TestGetLogLevel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug lower", "debug", slog.LevelDebug},
		{"debug upper", "DEBUG", slog.LevelDebug},
		{"info lower", "info", slog.LevelInfo},
		{"warn lower", "warn", slog.LevelWarn},
		{"warning upper", "WARNING", slog.LevelWarn},
		{"error upper", "ERROR", slog.LevelError},
		{"invalid", "invalid", slog.LevelInfo},
		{"empty", "", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, getLogLevel(tc.input))
		})
	}
}

func TestParseCfg_TableDriven(t *testing.T) {
	type expectations struct {
		deviceIP       string
		debugPort      int
		forwarding     bool
		connectTimeout time.Duration
		maxRetries     int
		reconnectDelay time.Duration
		logLevel       slog.Level
	}

	defaults := expectations{
		deviceIP:       DefaultDeviceIP,
		debugPort:      DefaultDebugPort,
		connectTimeout: DefaultConnectTimeout,
		maxRetries:     DefaultMaxRetries,
		reconnectDelay: DefaultReconnectDelay,
		logLevel:       slog.LevelInfo,
	}

	cases := []struct {
		name   string
		setEnv map[string]string
		args   []string
		exp    expectations
	}{
		{
			name: "defaults without flags or env",
			exp:  defaults,
		},
		{
			name:   "env overrides defaults",
			setEnv: map[string]string{EnvDeviceIP: "10.0.0.5", EnvDebugPort: "9000", EnvMaxRetries: "2", EnvLogLevel: "debug"},
			exp: expectations{
				deviceIP:       "10.0.0.5",
				debugPort:      9000,
				connectTimeout: DefaultConnectTimeout,
				maxRetries:     2,
				reconnectDelay: DefaultReconnectDelay,
				logLevel:       slog.LevelDebug,
			},
		},
		{
			name:   "flags override env (priority)",
			setEnv: map[string]string{EnvDeviceIP: "10.0.0.5", EnvDebugPort: "9000"},
			args:   []string{"--device-ip=10.0.0.9", "--connect-timeout=2s", "--reconnect-delay=500ms", "--log-level=ERROR"},
			exp: expectations{
				deviceIP:       "10.0.0.9",
				debugPort:      9000,
				connectTimeout: 2 * time.Second,
				maxRetries:     DefaultMaxRetries,
				reconnectDelay: 500 * time.Millisecond,
				logLevel:       slog.LevelError,
			},
		},
		{
			name:   "invalid env values keep defaults",
			setEnv: map[string]string{EnvDebugPort: "eighty", EnvConnectTimeout: "soon", EnvAdbForwarding: "maybe"},
			exp:    defaults,
		},
		{
			name: "adb forwarding flag",
			args: []string{"--adb-forwarding", "--device-ip="},
			exp: expectations{
				deviceIP:       "",
				debugPort:      DefaultDebugPort,
				forwarding:     true,
				connectTimeout: DefaultConnectTimeout,
				maxRetries:     DefaultMaxRetries,
				reconnectDelay: DefaultReconnectDelay,
				logLevel:       slog.LevelInfo,
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range c.setEnv {
				t.Setenv(k, v)
			}

			cfg, err := ParseCfg(c.args)
			require.NoError(t, err)

			assert.Equal(t, c.exp.deviceIP, cfg.DeviceIP, "device ip")
			assert.Equal(t, c.exp.debugPort, cfg.DebugPort, "debug port")
			assert.Equal(t, c.exp.forwarding, cfg.EnableAdbForwarding, "forwarding")
			assert.Equal(t, c.exp.connectTimeout, cfg.ConnectTimeout, "connect timeout")
			assert.Equal(t, c.exp.maxRetries, cfg.MaxRetries, "max retries")
			assert.Equal(t, c.exp.reconnectDelay, cfg.ReconnectDelay, "reconnect delay")
			assert.Equal(t, c.exp.logLevel, cfg.LogLevel, "log level")
			assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
			assert.Equal(t, DefaultSocketTimeout, cfg.SocketTimeout)
		})
	}
}

func TestParseCfg_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "m8link.yaml")
	content := `device_ip: 192.168.0.42
debug_port: 8181
connect_timeout: 4s
reconnect_delay: 250ms
max_retries: 3
log_level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Run("file values apply", func(t *testing.T) {
		cfg, err := ParseCfg([]string{"--config", path})
		require.NoError(t, err)
		assert.Equal(t, "192.168.0.42", cfg.DeviceIP)
		assert.Equal(t, 8181, cfg.DebugPort)
		assert.Equal(t, 4*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
		assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout, "keys missing from the file keep defaults")
	})

	t.Run("env path and env override file", func(t *testing.T) {
		t.Setenv(EnvConfig, path)
		t.Setenv(EnvDebugPort, "9100")

		cfg, err := ParseCfg(nil)
		require.NoError(t, err)
		assert.Equal(t, "192.168.0.42", cfg.DeviceIP)
		assert.Equal(t, 9100, cfg.DebugPort)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ParseCfg([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("debug_port: [1, 2"), 0o644))

		_, err := ParseCfg([]string{"--config", bad})
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"hostname", func(c *Config) { c.DeviceIP = "phone.local" }, true},
		{"ipv6", func(c *Config) { c.DeviceIP = "fe80::1" }, true},
		{"empty ip", func(c *Config) { c.DeviceIP = "" }, false},
		{"empty ip with forwarding", func(c *Config) { c.DeviceIP = ""; c.EnableAdbForwarding = true }, true},
		{"url instead of ip", func(c *Config) { c.DeviceIP = "http://10.0.0.1" }, false},
		{"port zero", func(c *Config) { c.DebugPort = 0 }, false},
		{"port too large", func(c *Config) { c.DebugPort = 70000 }, false},
		{"zero connect timeout", func(c *Config) { c.ConnectTimeout = 0 }, false},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, false},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"negative delay", func(c *Config) { c.ReconnectDelay = -time.Second }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
		})
	}
}

func TestAddresses(t *testing.T) {
	cfg := Default()
	cfg.DeviceIP = "10.1.2.3"
	cfg.DebugPort = 8080

	assert.Equal(t, "http://10.1.2.3:8080/command/execute", cfg.HTTPURL("/command/execute"))
	assert.Equal(t, "ws://10.1.2.3:8080/console", cfg.WebSocketURL("/console"))

	cfg.EnableAdbForwarding = true
	assert.Equal(t, "ws://localhost:8080/console", cfg.WebSocketURL("/console"))

	cfg.EnableAdbForwarding = false
	cfg.DeviceIP = "fe80::1"
	assert.Equal(t, "http://[fe80::1]:8080/config/root", cfg.HTTPURL("/config/root"))
}
