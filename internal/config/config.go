// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/entitled/internal/buildinfo"
	"github.com/autobrr/entitled/internal/database"
	"github.com/autobrr/entitled/internal/domain"
	"github.com/autobrr/entitled/internal/pkg/debounce"
)

const (
	configFilename = "config.toml"
	envPrefix      = "ENTITLED__"

	// editors often emit several events for one save
	reloadDelay = 250 * time.Millisecond
)

var configTemplate = `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost"
host = "{{ .host }}"

# Port
# Default: 7480
port = {{ .port }}

# API token
# Required in the X-API-Token header when set
# Optional
#apiToken = ""

# CORS allowed origins
# Optional
#corsAllowedOrigins = ["https://app.example.com"]

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/entitled.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Database file path
# Default: entitled.db next to this file
#databasePath = ""

# Single device policy
# Activating a license on a new device revokes and blacklists the
# account's other devices. Reloaded without restart.
# Default: false
singleDevicePolicy = false

# Risk policy
# Expression evaluated before an activation slot is consumed.
# Variables: userId, ip, planType, trustScore, activeDevices, isNew
# Empty allows every activation. Reloaded without restart.
#riskPolicy = "trustScore >= 20"

# Ledger proof-of-work difficulty (leading zero hex digits)
# Changing it invalidates existing proofs on verify
# Default: 2
#ledgerDifficulty = 2

# Maximum proof-of-work iterations before a seal fails
# Default: 5000000
#ledgerMaxIterations = 5000000

# Metrics
# Default: false
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9074
#metricsBasicAuthUsers = "user:password"
`

// AppConfig owns the loaded configuration and reapplies the reloadable parts
// when the file changes.
type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string

	mu        sync.RWMutex
	listeners []func(*domain.Config)
	logFile   *lumberjack.Logger
	reloads   *debounce.Debouncer
}

// New loads configuration from configDirOrPath, which may be a directory or a
// .toml file. A default file is written when none exists.
func New(configDirOrPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	c.configPath = resolveConfigPath(configDirOrPath)
	c.defaults()

	if err := c.ensureConfigFile(); err != nil {
		return nil, err
	}

	c.viper.SetConfigFile(c.configPath)
	c.viper.SetConfigType("toml")
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", c.configPath, err)
	}

	c.bindEnv()

	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	c.Config = cfg

	return c, nil
}

func resolveConfigPath(configDirOrPath string) string {
	p := strings.TrimSpace(configDirOrPath)
	if p == "" {
		return filepath.Join(getDefaultConfigDir(), configFilename)
	}
	if strings.EqualFold(filepath.Ext(p), ".toml") {
		return p
	}
	return filepath.Join(p, configFilename)
}

// getDefaultConfigDir follows XDG; containers mount /config directly.
func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg == "/config" {
		return xdg
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "entitled")
}

// defaultValues lists every key in its camelCase form. viper lowercases keys
// internally, so env names are derived from this table.
var defaultValues = []struct {
	key   string
	value any
}{
	{"host", "localhost"},
	{"port", 7480},
	{"baseUrl", "/"},
	{"apiToken", ""},
	{"corsAllowedOrigins", []string{}},
	{"logLevel", "INFO"},
	{"logPath", ""},
	{"logMaxSize", 50},
	{"logMaxBackups", 3},
	{"dataDir", ""},
	{"databasePath", ""},
	{"metricsEnabled", false},
	{"metricsHost", "127.0.0.1"},
	{"metricsPort", 9074},
	{"metricsBasicAuthUsers", ""},
	{"singleDevicePolicy", false},
	{"riskPolicy", ""},
	{"ledgerDifficulty", domain.DefaultLedgerDifficulty},
	{"ledgerMaxIterations", domain.DefaultLedgerMaxIterations},
	{"retryAttempts", domain.DefaultRetryAttempts},
	{"retryDelayMs", domain.DefaultRetryDelayMs},
	{"issueMaxAttempts", domain.DefaultIssueMaxAttempts},
	{"licenseCodeGroups", domain.DefaultLicenseCodeGroups},
}

func (c *AppConfig) defaults() {
	for _, d := range defaultValues {
		c.viper.SetDefault(d.key, d.value)
	}
}

// bindEnv maps every key to ENTITLED__UPPER_SNAKE, e.g. databasePath to
// ENTITLED__DATABASE_PATH.
func (c *AppConfig) bindEnv() {
	for _, d := range defaultValues {
		_ = c.viper.BindEnv(d.key, envName(d.key))
	}
}

func envName(key string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func (c *AppConfig) load() (*domain.Config, error) {
	cfg := &domain.Config{}
	if err := c.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Version = buildinfo.Version

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Dir(c.configPath)
	}
	if p := strings.TrimSpace(cfg.DatabasePath); p != "" && !filepath.IsAbs(p) {
		cfg.DatabasePath = filepath.Join(filepath.Dir(c.configPath), p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", c.configPath, err)
	}
	return cfg, nil
}

func (c *AppConfig) ensureConfigFile() error {
	if _, err := os.Stat(c.configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config %s: %w", c.configPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	host := "localhost"
	if isRunningInContainer() {
		host = "0.0.0.0"
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{
		"host":     host,
		"port":     7480,
		"logLevel": "INFO",
	}); err != nil {
		return fmt.Errorf("failed to render config template: %w", err)
	}

	if err := os.WriteFile(c.configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", c.configPath, err)
	}
	log.Info().Str("path", c.configPath).Msg("Created default config")
	return nil
}

func isRunningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

func (c *AppConfig) GetDatabasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return database.ResolvePath(c.Config)
}

// Current returns the active configuration. It is replaced, never mutated,
// on reload.
func (c *AppConfig) Current() *domain.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Config
}

// OnReload registers fn to run with the new configuration after every
// successful reload.
func (c *AppConfig) OnReload(fn func(*domain.Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Watch reloads the file on change. Invalid edits are logged and ignored.
func (c *AppConfig) Watch() {
	c.mu.Lock()
	c.reloads = debounce.New(reloadDelay)
	c.mu.Unlock()

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log.Debug().Str("file", e.Name).Msg("config file changed")
		c.reloads.Do(func() {
			if err := c.reload(); err != nil {
				log.Error().Err(err).Msg("ignoring invalid config change")
				return
			}
			log.Info().Str("file", e.Name).Msg("config reloaded")
		})
	})
	c.viper.WatchConfig()
}

func (c *AppConfig) reload() error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.Config = cfg
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.mu.Unlock()

	setLogLevel(cfg.LogLevel)
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// InitLogger configures the global zerolog logger: console output on a
// terminal, JSON otherwise, plus a rotated file when logPath is set.
func (c *AppConfig) InitLogger() {
	cfg := c.Current()

	var out io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
	}

	if p := strings.TrimSpace(cfg.LogPath); p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(c.configPath), p)
		}
		c.logFile = &lumberjack.Logger{
			Filename:   p,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
		}
		out = zerolog.MultiLevelWriter(out, c.logFile)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	setLogLevel(cfg.LogLevel)
}

// Close stops the watcher's pending reload and flushes the rotated log file,
// if any.
func (c *AppConfig) Close() error {
	c.mu.RLock()
	reloads := c.reloads
	c.mu.RUnlock()
	if reloads != nil {
		reloads.Stop()
	}

	if c.logFile != nil {
		return c.logFile.Close()
	}
	return nil
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if zerolog.GlobalLevel() != lvl {
		zerolog.SetGlobalLevel(lvl)
		log.Info().Str("level", lvl.String()).Msg("log level set")
	}
}
