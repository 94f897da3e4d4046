package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/karloscodes/scopedb/database"
)

// Environment constants.
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config provides common configuration for scopedb applications.
// Apps can embed this struct and add their own fields.
type Config struct {
	// AppName is the application name, used for env var prefix and database filename.
	AppName string `mapstructure:"appname"`

	// Environment: development, production, or test.
	Environment string `mapstructure:"environment"`

	Port  string `mapstructure:"port"`
	Debug bool   `mapstructure:"debug"`

	LogLevel       string `mapstructure:"loglevel"`
	LogsDirectory  string `mapstructure:"logsdirectory"`
	LogsMaxSizeMB  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeDays int    `mapstructure:"logsmaxageindays"`

	// DatabaseDriver selects the GORM driver: sqlite or postgres.
	DatabaseDriver string `mapstructure:"databasedriver"`

	// DatabaseURL is the postgres connection string. For sqlite the file
	// path is derived from DataDirectory and DatabaseFilename instead.
	DatabaseURL      string `mapstructure:"databaseurl"`
	DataDirectory    string `mapstructure:"datadirectory"`
	DatabaseFilename string `mapstructure:"databasefilename"`
	DatabasePath     string `mapstructure:"-"`
	MaxOpenConns     int    `mapstructure:"databasemaxopenconns"`
	MaxIdleConns     int    `mapstructure:"databasemaxidleconns"`

	// Write retry policy for session commits.
	WriteMaxRetries  int `mapstructure:"writemaxretries"`
	WriteBaseDelayMS int `mapstructure:"writebasedelayms"`
	WriteMaxDelayMS  int `mapstructure:"writemaxdelayms"`

	// CommitOnSuccess commits the request's session pool when the handler
	// succeeds. When false, handlers commit explicitly.
	CommitOnSuccess bool `mapstructure:"commitonsuccess"`

	envPrefix string
}

// Load creates a new Config for the given app name.
// It reads from environment variables prefixed with the uppercase app name.
// Example: Load("ledger") reads LEDGER_ENV, LEDGER_PORT, etc.
func Load(appName string) (*Config, error) {
	v := viper.New()

	appName = strings.ToLower(strings.TrimSpace(appName))
	if appName == "" {
		appName = "app"
	}
	prefix := strings.ToUpper(appName)

	// .env file is optional
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	setDefaults(v, appName)

	v.SetEnvPrefix(prefix)
	bindEnvVars(v, prefix)

	cfg := &Config{envPrefix: prefix}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.DatabaseDriver = strings.ToLower(cfg.DatabaseDriver)
	if cfg.DatabaseDriver == DriverSQLite {
		cfg.DatabasePath = cfg.resolveDatabasePath()
	}

	cfg.ensureDirectories()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, appName string) {
	v.SetDefault("appname", appName)
	v.SetDefault("environment", Production)
	v.SetDefault("port", "8080")
	v.SetDefault("debug", false)

	v.SetDefault("loglevel", "error")
	v.SetDefault("logsdirectory", "storage/logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)

	v.SetDefault("databasedriver", DriverSQLite)
	v.SetDefault("datadirectory", "storage")
	v.SetDefault("databasefilename", appName+".db")
	v.SetDefault("databasemaxopenconns", 0)
	v.SetDefault("databasemaxidleconns", 0)

	v.SetDefault("writemaxretries", 5)
	v.SetDefault("writebasedelayms", 100)
	v.SetDefault("writemaxdelayms", 5000)
	v.SetDefault("commitonsuccess", true)
}

func bindEnvVars(v *viper.Viper, prefix string) {
	for key, env := range map[string]string{
		"environment":      "_ENV",
		"port":             "_PORT",
		"debug":            "_DEBUG",
		"loglevel":         "_LOG_LEVEL",
		"logsdirectory":    "_LOGS_DIR",
		"datadirectory":    "_DATA_DIR",
		"databasedriver":   "_DB_DRIVER",
		"databaseurl":      "_DATABASE_URL",
		"databasefilename": "_DB_FILENAME",
		"writemaxretries":  "_WRITE_MAX_RETRIES",
		"commitonsuccess":  "_COMMIT_ON_SUCCESS",
	} {
		_ = v.BindEnv(key, prefix+env)
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.LogLevel == "" || c.LogLevel == "error" {
		if c.IsDevelopment() || c.IsTest() {
			c.LogLevel = "info"
		}
	}

	switch c.Environment {
	case Development, Production, Test:
	default:
		problems = append(problems, fmt.Sprintf("invalid %s_ENV value %q", c.envPrefix, c.Environment))
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, fmt.Sprintf("%s_DATABASE_URL is required for postgres", c.envPrefix))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid %s_DB_DRIVER value %q", c.envPrefix, c.DatabaseDriver))
	}

	if c.WriteMaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("%s_WRITE_MAX_RETRIES must be at least 1", c.envPrefix))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) resolveDatabasePath() string {
	filename := c.DatabaseFilename
	if filename == "" {
		filename = c.AppName + ".db"
	}

	// app.db becomes app.development.db, app.test.db, ...
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	if ext == "" {
		ext = ".db"
	}
	filename = fmt.Sprintf("%s.%s%s", base, c.Environment, ext)

	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(c.DataDirectory, filename)
}

func (c *Config) ensureDirectories() {
	dirs := []string{c.LogsDirectory}
	if c.DatabaseDriver == DriverSQLite {
		dirs = append(dirs, c.DataDirectory)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("config: failed to create directory %q: %v", dir, err)
		}
	}
}

func (c *Config) IsDevelopment() bool { return c.Environment == Development }
func (c *Config) IsProduction() bool  { return c.Environment == Production }
func (c *Config) IsTest() bool        { return c.Environment == Test }

func (c *Config) GetPort() string { return c.Port }

// LogConfigProvider implementation.

func (c *Config) GetLogLevel() string     { return c.LogLevel }
func (c *Config) GetLogDirectory() string { return c.LogsDirectory }
func (c *Config) GetLogMaxSizeMB() int    { return c.LogsMaxSizeMB }
func (c *Config) GetLogMaxBackups() int   { return c.LogsMaxBackups }
func (c *Config) GetLogMaxAgeDays() int   { return c.LogsMaxAgeDays }
func (c *Config) GetAppName() string      { return c.AppName }

// DatabaseDSN returns the connection string for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

func (c *Config) GetMaxOpenConns() int {
	if c.MaxOpenConns > 0 {
		return c.MaxOpenConns
	}
	if c.DatabaseDriver == DriverPostgres {
		return 25
	}
	if c.IsProduction() {
		return 10
	}
	return 1
}

func (c *Config) GetMaxIdleConns() int {
	if c.MaxIdleConns > 0 {
		return c.MaxIdleConns
	}
	if c.DatabaseDriver == DriverPostgres || c.IsProduction() {
		return 5
	}
	return 1
}

// WriteConfig returns the retry policy used when committing sessions.
func (c *Config) WriteConfig() database.TransactionConfig {
	w := database.DefaultTransactionConfig()
	if c.WriteMaxRetries > 0 {
		w.MaxRetries = c.WriteMaxRetries
	}
	if c.WriteBaseDelayMS > 0 {
		w.BaseDelay = time.Duration(c.WriteBaseDelayMS) * time.Millisecond
	}
	if c.WriteMaxDelayMS > 0 {
		w.MaxDelay = time.Duration(c.WriteMaxDelayMS) * time.Millisecond
	}
	return w
}

// DatabaseConfig builds the database.Config for the configured driver.
func (c *Config) DatabaseConfig() *database.Config {
	dbCfg := database.DefaultConfig(c.DatabaseDSN())
	dbCfg.MaxOpenConns = c.GetMaxOpenConns()
	dbCfg.MaxIdleConns = c.GetMaxIdleConns()
	dbCfg.Write = c.WriteConfig()
	return dbCfg
}

// ShouldCommitOnSuccess reports whether request pools are committed
// automatically.
func (c *Config) ShouldCommitOnSuccess() bool { return c.CommitOnSuccess }
