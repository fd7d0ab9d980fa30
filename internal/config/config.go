// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// BackupConfig controls dated spreadsheet backups.
type BackupConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	KeepDays int  `mapstructure:"keep_days"`
}

// ExcelConfig describes the tracked spreadsheet: where it lives and
// how logical field names map to physical column headers.
type ExcelConfig struct {
	Path string `mapstructure:"path"`

	Backup BackupConfig `mapstructure:"backup"`

	// Columns maps logical field names (e.g. "mail", "status") to the
	// column headers used in the file. The "mail" entry is the row key.
	Columns map[string]string `mapstructure:"columns"`

	// TargetColumns lists the logical fields that analysis results are
	// allowed to overwrite.
	TargetColumns []string `mapstructure:"target_columns"`
}

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Folder is where replies are searched for.
	Folder string `mapstructure:"folder"`
}

// AnalyzerConfig holds the settings for the local analysis service.
type AnalyzerConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutSec int    `mapstructure:"timeout"`
	Model      string `mapstructure:"model"`
}

// LoggingConfig holds log verbosity and file rotation settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	BackupCount int    `mapstructure:"backup_count"`
}

// UserConfig identifies who the run is attributed to in the log.
type UserConfig struct {
	Name string `mapstructure:"name"`
}

// Config is the top-level application configuration, loaded once at
// startup and read-only afterwards.
type Config struct {
	Excel    ExcelConfig    `mapstructure:"excel"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	User     UserConfig     `mapstructure:"user"`
}

// requiredSections are the top-level groups a config file must carry.
var requiredSections = []string{"excel", "imap", "analyzer", "logging", "user"}

// Load reads the YAML file at path using Viper, verifies the required
// sections are present, applies environment overrides, and checks that
// the configured spreadsheet exists. Any failure here is fatal to the
// run.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("analyzer.timeout", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 1)
	v.SetDefault("logging.backup_count", 5)
	v.SetDefault("excel.backup.enabled", true)
	v.SetDefault("excel.backup.keep_days", 7)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	// InConfig consults only the file, not defaults, so a section that
	// merely has defaulted keys still counts as missing.
	var missing []string
	for _, section := range requiredSections {
		if !v.InConfig(section) {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf(
			"missing required config sections: %s",
			strings.Join(missing, ", "),
		)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.Excel.Path == "" {
		return nil, fmt.Errorf("excel.path is not set")
	}
	if _, err := os.Stat(cfg.Excel.Path); err != nil {
		return nil, fmt.Errorf("excel file not found: %s", cfg.Excel.Path)
	}

	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file for
// credentials, the spreadsheet path, and the analyzer endpoint.
func applyEnvOverrides(cfg *Config) {
	if s := os.Getenv("IMAP_USERNAME"); s != "" {
		cfg.IMAP.Username = s
	}
	if s := os.Getenv("IMAP_PASSWORD"); s != "" {
		cfg.IMAP.Password = s
	}
	if s := os.Getenv("EXCEL_FILE_PATH"); s != "" {
		cfg.Excel.Path = s
	}
	if s := os.Getenv("ANALYZER_MODEL"); s != "" {
		cfg.Analyzer.Model = s
	}

	host := os.Getenv("ANALYZER_HOST")
	port := os.Getenv("ANALYZER_PORT")
	if host != "" {
		if port == "" {
			port = "1234"
		}
		cfg.Analyzer.BaseURL = fmt.Sprintf("http://%s:%s", host, port)
	}
}
