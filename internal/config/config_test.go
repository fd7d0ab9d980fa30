package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fullConfig(excelPath string) string {
	return `excel:
  path: ` + excelPath + `
  backup:
    enabled: true
    keep_days: 7
  columns:
    mail: Mail
    status: Status
  target_columns:
    - status
imap:
  host: imap.example.com
  port: 993
  username: bot@example.com
  password: secret
  folder: INBOX
analyzer:
  base_url: http://localhost:1234
  api_key: test-key
  timeout: 30
  model: local-model
logging:
  level: info
  max_size_mb: 1
  backup_count: 5
user:
  name: dolwer
`
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	excelPath := filepath.Join(dir, "contacts.xlsx")
	require.NoError(t, os.WriteFile(excelPath, []byte("stub"), 0o644))

	path := writeConfig(t, dir, fullConfig(excelPath))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, excelPath, cfg.Excel.Path)
	assert.Equal(t, "imap.example.com", cfg.IMAP.Host)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.Equal(t, "http://localhost:1234", cfg.Analyzer.BaseURL)
	assert.Equal(t, "local-model", cfg.Analyzer.Model)
	assert.Equal(t, map[string]string{"mail": "Mail", "status": "Status"}, cfg.Excel.Columns)
	assert.Equal(t, []string{"status"}, cfg.Excel.TargetColumns)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadMissingSectionsNamed(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `excel:
  path: /tmp/contacts.xlsx
logging:
  level: info
user:
  name: dolwer
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required config sections")
	assert.Contains(t, err.Error(), "imap")
	assert.Contains(t, err.Error(), "analyzer")
}

func TestLoadMissingSpreadsheet(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, fullConfig(filepath.Join(dir, "gone.xlsx")))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "excel file not found")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	excelPath := filepath.Join(dir, "contacts.xlsx")
	require.NoError(t, os.WriteFile(excelPath, []byte("stub"), 0o644))
	overridePath := filepath.Join(dir, "override.xlsx")
	require.NoError(t, os.WriteFile(overridePath, []byte("stub"), 0o644))

	t.Setenv("IMAP_USERNAME", "env@example.com")
	t.Setenv("IMAP_PASSWORD", "env-secret")
	t.Setenv("EXCEL_FILE_PATH", overridePath)
	t.Setenv("ANALYZER_HOST", "analyzer.local")
	t.Setenv("ANALYZER_PORT", "9999")
	t.Setenv("ANALYZER_MODEL", "bigger-model")

	path := writeConfig(t, dir, fullConfig(excelPath))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env@example.com", cfg.IMAP.Username)
	assert.Equal(t, "env-secret", cfg.IMAP.Password)
	assert.Equal(t, overridePath, cfg.Excel.Path)
	assert.Equal(t, "http://analyzer.local:9999", cfg.Analyzer.BaseURL)
	assert.Equal(t, "bigger-model", cfg.Analyzer.Model)
}
