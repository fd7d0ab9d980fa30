// Package sheet manages the tracked spreadsheet: structure validation,
// load into memory, row updates keyed by email address, save, and
// dated backups.
package sheet

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dolwer/mailsheet/internal/config"
	"github.com/dolwer/mailsheet/internal/stats"
)

// MissingColumnsError reports configured column headers absent from
// the spreadsheet's header row.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf(
		"missing required columns in spreadsheet: %s",
		strings.Join(e.Columns, ", "),
	)
}

// Manager owns the in-memory copy of the spreadsheet. Lifecycle:
// CheckStructure, Load, any number of Update calls, then Save once.
type Manager struct {
	path          string
	columns       map[string]string
	targetColumns []string
	backup        config.BackupConfig

	stats  *stats.Stats
	logger *slog.Logger

	sheetName string
	header    []string
	rows      [][]string
	colIndex  map[string]int
}

// NewManager creates a Manager for the configured spreadsheet. Nothing
// is read from disk until CheckStructure/Load.
func NewManager(cfg config.ExcelConfig, st *stats.Stats, logger *slog.Logger) *Manager {
	return &Manager{
		path:          cfg.Path,
		columns:       cfg.Columns,
		targetColumns: cfg.TargetColumns,
		backup:        cfg.Backup,
		stats:         st,
		logger:        logger,
	}
}

// CheckStructure verifies the file exists and that every configured
// column header appears in the first row.
func (m *Manager) CheckStructure() error {
	if _, err := os.Stat(m.path); err != nil {
		return fmt.Errorf("spreadsheet not found: %s", m.path)
	}

	f, err := excelize.OpenFile(m.path)
	if err != nil {
		return fmt.Errorf("opening spreadsheet %s: %w", m.path, err)
	}
	defer f.Close()

	sheetName := f.GetSheetList()[0]
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", m.path, err)
	}
	if len(rows) == 0 {
		return &MissingColumnsError{Columns: requiredColumns(m.columns)}
	}

	present := make(map[string]bool, len(rows[0]))
	for _, h := range rows[0] {
		present[h] = true
	}

	var missing []string
	for _, col := range requiredColumns(m.columns) {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}

	m.logger.Info("spreadsheet structure is valid", "path", m.path)
	return nil
}

// Load reads the whole sheet into memory as strings. Rows shorter than
// the header are padded with empty cells.
func (m *Manager) Load() error {
	f, err := excelize.OpenFile(m.path)
	if err != nil {
		return fmt.Errorf("opening spreadsheet %s: %w", m.path, err)
	}
	defer f.Close()

	m.sheetName = f.GetSheetList()[0]
	rows, err := f.GetRows(m.sheetName)
	if err != nil {
		return fmt.Errorf("reading spreadsheet %s: %w", m.path, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("spreadsheet %s has no header row", m.path)
	}

	m.header = rows[0]
	m.rows = nil
	for _, row := range rows[1:] {
		padded := make([]string, len(m.header))
		copy(padded, row)
		m.rows = append(m.rows, padded)
	}

	m.colIndex = make(map[string]int, len(m.header))
	for i, h := range m.header {
		m.colIndex[h] = i
	}

	m.logger.Info("loaded spreadsheet", "path", m.path, "rows", len(m.rows))
	return nil
}

// Update writes analysis result fields into every row whose mail
// column equals email (case-insensitive). Zero matches is a logged
// skip. Cells are only overwritten when the value changed; the
// updated-row counter advances by the number of matched rows either
// way. The mail column is not guaranteed unique, so several rows may
// be written for one address.
func (m *Manager) Update(email string, result map[string]string) error {
	mailHeader, ok := m.columns["mail"]
	if !ok {
		m.stats.Errors++
		return fmt.Errorf("no column mapping for field \"mail\"")
	}
	mailCol, ok := m.colIndex[mailHeader]
	if !ok {
		m.stats.Errors++
		return fmt.Errorf("mail column %q not present in loaded sheet", mailHeader)
	}

	matched := 0
	for i, row := range m.rows {
		if !strings.EqualFold(row[mailCol], email) {
			continue
		}
		matched++

		for _, field := range m.targetColumns {
			newValue, ok := result[field]
			if !ok {
				continue
			}
			header, ok := m.columns[field]
			if !ok {
				m.stats.Errors++
				return fmt.Errorf("no column mapping for field %q", field)
			}
			col, ok := m.colIndex[header]
			if !ok {
				m.stats.Errors++
				return fmt.Errorf("column %q not present in loaded sheet", header)
			}

			oldValue := row[col]
			if oldValue != newValue {
				m.rows[i][col] = newValue
				m.logger.Info("updated cell",
					"row", i,
					"field", field,
					"old", oldValue,
					"new", newValue,
				)
			}
		}
	}

	if matched == 0 {
		m.logger.Warn("no matching row for email", "email", email)
		return nil
	}

	m.stats.UpdatedRows += matched
	return nil
}

// Save writes the in-memory table back to the original path,
// overwriting it. Only values are written; formatting is not
// preserved.
func (m *Manager) Save() error {
	f := excelize.NewFile()
	defer f.Close()

	if m.sheetName != "" && m.sheetName != "Sheet1" {
		if err := f.SetSheetName("Sheet1", m.sheetName); err != nil {
			return fmt.Errorf("renaming sheet: %w", err)
		}
	}
	name := m.sheetName
	if name == "" {
		name = "Sheet1"
	}

	if err := setRow(f, name, 1, m.header); err != nil {
		return err
	}
	for i, row := range m.rows {
		if err := setRow(f, name, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(m.path); err != nil {
		return fmt.Errorf("saving spreadsheet %s: %w", m.path, err)
	}

	m.logger.Info("saved spreadsheet", "path", m.path)
	return nil
}

// CreateBackup copies the current file into a backups subfolder with a
// timestamped name, then prunes old copies. A disabled backup config
// is a no-op.
func (m *Manager) CreateBackup() error {
	if !m.backup.Enabled {
		m.logger.Info("backups disabled in configuration")
		return nil
	}

	backupDir := filepath.Join(filepath.Dir(m.path), "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	base := filepath.Base(m.path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	timestamp := time.Now().Format("20060102150405")
	backupPath := filepath.Join(
		backupDir,
		fmt.Sprintf("%s_backup_%s%s", stem, timestamp, ext),
	)

	if err := copyFile(m.path, backupPath); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	m.logger.Info("backup created", "path", backupPath)

	return m.CleanupOldBackups(backupDir)
}

// CleanupOldBackups deletes files in backupDir whose age in whole days
// (by modification time) exceeds the configured retention.
func (m *Manager) CleanupOldBackups(backupDir string) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("listing backup directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ageDays := int(time.Since(info.ModTime()).Hours() / 24)
		if ageDays > m.backup.KeepDays {
			path := filepath.Join(backupDir, entry.Name())
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("deleting old backup %s: %w", path, err)
			}
			m.logger.Info("deleted old backup", "path", path)
		}
	}

	return nil
}

func requiredColumns(columns map[string]string) []string {
	out := make([]string, 0, len(columns))
	for _, header := range columns {
		out = append(out, header)
	}
	sort.Strings(out)
	return out
}

func setRow(f *excelize.File, sheetName string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
		return fmt.Errorf("writing row %d: %w", rowNum, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
