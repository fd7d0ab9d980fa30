// Package stats tracks run counters for the mail processing pipeline.
package stats

import "log/slog"

// Stats holds the mutable counters for a single run. It is created in
// main and passed by pointer to every component that advances it; the
// process is single-threaded so no locking is needed.
type Stats struct {
	// ProcessedEmails counts messages that were analyzed, written to
	// the sheet, and marked read.
	ProcessedEmails int

	// UpdatedRows counts spreadsheet rows matched by an update, whether
	// or not any cell value actually changed.
	UpdatedRows int

	// Errors counts recoverable per-message failures and the fatal
	// failure that ends a run, if any.
	Errors int
}

// LogSummary writes the final counter values to the log.
func (s *Stats) LogSummary(logger *slog.Logger) {
	logger.Info("run summary",
		"processed_emails", s.ProcessedEmails,
		"updated_rows", s.UpdatedRows,
		"errors", s.Errors,
	)
}
