// Package pipeline drives one run: walk mailbox threads, analyze each
// unprocessed reply, write results into the spreadsheet, and mark the
// source messages read.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dolwer/mailsheet/internal/analysis"
	"github.com/dolwer/mailsheet/internal/mailbox"
	"github.com/dolwer/mailsheet/internal/stats"
)

// Mailer is the mailbox surface the pipeline consumes.
type Mailer interface {
	Threads(ctx context.Context) []mailbox.Thread
	MarkSeen(ctx context.Context, msg mailbox.Message) error
}

// Analyzer produces per-message analysis results.
type Analyzer interface {
	AnalyzeEmail(ctx context.Context, body, threadContext string) (analysis.Result, error)
	HealthCheck(ctx context.Context) bool
}

// Sheet applies analysis results to the tabular store.
type Sheet interface {
	Update(email string, result map[string]string) error
}

// Pipeline wires the three components together for a single run.
type Pipeline struct {
	mail     Mailer
	analyzer Analyzer
	sheet    Sheet
	stats    *stats.Stats
	logger   *slog.Logger
}

// New creates a Pipeline. Every log line of the run carries a fresh
// run id.
func New(
	mail Mailer,
	analyzer Analyzer,
	sheet Sheet,
	st *stats.Stats,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		mail:     mail,
		analyzer: analyzer,
		sheet:    sheet,
		stats:    st,
		logger:   logger.With("run_id", uuid.NewString()),
	}
}

// Run processes every unprocessed reply across all threads. Logical
// analysis failures (the service reporting an error) and transport
// failures skip the message; a failed sheet update or read-flag store
// aborts the whole run. Nothing is persisted here: the sheet is saved
// by the caller after Run returns successfully.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.analyzer.HealthCheck(ctx) {
		p.logger.Warn("analysis service health check failed, proceeding anyway")
	}

	for _, thread := range p.mail.Threads(ctx) {
		for _, msg := range thread.Replies {
			if msg.Processed {
				continue
			}

			result, err := p.analyzer.AnalyzeEmail(ctx, msg.Body, thread.Context)
			if err != nil {
				if analysis.IsAnalysisError(err) {
					// The service answered but declined; not an
					// infrastructure error.
					p.logger.Error("analysis failed", "uid", msg.UID, "error", err)
				} else {
					p.logger.Error("analysis request failed", "uid", msg.UID, "error", err)
					p.stats.Errors++
				}
				continue
			}

			if err := p.sheet.Update(msg.From, result); err != nil {
				p.logger.Error("sheet update failed", "email", msg.From, "error", err)
				return fmt.Errorf("updating sheet for %s: %w", msg.From, err)
			}

			if err := p.mail.MarkSeen(ctx, msg); err != nil {
				p.logger.Error("marking message read failed", "uid", msg.UID, "error", err)
				p.stats.Errors++
				return fmt.Errorf("marking UID %d read: %w", msg.UID, err)
			}

			p.stats.ProcessedEmails++
		}
	}

	return nil
}
