// Command mailsheet reads sent threads and their replies from an IMAP
// mailbox, runs each new reply through a local text-analysis service,
// and writes the returned fields into the matching rows of a tracked
// spreadsheet.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dolwer/mailsheet/internal/analysis"
	"github.com/dolwer/mailsheet/internal/config"
	"github.com/dolwer/mailsheet/internal/credential"
	"github.com/dolwer/mailsheet/internal/logging"
	"github.com/dolwer/mailsheet/internal/mailbox"
	"github.com/dolwer/mailsheet/internal/pipeline"
	"github.com/dolwer/mailsheet/internal/sheet"
	"github.com/dolwer/mailsheet/internal/stats"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	setPassword := flag.Bool("set-password", false, "read the IMAP password from stdin, store it in the OS keyring, and exit")
	deletePassword := flag.Bool("delete-password", false, "remove the stored IMAP password from the OS keyring and exit")
	flag.Parse()

	// Bootstrap logger for everything that happens before the
	// configured one exists.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	switch {
	case *setPassword:
		if err := storePassword(os.Stdin); err != nil {
			logger.Error("storing IMAP password failed", "error", err)
			os.Exit(1)
		}
		logger.Info("IMAP password stored in keyring")
		return
	case *deletePassword:
		if err := credential.Delete(credential.PasswordKey); err != nil {
			logger.Error("deleting IMAP password failed", "error", err)
			os.Exit(1)
		}
		logger.Info("IMAP password removed from keyring")
		return
	}

	if err := run(*configPath, logger); err != nil {
		os.Exit(1)
	}
}

// storePassword reads one line from r and saves it as the keyring
// IMAP password.
func storePassword(r io.Reader) error {
	fmt.Fprint(os.Stderr, "IMAP password: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}
	return credential.Set(credential.PasswordKey, password)
}

// run executes one full processing pass. All failures are logged here;
// the caller only turns a non-nil return into exit code 1.
func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("configuration load failed", "error", err)
		return err
	}

	configured, closer, err := logging.Setup(logging.Options{
		Level:       cfg.Logging.Level,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		BackupCount: cfg.Logging.BackupCount,
	})
	if err != nil {
		logger.Error("logging setup failed", "error", err)
		return err
	}
	defer closer.Close()
	logger = configured

	logger.Info("starting email processing", "user", cfg.User.Name)

	// Config and environment take precedence; the OS keyring is the
	// fallback for the mailbox password.
	if cfg.IMAP.Password == "" {
		if pw, err := credential.Get(credential.PasswordKey); err == nil {
			cfg.IMAP.Password = pw
		} else {
			logger.Warn("no IMAP password in config, env, or keyring")
		}
	}

	st := &stats.Stats{}
	ctx := context.Background()

	manager := sheet.NewManager(cfg.Excel, st, logger)
	if err := manager.CheckStructure(); err != nil {
		logger.Error("spreadsheet check failed", "error", err)
		return err
	}
	if err := manager.Load(); err != nil {
		logger.Error("spreadsheet load failed", "error", err)
		return err
	}

	mail := mailbox.NewClient(cfg.IMAP, st, logger)
	if err := mail.Connect(ctx); err != nil {
		logger.Error("IMAP connect failed", "error", err)
		return err
	}
	defer mail.Disconnect()

	analyzer := analysis.NewClient(cfg.Analyzer, logger)

	p := pipeline.New(mail, analyzer, manager, st, logger)
	if err := p.Run(ctx); err != nil {
		st.LogSummary(logger)
		return err
	}

	if err := manager.CreateBackup(); err != nil {
		logger.Error("backup failed", "error", err)
		return err
	}
	if err := manager.Save(); err != nil {
		logger.Error("spreadsheet save failed", "error", err)
		return err
	}

	st.LogSummary(logger)
	logger.Info("processing completed successfully")
	return nil
}
