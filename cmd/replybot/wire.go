package main

import (
	"fmt"

	"github.com/replybot/replybot/internal/audit"
	"github.com/replybot/replybot/internal/classify"
	"github.com/replybot/replybot/internal/config"
	"github.com/replybot/replybot/internal/logging"
	"github.com/replybot/replybot/internal/messenger"
	"github.com/replybot/replybot/internal/reply"
	"github.com/replybot/replybot/internal/template"
)

// loadConfig reads .env files, the optional config file and the environment.
func loadConfig() (*config.Config, logging.Logger, error) {
	loaded, err := config.LoadDotEnv()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLoggerWithService("replybot", cfg.Options.LogLevel)
	if len(loaded) > 0 {
		logger.WithField("files", loaded).Debug("Loaded environment files")
	}
	return cfg, logger, nil
}

// buildClassifier uses the rules file when one is configured and readable,
// and the built-in rules otherwise.
func buildClassifier(cfg *config.Config, logger logging.Logger) *classify.Classifier {
	if cfg.Classifier.RulesFile == "" {
		return classify.New(nil)
	}
	rules, err := classify.LoadRulesFile(cfg.Classifier.RulesFile)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.Classifier.RulesFile).
			Warn("Rules file rejected, using built-in rules")
		return classify.New(nil)
	}
	return classify.New(rules)
}

func buildTemplates(cfg *config.Config, logger logging.Logger) *template.Store {
	return template.Load(cfg.Templates.BundleBase64, cfg.Templates.FallbackBucket, logger)
}

func buildResponder(cfg *config.Config, store *template.Store) *reply.Responder {
	links := reply.Links{WhatsApp: cfg.Links.WhatsApp, Form: cfg.Links.Form}
	return reply.New(store, links, cfg.Templates.FollowUp)
}

func buildMessenger(cfg *config.Config, logger logging.Logger) messenger.Messenger {
	if cfg.Options.DryRun {
		return messenger.NewDryRun(logger)
	}
	return messenger.NewGraphClient(messenger.GraphConfig{
		BaseURL:     cfg.Meta.GraphURL,
		PageID:      cfg.Meta.PageID,
		AccessToken: cfg.Meta.AccessToken,
		Timeout:     cfg.Meta.Timeout,
	}, nil)
}

// buildAudit assembles the configured sinks. The returned close function
// releases the journal, if one was opened.
func buildAudit(cfg *config.Config, logger logging.Logger) (audit.Appender, func(), error) {
	var sinks audit.Fanout
	closeFn := func() {}

	if cfg.SheetsEnabled() {
		sinks = append(sinks, audit.NewSheetsAppender(audit.SheetsConfig{
			SpreadsheetID:     cfg.Sheets.SpreadsheetID,
			Range:             cfg.Sheets.Range,
			CredentialsBase64: cfg.Sheets.CredentialsBase64,
		}))
	} else {
		logger.Warn("GSHEET_ID not set, audit rows will not reach the sheet")
	}

	if cfg.Journal.Enabled {
		path := cfg.Journal.Path
		if path == "" {
			path = audit.DefaultJournalPath()
		}
		journal, err := audit.OpenJournal(path)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, journal)
		closeFn = func() { journal.Close() }
	}

	if len(sinks) == 0 {
		return audit.Discard{}, closeFn, nil
	}
	return sinks, closeFn, nil
}
