package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/replybot/replybot/internal/audit"
	"github.com/replybot/replybot/internal/config"
	"github.com/replybot/replybot/internal/metrics"
	"github.com/replybot/replybot/internal/router"
	"github.com/replybot/replybot/internal/server"
	"github.com/replybot/replybot/internal/template"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "replybot",
		Short: "Replybot - Automatic replies to Instagram comments and messages",
		Long: `Replybot receives Instagram and Messenger webhooks, sorts each comment
or message into an interest bucket, answers with the bucket's template and
records every interaction in a Google Sheet.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file; environment variables override it")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a YAML config file holding the default settings, at --config or
./replybot.yaml. Tokens and keys are left empty; set them in the file or,
preferably, in the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := runInit(resolveConfigPath(), force)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Configuration saved to: %s\n", path)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  1. Set IG_VERIFY_TOKEN, FB_PAGE_ID and PAGE_ACCESS_TOKEN")
			fmt.Println("  2. Set GSHEET_ID and GOOGLE_SERVICE_ACCOUNT_JSON_BASE64 to log to a sheet")
			fmt.Printf("  3. Run 'replybot serve --config %s'\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func serveCmd() *cobra.Command {
	var port int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the HTTP server that answers the webhook subscription handshake
and processes comment and message events.

Routes:
  GET|POST /webhook   subscription handshake and event delivery
  GET      /healthz   liveness probe
  GET      /metrics   Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, dryRun)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from PORT or 3000)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log outbound messages instead of sending them")

	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text...>",
		Short: "Print the bucket a text is classified into",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			bucket := buildClassifier(cfg, logger).Classify(strings.Join(args, " "))
			fmt.Println(bucket)
			return nil
		},
	}
}

func renderCmd() *cobra.Command {
	var bucket, variant, name, post string
	var vars []string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a reply template",
		Long:  "Render one template variant of a bucket with the configured links and the given variables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store := buildTemplates(cfg, logger)
			responder := buildResponder(cfg, store)

			values := responder.NewVars(name, post)
			for _, kv := range vars {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid --var %q, expected key=value", kv)
				}
				values[k] = v
			}

			if !store.Has(bucket) {
				fmt.Fprintf(cmd.ErrOrStderr(), "bucket %q not found, using %q\n", bucket, store.Fallback())
			}
			fmt.Fprintln(cmd.OutOrStdout(), responder.BuildReply(bucket, variant, values))
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", template.DefaultFallback, "Bucket to render")
	cmd.Flags().StringVar(&variant, "variant", template.VariantInitial, "Template variant")
	cmd.Flags().StringVar(&name, "name", "amigo", "Value for {nombre}")
	cmd.Flags().StringVar(&post, "post", "tu post", "Value for {post_titulo}")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Extra variable as key=value (repeatable)")

	return cmd
}

func templatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the buckets and variants of the active template set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store := buildTemplates(cfg, logger)

			fmt.Printf("Fallback bucket: %s\n\n", store.Fallback())
			for _, bucket := range store.Buckets() {
				fmt.Printf("%s\n", bucket)
				for _, variant := range store.Variants(bucket) {
					fmt.Printf("  - %s\n", variant)
				}
			}
			return nil
		},
	}
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the classifier rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			for i, rule := range buildClassifier(cfg, logger).Rules() {
				fmt.Printf("%d. %-10s %s\n", i+1, rule.Bucket, strings.Join(rule.Keywords, ", "))
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent audit rows from the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(limit, since)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent rows to show")
	cmd.Flags().DurationVar(&since, "since", 30*24*time.Hour, "Window for the bucket totals")

	return cmd
}

const defaultConfigFile = "replybot.yaml"

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigFile
}

// runInit writes the default configuration to path and returns it.
func runInit(path string, force bool) (string, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Defaults()); err != nil {
		return "", fmt.Errorf("failed to save config: %w", err)
	}
	return path, nil
}

func runServe(port int, dryRun bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if dryRun {
		cfg.Options.DryRun = true
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appender, closeAudit, err := buildAudit(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audit: %w", err)
	}
	defer closeAudit()

	m := metrics.New()
	rt := router.New(router.Deps{
		Classifier: buildClassifier(cfg, logger),
		Responder:  buildResponder(cfg, buildTemplates(cfg, logger)),
		Messenger:  buildMessenger(cfg, logger),
		Audit:      appender,
		Logger:     logger,
		Metrics:    m,
	})

	srv := server.New(server.Options{
		Port:        cfg.Server.Port,
		VerifyToken: cfg.Meta.VerifyToken,
		AppSecret:   cfg.Meta.AppSecret,
	}, rt, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
		}
	}()

	return srv.Start()
}

func runHistory(limit int, since time.Duration) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Journal.Path
	if path == "" {
		path = audit.DefaultJournalPath()
	}
	journal, err := audit.OpenJournal(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	ctx := context.Background()
	counts, err := journal.BucketCounts(ctx, time.Now().Add(-since))
	if err != nil {
		return err
	}

	fmt.Printf("📊 Buckets (last %s)\n", since)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for _, kind := range []audit.Kind{audit.KindComment, audit.KindMessage} {
		buckets := counts[kind]
		names := make([]string, 0, len(buckets))
		for name := range buckets {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("%s:\n", kind)
		if len(names) == 0 {
			fmt.Println("  (none)")
		}
		for _, name := range names {
			fmt.Printf("  %-10s %d\n", name, buckets[name])
		}
	}

	entries, err := journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println()
		fmt.Println("No rows recorded yet.")
		return nil
	}

	fmt.Println()
	fmt.Printf("📜 Recent Rows (last %d)\n", limit)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for _, e := range entries {
		fmt.Printf("%s  %-7s %-9s %-16s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Kind,
			e.Bucket,
			e.Actor,
			truncate(e.Text, 60),
		)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
