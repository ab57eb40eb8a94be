package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"filedock/internal/config"
	"filedock/internal/domain/file"
	"filedock/internal/pkg/logger"
	"filedock/internal/server"
)

type rootFlags struct {
	configPath string
	logLevel   string
	port       int
}

var flags rootFlags

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "filedock",
		Short:         "File upload and metadata tracking service",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       fmt.Sprintf("%s.%s", version, commit),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().IntVar(&flags.port, "port", 0, "HTTP listen port")

	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newAuditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report records without blobs and blobs without records",
		Long: `Compare the metadata store with the upload directory and print every
mismatch. Nothing is repaired. Exits non-zero when the stores disagree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "filedock %s (%s)\n", version, commit)
		},
	}
}

func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(flags.configPath, config.Overrides{
		Port:     flags.port,
		LogLevel: flags.logLevel,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, closer := logger.New(cfg.Log)
	slog.SetDefault(log)
	return cfg, log, closer, nil
}

func runServe(ctx context.Context) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := server.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info("filedock starting",
		slog.String("env", cfg.AppEnv),
		slog.String("upload_dir", deps.Blobs.Root()),
		slog.Int64("max_file_size", cfg.Upload.MaxFileSize),
		slog.String("batch_policy", cfg.Upload.BatchPolicy),
	)

	return server.New(deps).Run(ctx)
}

func runAudit(ctx context.Context, out io.Writer) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	deps, err := server.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	report, err := deps.Files.Audit(ctx)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}
	printReport(out, report)

	if !report.Consistent() {
		return fmt.Errorf("found %d record(s) without blob, %d blob(s) without record and %d stale temp file(s)",
			len(report.MissingBlobs), len(report.OrphanBlobs), len(report.StaleTemps))
	}
	return nil
}

func printReport(out io.Writer, r *file.AuditReport) {
	fmt.Fprintf(out, "records: %d\nblobs:   %d\n", r.Records, r.Blobs)
	for _, f := range r.MissingBlobs {
		fmt.Fprintf(out, "missing blob  id=%s stored=%s name=%q\n", f.ID, f.StoredName, f.OriginalName)
	}
	for _, n := range r.OrphanBlobs {
		fmt.Fprintf(out, "orphan blob   stored=%s\n", n)
	}
	for _, n := range r.StaleTemps {
		fmt.Fprintf(out, "stale temp    file=%s\n", n)
	}
	if r.Consistent() {
		fmt.Fprintln(out, "consistent")
	}
}
