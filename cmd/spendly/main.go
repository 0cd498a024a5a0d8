package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"spendly/internal/cli"
	apphttp "spendly/internal/http"
	"spendly/internal/log"
	"spendly/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stderr))
}

// execute runs the root command and returns the process exit code. Errors are
// written to stderr because the command itself stays silent about them.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       string
	)
	cmd := &cobra.Command{
		Use:           "spendly",
		Short:         "Serve the Spendly expense tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, port)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", cli.DefaultConfigPath, "YAML config file")
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides config)")
	return cmd
}

func run(parent context.Context, configPath, port string) error {
	if port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
	}

	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig(configPath)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}

	logger := cli.SetupLogger(cfg, log.ComponentApp, nil)

	ctx, stop := cli.ShutdownContext(parent)
	defer stop()

	rt, err := cli.Bootstrap(ctx, cfg, logger, cli.Options{})
	if err != nil {
		logger.Error("Failed to initialize", log.FieldOperation, log.OpStartup, log.FieldError, err)
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Cleanup failed", log.FieldOperation, log.OpShutdown, log.FieldError, err)
		}
	}()

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerSecond = cfg.RateLimit.RPS
	rl.Burst = cfg.RateLimit.Burst

	srv, err := apphttp.NewServer(":"+cfg.Port, rt.App, apphttp.Options{
		Logger:    logger,
		RateLimit: rl,
		Ready:     rt.Ready,
	})
	if err != nil {
		logger.Error("Failed to build server", log.FieldError, err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting spendly server",
			"port", cfg.Port,
			"backend", cfg.Storage.Backend,
			"config", cfg.Source,
			"events", cfg.AMQP.URL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
