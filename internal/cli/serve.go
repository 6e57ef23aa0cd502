package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.io/infrasutra/inboxsweep/internal/api"
	"github.io/infrasutra/inboxsweep/internal/smtpserver"
	"github.io/infrasutra/inboxsweep/internal/sse"
	"github.io/infrasutra/inboxsweep/internal/status"
	"github.io/infrasutra/inboxsweep/internal/store"
)

var serveNoAI bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the SMTP intake server",
	Long: `Run the HTTP API and the SMTP intake server.

Paste mail into POST /api/imports, or point a mail client or test sender at
the SMTP port and process the captured messages with POST /api/inbox/process.

Ports and the database path come from HTTP_PORT, SMTP_PORT and DB_PATH.
An empty DB_PATH keeps everything in memory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoAI, "no-ai", false,
		"Use pattern matching only, even when an LLM is configured")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(cfg, logger, serveNoAI)
	if err != nil {
		logger.Error("configure pipeline", "error", err)
		return err
	}

	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		return err
	}
	if cfg.DBPath == "" {
		logger.Warn("DB_PATH not set; imports are lost on restart")
	}

	hub := sse.NewHub()
	scheduler := status.New(db, hub, logger, cfg.UnsubscribeDelay)
	defer scheduler.Stop()

	apiServer := api.NewServer(db, p, scheduler, hub, logger)

	smtpAddr := fmt.Sprintf(":%d", cfg.SMTPPort)
	smtpSrv := smtpserver.New(db, hub, logger, smtpAddr)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := smtpSrv.ListenAndServe(); err != nil {
			logger.Error("smtp server stopped", "error", err)
			errCh <- err
		}
	}()

	go func() {
		logger.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	if err := smtpSrv.Close(); err != nil {
		logger.Error("shutdown smtp", "error", err)
	}
	return runErr
}
