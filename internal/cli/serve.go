package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"churchsite/internal/api"
	"churchsite/internal/assist"
	"churchsite/internal/captcha"
	"churchsite/internal/config"
	"churchsite/internal/dispatch"
	"churchsite/internal/gitrev"
	"churchsite/internal/ratelimit"
	"churchsite/internal/registry"
	"churchsite/internal/session"
	"churchsite/internal/site"
	"churchsite/internal/store"
	"churchsite/internal/telemetry"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
	rateLimitTTL    = time.Hour
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the website, admin panel and AI job API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg, cmd.ErrOrStderr()))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	slog.SetDefault(logger)
	telemetry.Register()

	rev := &gitrev.Lookup{Dir: cfg.WebDir}
	st, err := store.Open(ctx, cfg, rev)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jobs := registry.NewMemory()
	if cfg.JobRetention > 0 {
		go jobs.RunSweeper(ctx, cfg.JobRetention, sweepInterval, func(n int) {
			logger.Info("swept finished ai jobs", "removed", n)
		})
	}
	dispatcher := dispatch.New(jobs, st, assist.New(cfg), logger, cfg.AIWorkers)

	pages, err := site.NewPages(cfg.WebDir, cfg.BackupDir)
	if err != nil {
		return err
	}
	mirror, err := site.NewMirror(ctx, cfg)
	if err != nil {
		return fmt.Errorf("upload mirror: %w", err)
	}
	uploads, err := site.NewUploads(cfg.UploadDir, site.NewThumbnailer(cfg.ThumbnailWidth), mirror, logger)
	if err != nil {
		return err
	}

	var limiter *ratelimit.TokenBucket
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting will fail open", "addr", cfg.RedisAddr, "err", err)
		}
		limiter = ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, rateLimitTTL)
	}

	server := api.New(cfg, api.Deps{
		Store:      st,
		Jobs:       jobs,
		Dispatcher: dispatcher,
		Sessions:   session.NewManager(cfg.AdminPassword, cfg.SessionTimeout),
		Captchas:   captcha.NewStore(cfg.CaptchaTimeout),
		Pages:      pages,
		Uploads:    uploads,
		Limiter:    limiter,
		Logger:     logger,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", "http://localhost:"+cfg.HTTPPort, "web_dir", cfg.WebDir, "ai_tool", cfg.AITool)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.AITimeout+shutdownTimeout)
	defer cancelDrain()
	if err := dispatcher.Close(drainCtx); err != nil {
		logger.Warn("ai jobs still running at exit", "err", err)
	}
	return nil
}
