package cmd

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
	"github.com/spf13/viper"

	"github.com/shrync/shrync/internal/api"
	"github.com/shrync/shrync/internal/config"
	"github.com/shrync/shrync/internal/ffmpeg"
	"github.com/shrync/shrync/internal/jobs"
	"github.com/shrync/shrync/internal/library"
	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/schedule"
	"github.com/shrync/shrync/internal/store"
	"github.com/shrync/shrync/internal/supervisor"
	"github.com/shrync/shrync/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the shrync engine and HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "HTTP listen port (overrides config)")
	serveCmd.Flags().String("db-path", "", "SQLite database path (overrides config)")
	serveCmd.Flags().String("cache-dir", "", "Temp-artifact cache directory (overrides config)")
	serveCmd.Flags().String("ffmpeg-path", "", "ffmpeg binary path (overrides config)")
	serveCmd.Flags().String("ffprobe-path", "", "ffprobe binary path (overrides config)")

	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("db_path", serveCmd.Flags().Lookup("db-path"))
	viper.BindPFlag("cache_dir", serveCmd.Flags().Lookup("cache-dir"))
	viper.BindPFlag("ffmpeg_path", serveCmd.Flags().Lookup("ffmpeg-path"))
	viper.BindPFlag("ffprobe_path", serveCmd.Flags().Lookup("ffprobe-path"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = "/config/shrync.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnv()
	applyFlagOverrides(cfg)

	logger.Init(cfg.LogLevel)
	logger.Info("starting shrync", "version", version.Version, "port", cfg.Port, "db_path", cfg.DBPath)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	transcoder := ffmpeg.NewTranscoder()
	scanner := library.New(st, prober)

	runtimeCfg := func() jobs.Config {
		return jobs.Config{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
			CacheDir:    cfg.CacheDir,
			GPUMode:     cfg.GPUMode,
		}
	}
	pool := jobs.NewPool(st, prober, transcoder, runtimeCfg)

	superCfg := func() supervisor.Config {
		return supervisor.Config{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
			CacheDir:    cfg.CacheDir,
			GPUMode:     cfg.GPUMode,
		}
	}
	super := supervisor.New(st, scanner, pool, superCfg)

	sched := schedule.New(st, func(ctx context.Context, libraryID string) error {
		return scanner.ScanLibrary(ctx, libraryID, cfg.CacheDir)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := super.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	sched.Start(ctx)

	runtime := func() api.RuntimeInfo {
		return api.RuntimeInfo{
			GPUMode:     cfg.GPUMode,
			CacheDir:    cfg.CacheDir,
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
		}
	}
	handler := api.NewHandler(st, scanner, pool, super, runtime)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	sched.Stop()
	super.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err.Error())
	}

	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if v := viper.GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v := viper.GetString("db_path"); v != "" {
		cfg.DBPath = v
	}
	if v := viper.GetString("cache_dir"); v != "" {
		cfg.CacheDir = v
	}
	if v := viper.GetString("ffmpeg_path"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := viper.GetString("ffprobe_path"); v != "" {
		cfg.FFprobePath = v
	}
}
