// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/internal/batchfile"
	"github.com/pdiddy/paper-extractor/internal/server"
)

const shutdownTimeout = 15 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process batch files dropped into the watch directory",
	Long: `Watch monitors the configured watch directory and processes each new
batch file as it appears. Files already present are processed at start and,
when batch.sweep_schedule is set, on that cron schedule.`,
	RunE: runWatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("watch", false, "also watch the batch directory")
	serveCmd.Flags().String("host", "", "listen host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p := batchfile.NewProcessor(newExtractor(st), logger.Named("batchfile"))
	w := batchfile.NewWatcher(cfg.Batch, p, batchfile.WithLogger(logger.Named("watcher")))
	return w.Run(cmd.Context())
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sc := cfg.Server
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		sc.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		sc.Port = port
	}

	ex := newExtractor(st)
	srv := server.New(ex, st, sc, logger.Named("server"))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var wg sync.WaitGroup
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		p := batchfile.NewProcessor(ex, logger.Named("batchfile"))
		w := batchfile.NewWatcher(cfg.Batch, p, batchfile.WithLogger(logger.Named("watcher")))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	var serveErr error
	select {
	case err := <-errc:
		serveErr = err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		logger.Info("shutting down server")
		if err := srv.Stop(shutdownCtx); err != nil {
			serveErr = err
		} else {
			serveErr = <-errc
		}
	}
	cancel()
	wg.Wait()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
