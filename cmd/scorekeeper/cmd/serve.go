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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/api"
	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/core/metrics"
	"github.com/solatis/scorekeeper/internal/core/server"
	"github.com/solatis/scorekeeper/internal/core/watch"
	"github.com/solatis/scorekeeper/internal/rules"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC formula service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("formulas", "", "formula file (default server.formulas_path)")
	serveCmd.Flags().Bool("watch", false, "reload the formula file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	path := formulasPath(cmd, cfg)

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set SK_HMAC_SECRET environment variable)")
	}

	database, queries, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	collector := metrics.NewCollector(nil)
	engine, src, err := buildEngine(path, logger, rules.WithObserver(collector))
	if err != nil {
		return err
	}

	service, err := api.NewFormulaService(&api.Pipeline{Engine: engine, Checksum: src.Checksum}, cfg.Server,
		api.WithRecorder(db.NewRunStore(queries)),
		api.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	authenticator := auth.NewAuthenticator(secrets, queries, logger)
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, authenticator,
		server.WithLogger(logger),
		server.WithMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	if cfg.Metrics.Addr != "" {
		metricsServer := startMetrics(cfg.Metrics.Addr, collector, logger, errChan)
		defer metricsServer.Close()
	}

	if reload, _ := cmd.Flags().GetBool("watch"); reload {
		fw, err := watch.NewFileWatcher(path, watch.DefaultDebounce, logger)
		if err != nil {
			return err
		}
		go watchFormulas(ctx, fw, func() {
			reloadPipeline(service, path, logger, collector)
		}, errChan)
	}

	logger.Info().
		Str("version", Version).
		Str("addr", cfg.Server.Addr()).
		Str("formulas", path).
		Str("checksum", src.Checksum).
		Msg("starting scorekeeper")

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	}
}

func startMetrics(addr string, collector *metrics.Collector, logger zerolog.Logger, errChan chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	return srv
}

type fileWatcher interface {
	Run(ctx context.Context, onChange func()) error
}

// watchFormulas runs fw until ctx is done. A watcher that stops on its own
// reports to errChan so the server does not keep running without reloads.
func watchFormulas(ctx context.Context, fw fileWatcher, onChange func(), errChan chan<- error) {
	if err := fw.Run(ctx, onChange); err != nil {
		errChan <- fmt.Errorf("formula watcher: %w", err)
	}
}

// reloadPipeline swaps in the formula file at path when it builds cleanly.
// A broken file leaves the running pipeline in place.
func reloadPipeline(service *api.FormulaService, path string, logger zerolog.Logger, observer rules.Observer) {
	engine, src, err := buildEngine(path, logger, rules.WithObserver(observer))
	if err != nil {
		logger.Error().Err(err).Msg("formula reload rejected, keeping current pipeline")
		return
	}
	if src.Checksum == service.Pipeline().Checksum {
		return
	}
	service.Swap(&api.Pipeline{Engine: engine, Checksum: src.Checksum})
}
