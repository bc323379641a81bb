package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omniview-labs/omniview/internal/cache"
	"github.com/omniview-labs/omniview/internal/cli/config"
	"github.com/omniview-labs/omniview/internal/logging"
	"github.com/omniview-labs/omniview/internal/resolver"
	"github.com/omniview-labs/omniview/internal/server"
	"github.com/omniview-labs/omniview/internal/source"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hierarchy resolver HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Development)
			defer log.Sync() //nolint:errcheck

			src, err := buildSource(cfg)
			if err != nil {
				return err
			}

			var persistent cache.Cache
			if cfg.Redis.Enabled {
				redisCache, err := cache.NewRedisCache(cache.RedisConfig{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
					Config:   cache.DefaultConfig(),
				})
				if err != nil {
					// Degrade to in-process-only caching.
					log.Warn("redis unavailable, running without persistent cache tier", zap.Error(err))
				} else {
					persistent = redisCache
					defer redisCache.Close()
				}
			}

			store := cache.NewSnapshotStore(log, persistent, cfg.Resolver.SnapshotTTL)
			service := resolver.New(log, src, store, resolver.Options{
				ExpandDepth:     cfg.Resolver.ExpandDepth,
				GraphDepth:      cfg.Resolver.GraphDepth,
				RootConcurrency: cfg.Resolver.RootConcurrency,
				FetchTimeout:    cfg.Resolver.FetchTimeout,
				SnapshotTTL:     cfg.Resolver.SnapshotTTL,
			})

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := server.New(log, service, addr)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				log.Info("signal received, shutting down", zap.String("signal", sig.String()))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

// buildSource picks the component source: a fixture-backed static
// source when configured, wrapped in the LRU definition memo either way.
func buildSource(cfg *config.Config) (source.Source, error) {
	if cfg.Source.Fixture == "" {
		return nil, fmt.Errorf("source.fixture is required: the remote platform connector is configured per deployment")
	}
	static, err := source.LoadStaticSource(cfg.Source.Fixture)
	if err != nil {
		return nil, err
	}
	return source.NewCachingSource(static, source.DefaultDefinitionCacheSize)
}
