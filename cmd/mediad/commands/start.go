package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/api"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/evm"
	"github.com/rexpump/mediad/pkg/image"
	"github.com/rexpump/mediad/pkg/rexpump"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
	"github.com/rexpump/mediad/pkg/upload"
)

// defaultConfigFile is picked up from the working directory when --config
// is not given.
const defaultConfigFile = "mediad.yaml"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mediad server",
	Long: `Start the mediad server with the specified configuration.

Use --config to specify a configuration file. Without it, mediad.yaml in
the working directory is used if present, otherwise built-in defaults.

Examples:
  # Start with defaults
  mediad start

  # Start with a custom config file
  mediad start --config /etc/mediad/config.yaml

  # Override single options through the environment
  MEDIAD_LOGGING_LEVEL=debug mediad start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()
	if configFile == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			configFile = defaultConfigFile
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	logger.Info("starting mediad",
		"version", Version,
		"config", configSource(configFile),
		"data_dir", cfg.Storage.DataDir,
	)

	kvStore, err := kv.Open(cfg.KVPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := kvStore.Close(); err != nil {
			logger.Error("closing kv store", "error", err)
		}
	}()

	blobs, err := blob.New(cfg.OriginalsPath(), cfg.OptimizedPath(), cfg.TempPath(), cfg.Storage.DirectoryLevels)
	if err != nil {
		return err
	}

	engine := upload.NewEngine(kvStore, blobs, image.NewProcessor(cfg.Processing), cfg)
	tokens := rexpump.NewService(kvStore, engine, evm.NewVerifier(cfg.RexPump), cfg)

	deps := api.Deps{
		Cfg:     cfg,
		KV:      kvStore,
		Blobs:   blobs,
		Uploads: engine,
		Tokens:  tokens,
		Version: Version,
	}

	publicSrv := api.NewServer("public",
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		api.NewPublicRouter(deps))
	adminSrv := api.NewServer("admin",
		fmt.Sprintf("%s:%d", cfg.Server.AdminHost, cfg.Server.AdminPort),
		api.NewAdminRouter(deps))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return publicSrv.Start(ctx) })
	g.Go(func() error { return adminSrv.Start(ctx) })
	g.Go(func() error {
		engine.RunSweeper(ctx, time.Duration(cfg.Server.CleanupIntervalSeconds)*time.Second)
		return nil
	})

	logger.Info("mediad is running",
		"public", publicSrv.Addr(),
		"admin", adminSrv.Addr(),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		return err
	}

	logger.Info("mediad stopped")
	return nil
}

// configSource describes where the configuration came from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return "defaults"
}
