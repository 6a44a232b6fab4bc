package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"event-coordinator/internal/app"
	"event-coordinator/internal/integrations/paramstore"
	"event-coordinator/internal/repository"
	"event-coordinator/internal/statestore"
)

// serviceBuilder wires the full conversation service over records.
type serviceBuilder func(ctx context.Context, cfg Config, records statestore.RecordStore) (*app.Service, error)

type cli struct {
	v            *viper.Viper
	cfg          Config
	configFile   string
	logger       *slog.Logger
	buildService serviceBuilder
}

func newCLI() *cli {
	return &cli{
		v:            viper.New(),
		logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		buildService: buildAWSService,
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coordctl",
		Short: "Inspect and drive event-coordinator conversations",
		Long: `coordctl operates on the SQLite record store used by single-node
deployments: list conversations, read their history, delete them, force a
checkpoint, or send a message through the coordinator.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.v, cmd, c.configFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default ./coordctl.yaml)")
	flags.String("db", "", "path to the SQLite database")
	flags.Int64("tenant", 0, "tenant id to scope operations to")
	flags.String("provider", "", "LLM provider: openai, anthropic or gemini")
	flags.String("param-prefix", "", "SSM parameter prefix")

	root.AddCommand(c.listCmd(), c.historyCmd(), c.deleteCmd(), c.syncCmd(), c.sendCmd())
	return root
}

// openStore opens the SQLite database and loads it into a state store.
func (c *cli) openStore(ctx context.Context) (*statestore.Store, func(), error) {
	db, err := repository.OpenSQLite(c.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	opts := []statestore.Option{statestore.WithLogger(c.logger)}
	if t := c.cfg.TenantID(); t != nil {
		opts = append(opts, statestore.WithTenant(*t))
	}
	store, err := statestore.New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}

func buildAWSService(ctx context.Context, cfg Config, records statestore.RecordStore) (*app.Service, error) {
	if cfg.ParamPrefix == "" {
		return nil, fmt.Errorf("param prefix is required to send messages (--param-prefix or COORDCTL_PARAM_PREFIX)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, app.Config{
		ParamPrefix: cfg.ParamPrefix,
		Provider:    cfg.Provider,
		TenantID:    cfg.TenantID(),
		Logger:      slog.Default(),
	}, records, params)
}
