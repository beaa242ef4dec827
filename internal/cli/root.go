// Package cli implements syncctl, the operator command line of the sync
// engine.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/kinsync/internal/config"
	"github.com/dmitrijs2005/kinsync/internal/credentials"
	"github.com/dmitrijs2005/kinsync/internal/repositories/repomanager"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DSN        string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

// env is what a command needs to talk to the database.
type env struct {
	cfg *config.Config
	db  *sql.DB
	rm  repomanager.RepositoryManager
}

func (e *env) Close() error { return e.db.Close() }

var openEnv = func(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	sealer, err := credentials.NewSealer(cfg.SealKey)
	if err != nil {
		return nil, err
	}
	rm, err := repomanager.NewPostgresRepositoryManager(sealer)
	if err != nil {
		return nil, err
	}
	db, err := repomanager.Open(ctx, cfg.DatabaseDSN, 4)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, rm: rm}, nil
}

// loadConfig applies defaults, the optional JSON file, the environment and
// finally --dsn.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	if opts.ConfigPath != "" {
		if err := cfg.ApplyJSONFile(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if opts.DSN != "" {
		cfg.DatabaseDSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the contact and calendar sync engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to JSON config file")
	cmd.PersistentFlags().StringVarP(&opts.DSN, "dsn", "d", "", "database DSN (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewConnectCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewRunOnceCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))

	return cmd
}
