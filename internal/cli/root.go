// Package cli implements the teamsync command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mmynk/teamsync/internal/config"
)

type rootOptions struct {
	configFile string
	envFile    string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "teamsync",
		Short: "Team membership and shared calendar server",
		Long: `teamsync serves team membership and a shared team calendar over
Connect RPC, with live views streamed to every member.

Settings come from defaults, an optional YAML file (--config) and
TEAMSYNC_* environment variables, e.g. TEAMSYNC_STORE_DRIVER for
store.driver. A .env file is loaded first when present.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// loadEnvFile fills unset environment variables from path. A missing file
// is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (o *rootOptions) load() (*config.Config, error) {
	v, err := config.New(o.configFile)
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}
