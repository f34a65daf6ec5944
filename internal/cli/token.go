package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/config"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/pkg/logging"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for an existing user",
		Long: `Print a signed access token for the user with --email, for use in
development tools such as curl or a Connect client. The token is signed
with auth.jwt_secret and expires after auth.token_ttl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.DriverMemory {
				return errors.New("the memory store holds no users outside a running server")
			}
			logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			store, err := openStore(cmd.Context(), cfg.Store, storage.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := store.GetUserByEmail(cmd.Context(), auth.NormalizeEmail(email))
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no user with email %q", email)
			}
			if err != nil {
				return err
			}

			token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Generate(user)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
