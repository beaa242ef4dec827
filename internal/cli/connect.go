package cli

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/spf13/cobra"
)

type ConnectOptions struct {
	*RootOptions
	UserID       string
	Provider     string
	RefreshToken string
	AccessToken  string
	ExpiresIn    time.Duration
}

// NewConnectCommand registers an external account whose OAuth grant was
// obtained elsewhere.
func NewConnectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConnectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Register a provider connection for a user",
		Long: `Register an external account for a user from an existing OAuth grant.
Tokens are sealed before they are stored.

Examples:
  syncctl connect --user 3f2c... --provider google --refresh-token 1//0g...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := models.Provider(opts.Provider)
			if p != models.ProviderGoogle && p != models.ProviderMicrosoft {
				return fmt.Errorf("unknown provider %q", opts.Provider)
			}
			e, err := openEnv(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			conn := &models.Connection{
				UserID:       opts.UserID,
				Provider:     p,
				AccessToken:  opts.AccessToken,
				RefreshToken: opts.RefreshToken,
				Active:       true,
			}
			if opts.AccessToken != "" && opts.ExpiresIn > 0 {
				conn.TokenExpiresAt = time.Now().Add(opts.ExpiresIn).UTC()
			}
			if err := e.rm.Connections(e.db).Create(cmd.Context(), conn); err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": conn.ID, "user_id": conn.UserID, "provider": string(conn.Provider)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), conn.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "owning user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "google|microsoft (required)")
	_ = cmd.MarkFlagRequired("provider")
	cmd.Flags().StringVar(&opts.RefreshToken, "refresh-token", "", "OAuth refresh token (required)")
	_ = cmd.MarkFlagRequired("refresh-token")
	cmd.Flags().StringVar(&opts.AccessToken, "access-token", "", "current access token")
	cmd.Flags().DurationVar(&opts.ExpiresIn, "expires-in", time.Hour, "lifetime of --access-token")

	return cmd
}
