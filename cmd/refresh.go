package cmd

import (
	"github.com/spf13/cobra"
)

type refreshOptions struct {
	tokenFile string
	output    string
}

func newRefreshCmd(a *app) *cobra.Command {
	opts := &refreshOptions{}
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange a refresh token for a new access token",
		Long: `Read a token previously printed by "pubsubdesk login --output json" and
obtain a new access token with its refresh token. No browser is involved.

Exits with code 2 when the token has no refresh token or the provider no
longer accepts it; run "pubsubdesk login" in that case.

Examples:
  pubsubdesk refresh --token-file token.json
  cat token.json | pubsubdesk refresh > new-token.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRefresh(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.tokenFile, "token-file", "-", `token file in JSON, "-" for stdin`)
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputJSON, "output format (json, yaml)")
	return cmd
}

func (a *app) runRefresh(cmd *cobra.Command, opts *refreshOptions) error {
	if err := validateOutputFormat(opts.output, outputJSON, outputYAML); err != nil {
		return err
	}

	cfg, err := a.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	old, err := readToken(opts.tokenFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	authenticator, err := a.newAuthenticator(cfg)
	if err != nil {
		return err
	}
	fresh, err := authenticator.RefreshToken(cmd.Context(), old)
	if err != nil {
		return err
	}
	return writeStructured(cmd.OutOrStdout(), opts.output, fresh)
}
