package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type whoamiOptions struct {
	tokenFile string
}

func newWhoamiCmd(a *app) *cobra.Command {
	opts := &whoamiOptions{}
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the account a token belongs to",
		Long: `Look up the Google account of a token printed by "pubsubdesk login"
and show it together with the token's expiry.

Examples:
  pubsubdesk whoami --token-file token.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWhoami(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.tokenFile, "token-file", "-", `token file in JSON, "-" for stdin`)
	return cmd
}

func (a *app) runWhoami(cmd *cobra.Command, opts *whoamiOptions) error {
	cfg, err := a.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	tok, err := readToken(opts.tokenFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if tok.AccessToken == "" || tok.IsExpired() {
		reason := "the access token has expired"
		if tok.HasRefreshToken() {
			reason += `; run "pubsubdesk refresh" to renew it`
		}
		return &AuthRequiredError{Reason: reason}
	}

	authenticator, err := a.newAuthenticator(cfg)
	if err != nil {
		return err
	}
	email, err := authenticator.ResolveIdentity(cmd.Context(), tok)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("FIELD"), text.FgHiCyan.Sprint("VALUE")})
	t.AppendRows([]table.Row{
		{"Account", email},
		{"Token type", tok.TokenType},
		{"Expires", formatExpiry(tok.Expiry)},
		{"Refresh", formatRefresh(tok)},
	})
	t.Render()
	return nil
}
