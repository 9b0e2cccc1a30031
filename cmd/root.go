package cmd

import (
	"errors"
	"os"

	"pubsubdesk/internal/buildinfo"
	"pubsubdesk/internal/config"
	"pubsubdesk/internal/oauth"
	"pubsubdesk/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a token is missing, expired or cannot be refreshed.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
	// ExitCodeConfigError indicates the configuration could not be loaded or is invalid.
	ExitCodeConfigError = 4
)

// app holds the state shared by all subcommands of one invocation.
type app struct {
	info       buildinfo.Info
	configPath string
	logLevel   string

	// browser replaces the system browser when set.
	browser oauth.BrowserOpener

	// isTerminal reports whether the paste prompt can be offered.
	isTerminal func() bool
}

// NewRootCmd builds the command tree for one build of the binary.
func NewRootCmd(info buildinfo.Info) *cobra.Command {
	return newRootCmd(&app{info: info, isTerminal: stdinIsTerminal})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pubsubdesk",
		Short: "Sign in to Google Cloud Pub/Sub from the desktop",
		Long: `pubsubdesk signs you in to Google Cloud Pub/Sub with your own Google
account using the OAuth 2.0 authorization code flow with PKCE. The
browser is opened for consent and the redirect is received on a local
loopback port.`,
		Version: a.info.Version,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(a.logLevel)
			if err != nil {
				return err
			}
			logging.InitForCLI(level, cmd.ErrOrStderr())
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "pubsubdesk version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $HOME/.config/pubsubdesk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")

	rootCmd.AddCommand(newLoginCmd(a))
	rootCmd.AddCommand(newRefreshCmd(a))
	rootCmd.AddCommand(newWhoamiCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	return rootCmd
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute(info buildinfo.Info) {
	os.Exit(run(NewRootCmd(info), os.Args[1:]))
}

func run(rootCmd *cobra.Command, args []string) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return getExitCode(err)
	}
	return ExitCodeSuccess
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var cfgErr config.ConfigurationError
	var validationErrs config.ValidationErrors
	if errors.As(err, &cfgErr) || errors.As(err, &validationErrs) || oauth.IsKind(err, oauth.KindConfig) {
		return ExitCodeConfigError
	}

	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) || oauth.RequiresReauth(err) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	switch oauth.KindOf(err) {
	case oauth.KindUnknown:
		return ExitCodeError
	default:
		return ExitCodeAuthFailed
	}
}
