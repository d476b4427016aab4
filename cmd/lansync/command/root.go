package command

// root.go defines the lansync root command and the settings shared by every
// subcommand.

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lansync/internal/config"
	"lansync/internal/shared"
)

var (
	envFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lansync",
	Short: "lansync - LAN multiplayer session tool",
	Long: `lansync hosts, joins and discovers LAN multiplayer sessions.

- host      start a session and announce it on the local network
- join      connect to a running session
- discover  list sessions announced on the local network

Settings come from the environment or a .env file and can be overridden with flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfigFrom(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		logger = shared.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(discoverCmd)
}
