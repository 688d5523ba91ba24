package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"portwatch/internal/app"
)

var rootOpts = app.Options{Debounce: -1}

// rootCmd runs the monitor itself; subcommands are auxiliary.
var rootCmd = &cobra.Command{
	Use:   "portwatch [user@host]",
	Short: "Watch processes and their listening ports, and forward them",
	Long: `portwatch shows which processes are listening on which ports, locally
or on a remote machine reachable over ssh, and lets you open reverse
port-forwarding tunnels for selected ports straight from the list.`,
	Args: cobra.MaximumNArgs(1),
	// SilenceUsage: a failed remote connection is not a usage error.
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			rootOpts.RemoteHost = args[0]
		}
		return app.Run(rootOpts)
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI. Called by main.main.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "portwatch version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero.
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	flags := rootCmd.Flags()
	flags.BoolVar(&rootOpts.ForceFallback, "fallback", false, "force the lsof fallback backend even locally")
	flags.BoolVar(&rootOpts.Mock, "mock", false, "replay a canned snapshot sequence instead of polling")
	flags.BoolVar(&rootOpts.Headless, "headless", false, "log snapshot changes to stderr instead of rendering the TUI")
	flags.DurationVar(&rootOpts.Interval, "interval", 0, "poll interval (default from config, 2s)")
	flags.DurationVar(&rootOpts.Timeout, "timeout", 0, "per-poll timeout (default from config, 5s)")
	flags.IntVar(&rootOpts.Debounce, "debounce", -1, "absent polls tolerated before a process is removed (default from config, 2)")
	flags.StringVar(&rootOpts.LogLevel, "log-level", "", "debug, info, warn or error")
}
