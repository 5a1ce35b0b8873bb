package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/crateclone/crateclone/pkg/config"
	"github.com/crateclone/crateclone/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	flagVerbose   bool
	flagConfig    string
	flagCacheDir  string
	flagUserAgent string

	// Cfg holds the resolved configuration, available to all subcommands
	// after PersistentPreRunE completes.
	Cfg *config.Config
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crateclone",
		Short: "Clone the sources of a crate",
		Long: `crateclone fetches a crate from a registry, a git repository or a local
path and copies its source tree into a directory of your choice. It can also
clone every reverse dependency of a crate.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(cmd.ErrOrStderr(), logging.Level(flagVerbose))
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))

			cfg, err := config.Load(config.Overrides{
				ConfigFile: flagConfig,
				CacheDir:   flagCacheDir,
				UserAgent:  flagUserAgent,
			})
			if err != nil {
				return err
			}
			Cfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file to use instead of "+config.LocalConfigFile)
	root.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "package cache directory (default ~/"+config.GlobalDirName+")")
	root.PersistentFlags().StringVar(&flagUserAgent, "user-agent", "", "User-Agent sent to registries")

	root.AddCommand(newInitCmd())
	root.AddCommand(newCloneCmd())
	root.AddCommand(newRdepsCmd())

	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
