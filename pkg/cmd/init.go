package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/crateclone/crateclone/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultMirrorName = "mirror"

func newInitCmd() *cobra.Command {
	var (
		mirror     string
		mirrorName string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a " + config.LocalConfigFile + " in the current directory",
		Long: `Creates a project-local config file. With --mirror, crates-io is replaced by
the given sparse index. When run in a terminal without flags it asks for one.`,
		Args: cobra.NoArgs,
		// init writes the config; it must not require one to load.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting working directory: %w", err)
			}

			if mirror == "" && !cmd.Flags().Changed("mirror") && term.IsTerminal(int(os.Stdin.Fd())) {
				mirror, err = promptMirror()
				if err != nil {
					return err
				}
			}

			cfg := &config.Config{}
			if mirror != "" {
				cfg = config.Mirror(mirrorName, mirror)
			}

			path, err := config.Init(wd, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&mirror, "mirror", "", "sparse index URL that replaces crates-io")
	cmd.Flags().StringVar(&mirrorName, "mirror-name", defaultMirrorName, "source name for the mirror")

	return cmd
}

// promptMirror asks for an optional mirror index. An empty answer means no
// mirror.
func promptMirror() (string, error) {
	var mirror string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Replace crates-io with a mirror?").
				Description("Sparse index URL, or leave empty to use crates-io").
				Placeholder("sparse+https://mirror.example.com/index/").
				Value(&mirror),
		),
	).Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return mirror, nil
}
