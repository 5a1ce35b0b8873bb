package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/crateclone/crateclone/pkg/logging"
	"github.com/crateclone/crateclone/pkg/rdeps"
	"github.com/crateclone/crateclone/pkg/source"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"sigs.k8s.io/yaml"
)

func newRdepsCmd() *cobra.Command {
	var (
		flags  sourceFlags
		list   bool
		output string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "rdeps <crate>",
		Short: "Clone every reverse dependency of a crate",
		Long: `Lists the crates that depend on <crate> through the registry web API and
clones each of them. With --prefix every dependent goes to <prefix>/<dependent>.
A dependent that fails to clone is reported and skipped.

--vers and the source flags apply to every dependent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := flags.location()
			if err != nil {
				return err
			}

			e, err := newEnv()
			if err != nil {
				return err
			}

			api, err := apiURL(cmd.Context(), e, loc)
			if err != nil {
				return err
			}
			client := rdeps.NewClient(e.client, api)

			if list {
				deps, err := client.Dependents(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printDependents(cmd.OutOrStdout(), output, deps)
			}

			if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
				ok, err := confirmCloneAll(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			crawler := &rdeps.Crawler{Client: client, Cloner: e.cloner}
			report, err := crawler.CloneAll(cmd.Context(), args[0], loc, flags.prefix, flags.vers)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	flags.register(cmd, "parent directory for the dependents (default ./)")
	cmd.Flags().BoolVar(&list, "list", false, "print the reverse dependencies instead of cloning them")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "list format: text, yaml or json")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

// apiURL returns the web API of the registry at loc. Git and path locations
// use crates.io, as does a registry whose index does not name an API.
func apiURL(ctx context.Context, e *env, loc source.Location) (string, error) {
	if loc.Kind != source.KindRegistry {
		return rdeps.DefaultAPI, nil
	}
	src, err := e.sources.Load(loc)
	if err != nil {
		return "", err
	}
	if err := src.Update(ctx); err != nil {
		return "", err
	}
	if src.APIURL() == "" {
		logging.FromContext(ctx).Debug("index has no api, using crates.io", "source", src.ID())
		return rdeps.DefaultAPI, nil
	}
	return src.APIURL(), nil
}

func printDependents(w io.Writer, format string, deps []rdeps.Dependent) error {
	if deps == nil {
		deps = []rdeps.Dependent{}
	}

	switch format {
	case "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, d := range deps {
			fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Version)
		}
		return tw.Flush()
	case "yaml":
		data, err := yaml.Marshal(deps)
		if err != nil {
			return fmt.Errorf("marshaling dependents: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(deps)
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}
}

func confirmCloneAll(name string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Clone every reverse dependency of %s?", name)).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return ok, nil
}
