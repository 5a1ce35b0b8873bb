package cmd

import (
	"fmt"

	"github.com/crateclone/crateclone/pkg/cloner"
	"github.com/crateclone/crateclone/pkg/httputil"
	"github.com/crateclone/crateclone/pkg/resolver"
	"github.com/crateclone/crateclone/pkg/source"
	"github.com/crateclone/crateclone/pkg/store"
	"github.com/spf13/cobra"
)

// sourceFlags are shared by every command that resolves packages.
type sourceFlags struct {
	vers     string
	path     string
	git      string
	branch   string
	tag      string
	rev      string
	registry string
	index    string
	prefix   string
}

func (f *sourceFlags) register(cmd *cobra.Command, prefixHelp string) {
	flags := cmd.Flags()
	flags.StringVar(&f.vers, "vers", "", "version to clone; a bare version means ^version")
	flags.StringVar(&f.path, "path", "", "local directory containing the crate")
	flags.StringVar(&f.git, "git", "", "git repository URL")
	flags.StringVar(&f.branch, "branch", "", "git branch to clone")
	flags.StringVar(&f.tag, "tag", "", "git tag to clone")
	flags.StringVar(&f.rev, "rev", "", "git commit to clone")
	flags.StringVar(&f.registry, "registry", "", "registry name from the config")
	flags.StringVar(&f.index, "index", "", "registry index URL")
	flags.StringVar(&f.prefix, "prefix", "", prefixHelp)

	cmd.MarkFlagsMutuallyExclusive("path", "git", "registry", "index")
	cmd.MarkFlagsMutuallyExclusive("branch", "tag", "rev")
}

func (f *sourceFlags) location() (source.Location, error) {
	ref := f.branch
	if f.tag != "" {
		ref = f.tag
	}
	if f.rev != "" {
		ref = f.rev
	}
	return source.ParseLocation(source.LocationFlags{
		Path:     f.path,
		Git:      f.git,
		Ref:      ref,
		Registry: f.registry,
		Index:    f.index,
	})
}

// env is what the commands build from Cfg.
type env struct {
	store   store.Store
	client  *httputil.Client
	sources *source.ConfigMap
	cloner  *cloner.Cloner
}

func newEnv() (*env, error) {
	var s store.Store
	if Cfg.CacheDir != "" {
		s = store.New(Cfg.CacheDir)
	} else {
		var err error
		s, err = store.Default()
		if err != nil {
			return nil, err
		}
	}

	client := httputil.NewClient(nil, Cfg.UserAgent)
	sources := source.NewConfigMap(Cfg, s, client)
	return &env{
		store:   s,
		client:  client,
		sources: sources,
		cloner:  &cloner.Cloner{Resolver: &resolver.Resolver{Store: s, Sources: sources}},
	}, nil
}

func newCloneCmd() *cobra.Command {
	var flags sourceFlags

	cmd := &cobra.Command{
		Use:   "clone [crate]",
		Short: "Copy a crate's source tree into a directory",
		Long: `Resolves a crate and copies its sources into --prefix, or into ./<crate>
when no prefix is given. The destination must be missing or empty.

Without --path or --git the crate comes from the default registry, and a crate
name is required. With --path or --git the name may be omitted to take the
first package found there.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClone(cmd, args, &flags)
		},
	}
	flags.register(cmd, "destination directory (default ./<crate>)")

	return cmd
}

func runClone(cmd *cobra.Command, args []string, flags *sourceFlags) error {
	loc, err := flags.location()
	if err != nil {
		return err
	}

	var q resolver.Query
	if len(args) == 1 {
		q.Name = args[0]
	}
	q.Version = flags.vers

	e, err := newEnv()
	if err != nil {
		return err
	}

	res, err := e.cloner.Clone(cmd.Context(), q, loc, flags.prefix)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cloned %s %s into %s\n", res.Package.Name, res.Package.Version, res.Destination)
	return nil
}
