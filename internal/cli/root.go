// Package cli is the statushook command line.
package cli

import (
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pboyd/statushook"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	ConfigPath string
	LogLevel   string
	Quiet      bool
}

// AddFlags adds the global flags to a FlagSet.
func (g *globalFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&g.ConfigPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&g.LogLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
	flags.BoolVarP(&g.Quiet, "quiet", "q", false, "Turn off informational hook output")
}

// load returns the effective config: defaults, then the file, then the
// environment, then flags.
func (g *globalFlags) load() (statushook.Config, error) {
	cfg, err := statushook.LoadConfig(g.ConfigPath)
	if err != nil {
		return cfg, err
	}

	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.Quiet {
		cfg.Verbose = false
	}
	return cfg, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   "statushook",
		Short: "Override status handlers of dynamically loaded modules",
		Long: `statushook intercepts the host's status handler entry point and swaps in
registered overrides, keeping the displaced handlers callable.

The run command loads a small simulated host (two fighter modules and a status
mod), patches its entry point and reports what ended up installed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd(&flags))
	cmd.AddCommand(newConfigCmd(&flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("statushook version %s\n", Version)
			cmd.Printf("Git commit: %s\n", GitCommit)
			cmd.Printf("Go version: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
