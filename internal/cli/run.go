package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pboyd/statushook"
	"github.com/pboyd/statushook/internal/host"
	"github.com/pboyd/statushook/internal/host/fighters/luigi"
	"github.com/pboyd/statushook/internal/host/fighters/mario"
	"github.com/pboyd/statushook/internal/mods"
	"github.com/pboyd/statushook/internal/redefine"
)

// statusRun is one handler call made after every module loaded.
type statusRun struct {
	Fighter   string `json:"fighter"`
	Kind      int32  `json:"status_kind"`
	SubScript int32  `json:"sub_script"`
	Handler   string `json:"handler"`
	Result    string `json:"result"`
}

type runReport struct {
	Installed    bool                     `json:"installed"`
	InstallError string                   `json:"install_error,omitempty"`
	Patch        string                   `json:"patch,omitempty"`
	Modules      []statushook.ModuleRange `json:"modules"`
	Overrides    []statushook.EntryInfo   `json:"overrides"`
	Statuses     []statusRun              `json:"statuses"`
	Stats        statushook.Stats         `json:"stats"`
}

type runOptions struct {
	Frame     uint64
	ShowPatch bool
	Format    string
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulated host with the status mod installed",
		Long: `Builds a hook, registers the status mod's overrides and patches the host's
SetStatusFunc entry point. The mario and luigi modules are then loaded and
every status handler they installed is run once.

The entry point is restored before the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "table" && opts.Format != "json" {
				return fmt.Errorf("unsupported format: %s", opts.Format)
			}

			cfg, err := flags.load()
			if err != nil {
				return err
			}
			cfg.Log.Output = cmd.ErrOrStderr()

			report, err := runHost(cfg, opts)
			if err != nil {
				return err
			}

			if opts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return report.writeTable(cmd.OutOrStdout())
		},
	}

	cmd.Flags().Uint64Var(&opts.Frame, "frame", 1, "Frame counter passed to every status handler")
	cmd.Flags().BoolVar(&opts.ShowPatch, "show-patch", false, "Include the disassembled entry point after patching")
	cmd.Flags().StringVarP(&opts.Format, "format", "o", "table", "Output format (table, json)")
	return cmd
}

// runHost drives the simulated host from start to finish.
func runHost(cfg statushook.Config, opts runOptions) (*runReport, error) {
	h := statushook.New(cfg, statushook.PatchInstaller{Target: host.SetStatusFunc})
	mods.Register(h)

	loader := host.NewLoader()
	loader.Observe(h.OnModuleLoad)

	if _, err := loader.Load(host.Module{Name: cfg.SentinelModule}); err != nil {
		return nil, err
	}

	report := &runReport{}
	installed, installErr := h.Installed()
	report.Installed = installed
	if installErr != nil {
		// The host keeps its native handlers.
		report.InstallError = installErr.Error()
	}
	if installed {
		defer func() {
			_ = redefine.Restore(host.SetStatusFunc)
		}()

		if opts.ShowPatch {
			patch, err := redefine.Disassemble(host.SetStatusFunc)
			if err != nil {
				return nil, fmt.Errorf("failed to disassemble entry point: %w", err)
			}
			report.Patch = patch
		}
	}

	modules := []host.Module{mario.Module(), luigi.Module()}
	fighters := make([]*host.Fighter, len(modules))
	for i, m := range modules {
		if _, err := loader.Load(m); err != nil {
			return nil, err
		}
		fighters[i] = host.NewFighter(m.Name)
		m.Init(fighters[i])
	}

	for _, f := range fighters {
		for kind := int32(0); kind < host.MaxStatusKinds; kind++ {
			for script := int32(0); script < host.MaxSubScripts; script++ {
				handler := f.Handler(kind, script)
				result, ok := f.RunStatus(kind, script, opts.Frame)
				if !ok {
					continue
				}
				report.Statuses = append(report.Statuses, statusRun{
					Fighter:   f.Name,
					Kind:      kind,
					SubScript: script,
					Handler:   handler.String(),
					Result:    result.String(),
				})
			}
		}
	}

	report.Modules = h.Modules().Ranges()
	for _, owner := range h.Handlers().Owners() {
		report.Overrides = append(report.Overrides, h.Handlers().Entries(owner)...)
	}
	report.Stats = h.Stats()
	return report, nil
}

func (r *runReport) writeTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if r.Installed {
		fmt.Fprintln(tw, "Hook installed")
	} else {
		fmt.Fprintf(tw, "Hook not installed: %s\n", r.InstallError)
	}
	if r.Patch != "" {
		fmt.Fprintf(tw, "\nEntry point:\n%s", r.Patch)
	}

	fmt.Fprintln(tw, "\nMODULE\tSTART\tEND\tEXACT")
	for _, m := range r.Modules {
		fmt.Fprintf(tw, "%s\t0x%x\t0x%x\t%t\n", m.Name, m.Start, m.End, m.Exact)
	}

	fmt.Fprintln(tw, "\nOWNER\tKIND\tSCRIPT\tOVERRIDE\tORIGINAL\tCAPTURED\tSHADOWED")
	for _, e := range r.Overrides {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%t\t%t\n",
			e.Owner, e.StatusKind, e.SubScript, e.Override, e.Original, e.Captured, e.Shadowed)
	}

	fmt.Fprintln(tw, "\nFIGHTER\tKIND\tSCRIPT\tHANDLER\tRESULT")
	for _, s := range r.Statuses {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Fighter, s.Kind, s.SubScript, s.Handler, s.Result)
	}

	fmt.Fprintf(tw, "\nsubstituted: %d\tpassthrough: %d\n", r.Stats.Substituted, r.Stats.Passthrough)
	return tw.Flush()
}
