package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tensord/internal/backend"
	"tensord/internal/registry"
	"tensord/pkg/types"
)

// modelPlan is the resolved instance layout of one model.
type modelPlan struct {
	Model     string                 `json:"model"`
	Instances []backend.InstanceSpec `json:"instances"`
	Error     string                 `json:"error,omitempty"`
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "plan [model...]",
		Short:   "Show the instances and artifacts each model would load",
		Example: "  tensord plan --device-cap 0=8.6 resnet50",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := registry.LoadRepository(opts.cfg.ModelRepository)
			if err != nil && len(entries) == 0 {
				return err
			}
			if err != nil {
				opts.log.Warn().Err(err).Msg("some models could not be read")
			}
			caps, err := capabilities(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			plans, err := buildPlans(entries, args, caps)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plans)
			}
			return printPlans(cmd.OutOrStdout(), plans)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

// buildPlans resolves the named models, or all of them when names is empty.
func buildPlans(entries []types.ModelEntry, names []string, caps backend.CapabilityLookup) ([]modelPlan, error) {
	selected := entries
	if len(names) > 0 {
		selected = make([]types.ModelEntry, 0, len(names))
		for _, n := range names {
			e, ok := registry.Find(entries, n)
			if !ok {
				return nil, fmt.Errorf("model not found: %s", n)
			}
			selected = append(selected, e)
		}
	}
	plans := make([]modelPlan, 0, len(selected))
	for _, e := range selected {
		specs, err := backend.Resolve(e.Config, caps, e.Artifacts)
		p := modelPlan{Model: e.Config.Name, Instances: specs}
		if err != nil {
			p.Error = err.Error()
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func printPlans(w io.Writer, plans []modelPlan) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tINSTANCE\tKIND\tDEVICE\tCAPABILITY\tARTIFACT")
	for _, p := range plans {
		for _, s := range p.Instances {
			dev, cc := "-", "-"
			if s.Kind == types.KindGPU {
				dev, cc = fmt.Sprint(s.Device), s.Capability
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.Model, s.Name, s.Kind, dev, cc, s.Artifact)
		}
		if p.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\terror: %s\n", p.Model, p.Error)
		}
	}
	return tw.Flush()
}
