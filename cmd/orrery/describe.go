package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDescribeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe <body>",
		Short: "Print a body's physical and orbital parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			sim, err := buildSimulation(cfg, log)
			if err != nil {
				return err
			}
			info, err := sim.engine.Describe(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(out, "Name:     %s\n", info.Name)
			fmt.Fprintf(out, "Kind:     %s\n", info.Kind)
			if info.Parent != "" {
				fmt.Fprintf(out, "Orbits:   %s\n", info.Parent)
			}
			fmt.Fprintf(out, "Mass:     %s\n", info.Mass)
			fmt.Fprintf(out, "Radius:   %s\n", info.Radius)
			fmt.Fprintf(out, "Distance: %s\n", info.Distance)
			fmt.Fprintf(out, "Period:   %s\n", info.Period)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
