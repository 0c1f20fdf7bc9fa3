package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tinyrange/cpucheck/internal/kconfig"
	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw/profile"
)

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in processor profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range profile.Catalog() {
				p, err := profile.Builtin(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\tfamily %d model %#x\n", name, p.Vendor, p.Family, p.Model)
			}
			return w.Flush()
		},
	}
}

func buildsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "builds",
		Short: "List the built-in build presets and what they require",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range kconfig.Presets() {
				b, _ := kconfig.Preset(name)
				fmt.Fprintf(w, "%s\tfamily %d\t%s\n", name, b.MinimumFamily, b.RequiredFeatures())
			}
			return w.Flush()
		},
	}
}

func featuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the capability names and where CPUID reports them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, f := range cpufeature.Named() {
				src := cpufeature.Sources[f.Word()]
				fmt.Fprintf(w, "%s\t%d:%d\tleaf %#x.%d %s bit %d\n",
					f, f.Word(), f.Bit(), src.Leaf, src.Subleaf, src.Register, f.Bit())
			}
			return w.Flush()
		},
	}
}
