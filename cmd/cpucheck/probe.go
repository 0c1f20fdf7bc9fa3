package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/cpucheck/internal/x86/check"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

type snapshot struct {
	Vendor   string   `yaml:"vendor"`
	Class    string   `yaml:"class"`
	Family   int      `yaml:"family"`
	Model    int      `yaml:"model"`
	Level    string   `yaml:"level"`
	Features []string `yaml:"features"`
}

func probeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print what the probe sees on the processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd, g.logLevel)
			port, closePort, err := openPort(g.cpu, g.allowMSRWrites, log)
			if err != nil {
				return err
			}
			defer closePort()
			if g.trace {
				port = hw.Traced(port, log)
			}

			var s check.State
			s.Reset()
			if port.HasEFlag(hw.EFlagsAC) {
				s.Level = check.Level486
			}
			check.Probe(port, &s)

			snap := snapshot{
				Vendor: s.VendorString(),
				Class:  s.Vendor.String(),
				Family: s.Family,
				Model:  s.Model,
				Level:  s.Level.Name(),
			}
			for _, f := range s.Flags.Features() {
				snap.Features = append(snap.Features, f.String())
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(snap); err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			return enc.Close()
		},
	}
}
