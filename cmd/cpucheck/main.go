// Command cpucheck runs the boot time processor capability check against the
// host processor, a KVM virtual CPU or a processor profile.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyrange/cpucheck/internal/bootcmd"
	"github.com/tinyrange/cpucheck/internal/console"
	"github.com/tinyrange/cpucheck/internal/kconfig"
	"github.com/tinyrange/cpucheck/internal/metrics"
	"github.com/tinyrange/cpucheck/internal/x86/check"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

const (
	Version = "0.1.0"
	appName = "cpucheck"
)

// errRejected is returned when the processor cannot run the build.
var errRejected = errors.New("processor rejected")

func main() {
	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	cpu            string
	logLevel       string
	allowMSRWrites bool
	trace          bool
}

type runFlags struct {
	build       string
	cmdline     string
	metricsFile string
}

func rootCmd() *cobra.Command {
	var (
		g globalFlags
		r runFlags
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Check whether a processor can run a kernel build",
		Long: `cpucheck probes a processor the way the kernel setup code does before
leaving real mode: it reads the identification and capability words, compares
them with what the build requires, applies the known vendor workarounds for
capabilities that are present but disabled, and rejects processors with errata
the build cannot run on.

The processor is the host (--cpu host), a KVM virtual CPU (--cpu kvm), a
built-in profile (see "cpucheck profiles") or a YAML profile file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, g, r)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.cpu, "cpu", "host", "Processor to check: host, kvm, a profile name or a profile file")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVar(&g.allowMSRWrites, "allow-msr-writes", false, "Let remedies write real MSRs on the host")
	pf.BoolVar(&g.trace, "trace", false, "Log every hardware access")

	cmd.Flags().StringVarP(&r.build, "build", "b", "x86_64", "Build preset name or build YAML file")
	cmd.Flags().StringVar(&r.cmdline, "cmdline", "", "Kernel command line (for example \"forcepae\")")
	cmd.Flags().StringVar(&r.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

	cmd.AddCommand(probeCmd(&g))
	cmd.AddCommand(profilesCmd())
	cmd.AddCommand(buildsCmd())
	cmd.AddCommand(featuresCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func newLogger(cmd *cobra.Command, level string) *slog.Logger {
	l := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: l}))
}

func runCheck(cmd *cobra.Command, g globalFlags, r runFlags) error {
	line := bootcmd.Parse(r.cmdline)
	out := newConsole(cmd)

	// The setup code announces its console when booted with "debug".
	if line.HasOption("debug") {
		out.PrintLine("early console in setup code")
		g.logLevel = "debug"
	}
	log := newLogger(cmd, g.logLevel)

	build, err := kconfig.Resolve(r.build)
	if err != nil {
		return err
	}

	port, closePort, err := openPort(g.cpu, g.allowMSRWrites, log)
	if err != nil {
		return err
	}
	defer closePort()
	if g.trace {
		port = hw.Traced(port, log)
	}

	v, err := check.New(check.Config{
		Port:        port,
		Build:       build,
		CommandLine: line,
		Console:     out,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	o := v.Run()
	elapsed := time.Since(start)

	if r.metricsFile != "" {
		m := metrics.New()
		m.Observe(o, v.State(), elapsed)
		if err := m.WriteTextfile(r.metricsFile); err != nil {
			return err
		}
	}

	if !o.Passed {
		check.Report(out, o)
		out.PrintLine(check.BootFailureMessage)
		return errRejected
	}
	log.Info("processor accepted", "build", build.Name, "level", o.Level, "remedy", o.Remedy)
	return nil
}

func newConsole(cmd *cobra.Command) console.Console {
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		return console.Terminal(f)
	}
	return console.New(cmd.OutOrStdout())
}
