package check

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/cpucheck/internal/kconfig"
	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

var (
	ErrMissingCapability    = errors.New("required CPU capability missing")
	ErrInsufficientLevel    = errors.New("CPU level below build minimum")
	ErrUnrecoverableErratum = errors.New("CPU affected by unrecoverable erratum")
)

// MissingError lists the required capabilities the processor lacks.
type MissingError struct {
	Missing cpufeature.Set
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingCapability, e.Missing)
}

func (e *MissingError) Unwrap() error { return ErrMissingCapability }

// Outcome is the result of one validation run.
type Outcome struct {
	Passed        bool
	Level         Level
	RequiredLevel Level

	// Missing is only set when the run failed because required
	// capabilities are absent.
	Missing *cpufeature.Set

	// Remedy names the vendor remedy that ran, if any.
	Remedy string
	// Erratum names the erratum that vetoed the processor, if any.
	Erratum string

	Err error
}

// Config configures a Validator. Port and Build are required.
type Config struct {
	Port        hw.Port
	Build       kconfig.Build
	CommandLine CommandLine
	Console     Console
	Logger      *slog.Logger

	// Remedies and Errata default to DefaultRemedies and DefaultErrata.
	Remedies []Remedy
	Errata   []Erratum
}

// Validator decides whether the processor behind a port can run a build.
// A Validator is not safe for concurrent use.
type Validator struct {
	cfg      Config
	required cpufeature.Set
	minLevel Level
	state    State
}

func New(cfg Config) (*Validator, error) {
	if cfg.Port == nil {
		return nil, errors.New("check: hardware port is required")
	}
	if err := cfg.Build.Validate(); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	if cfg.CommandLine == nil {
		cfg.CommandLine = noOptions{}
	}
	if cfg.Console == nil {
		cfg.Console = discardConsole{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Remedies == nil {
		cfg.Remedies = DefaultRemedies
	}
	if cfg.Errata == nil {
		cfg.Errata = DefaultErrata
	}

	return &Validator{
		cfg:      cfg,
		required: cfg.Build.RequiredFeatures(),
		minLevel: Level(cfg.Build.MinimumFamily),
	}, nil
}

// Required returns the capabilities the build needs.
func (v *Validator) Required() cpufeature.Set { return v.required }

// State returns the snapshot of the last run.
func (v *Validator) State() State { return v.state }

// Run probes the processor from scratch and validates it.
func (v *Validator) Run() Outcome {
	log := v.cfg.Logger
	port := v.cfg.Port
	s := &v.state

	s.Reset()
	if port.HasEFlag(hw.EFlagsAC) {
		s.raise(Level486)
	}

	Probe(port, s)
	missing, summary := Check(s.Flags, v.required)
	if s.Flags.Has(cpufeature.LM) {
		s.raise(Level64)
	}

	log.Debug("cpu probed",
		"vendor", s.VendorString(), "family", s.Family, "model", s.Model,
		"level", s.Level, "summary", fmt.Sprintf("%#x", uint32(summary)))

	out := Outcome{RequiredLevel: v.minLevel}

	if summary != 0 {
		env := &Env{
			Port:        port,
			State:       s,
			Required:    v.required,
			Missing:     missing,
			Summary:     summary,
			CommandLine: v.cfg.CommandLine,
			Console:     v.cfg.Console,
		}
		if name := Remediate(env, v.cfg.Remedies); name != "" {
			log.Info("applied cpu remedy",
				"remedy", name, "vendor", s.Vendor, "model", s.Model,
				"before", fmt.Sprintf("%#x", uint32(summary)),
				"after", fmt.Sprintf("%#x", uint32(env.Summary)))
			out.Remedy = name
		}
		missing, summary = env.Missing, env.Summary
	}

	var errs []error
	if summary == 0 {
		if e := findErratum(v.cfg.Errata, s, v.cfg.Build); e != nil {
			for _, line := range e.Message {
				v.cfg.Console.PrintLine(line)
			}
			out.Erratum = e.Name
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnrecoverableErratum, e.Name))
		}
	}

	out.Level = s.Level
	if s.Level < v.minLevel {
		errs = append(errs, fmt.Errorf("%w: have %s, need %s", ErrInsufficientLevel, s.Level, v.minLevel))
	}
	if summary != 0 {
		m := missing
		out.Missing = &m
		errs = append(errs, &MissingError{Missing: m})
	}

	out.Err = errors.Join(errs...)
	out.Passed = out.Err == nil
	if !out.Passed {
		log.Warn("cpu rejected", "error", out.Err)
	}
	return out
}
