// Command nanraster generates and verifies bilinear-interpolation fixtures
// that exercise missing-data handling across sample encodings and byte
// orders.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lattice-substrate/nanraster/nrconfig"
	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrfixture"
	"github.com/lattice-substrate/nanraster/nrgen"
	"github.com/lattice-substrate/nanraster/nrlog"
	"github.com/lattice-substrate/nanraster/nrverify"
)

const exitSuccess = 0

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitSuccess
	}
	return writeClassifiedError(stderr, err)
}

// writeClassifiedError reports err and maps it to an exit code. Errors that
// carry no failure class come from argument parsing.
func writeClassifiedError(stderr io.Writer, err error) int {
	class := nrerr.CLIUsage
	var e *nrerr.Error
	if errors.As(err, &e) {
		class = e.Class
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return class.ExitCode()
}

// app carries what every subcommand needs once the root flags are parsed.
type app struct {
	stdout, stderr io.Writer

	configPath string
	dataDir    string
	logLevel   string
	logFormat  string
	verbose    bool

	cfg nrconfig.Config
	log *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "nanraster",
		Short:         "Generate and verify missing-data interpolation fixtures",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return nrerr.New(nrerr.CLIUsage, -1, "missing command")
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return nrerr.Wrap(nrerr.CLIUsage, -1, "flags", err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	pf.StringVar(&a.dataDir, "data-dir", "", "fixture directory (overrides config)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: auto, console, json")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newGenerateCmd(a),
		newVerifyCmd(a),
		newRunCmd(a),
		newPackCmd(a),
		newUnpackCmd(a),
		newCheckEvidenceCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := nrconfig.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = a.dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	log, _, err := nrlog.New(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) layout() nrfixture.Layout {
	return nrfixture.Layout{Dir: a.cfg.DataDir}
}

func newGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Write a fresh fixture set",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.generate(cmd.Context())
			return err
		},
	}
}

func (a *app) generate(ctx context.Context) (*nrfixture.Manifest, error) {
	g := &nrgen.Generator{Config: a.cfg, Logger: a.log}
	m, err := g.Generate(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.stdout, "generated %d files in %s (fingerprint %s)\n", len(m.Files), a.cfg.DataDir, m.Fingerprint)
	return m, nil
}

// verifyOptions are the verification overrides shared by verify and run.
type verifyOptions struct {
	kernel      string
	parallel    bool
	repetitions int
	evidence    string
}

func (o *verifyOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.kernel, "kernel", "", "interpolation kernel (overrides config)")
	f.BoolVar(&o.parallel, "parallel", false, "run the four lanes concurrently")
	f.IntVar(&o.repetitions, "repetitions", 0, "verification rounds (overrides config)")
	f.StringVar(&o.evidence, "evidence", "", "write a canonical JSON evidence record to this path")
}

func (o *verifyOptions) apply(cmd *cobra.Command, cfg *nrconfig.Config) error {
	f := cmd.Flags()
	if f.Changed("kernel") {
		cfg.Kernel = o.kernel
	}
	if f.Changed("parallel") {
		cfg.Parallel = o.parallel
	}
	if f.Changed("repetitions") {
		cfg.Repetitions = o.repetitions
	}
	return cfg.Validate()
}

func newVerifyCmd(a *app) *cobra.Command {
	var opts verifyOptions
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an existing fixture set across all lanes",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.apply(cmd, &a.cfg); err != nil {
				return err
			}
			m, err := nrfixture.ReadManifest(a.layout())
			if err != nil {
				return err
			}
			if !m.Matches(a.cfg.Fingerprint()) {
				a.log.Warn("fixtures were generated from a different configuration",
					zap.String("manifest", m.Fingerprint), zap.String("config", a.cfg.Fingerprint()))
			}
			return a.verify(cmd.Context(), m, opts.evidence)
		},
	}
	opts.bind(cmd)
	return cmd
}

func (a *app) verify(ctx context.Context, m *nrfixture.Manifest, evidencePath string) error {
	v := &nrverify.Verifier{Config: a.cfg, Logger: a.log}
	res, err := v.Run(ctx)
	if err != nil {
		return err
	}
	nrverify.PrintResult(a.stdout, res)
	if evidencePath != "" {
		if err := nrverify.WriteEvidence(evidencePath, nrverify.NewEvidence(a.cfg, m, res)); err != nil {
			return err
		}
		a.log.Info("evidence written", zap.String("path", evidencePath))
	}
	return res.Err()
}

func newRunCmd(a *app) *cobra.Command {
	var opts verifyOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate fixtures when missing or stale, then verify them",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.apply(cmd, &a.cfg); err != nil {
				return err
			}
			m, err := nrfixture.ReadManifest(a.layout())
			switch {
			case err != nil:
				a.log.Info("no usable fixtures, generating", zap.String("dir", a.cfg.DataDir), zap.Error(err))
				m = nil
			case !m.Matches(a.cfg.Fingerprint()):
				a.log.Info("fixtures are stale, regenerating", zap.String("dir", a.cfg.DataDir))
				m = nil
			}
			if m == nil {
				if m, err = a.generate(cmd.Context()); err != nil {
					return err
				}
			}
			return a.verify(cmd.Context(), m, opts.evidence)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newPackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pack <bundle>",
		Short: "Archive the fixture set into a zstd-compressed tar bundle",
		Args:  exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := nrfixture.Pack(a.layout(), args[0], a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "packed %d files into %s\n", len(m.Files), args[0])
			return nil
		},
	}
}

func newUnpackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unpack <bundle>",
		Short: "Restore a fixture set from a bundle and verify its manifest",
		Args:  exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := nrfixture.Unpack(args[0], a.layout(), a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "unpacked %d files into %s (fingerprint %s)\n", len(m.Files), a.cfg.DataDir, m.Fingerprint)
			return nil
		},
	}
}

func newCheckEvidenceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-evidence <file>",
		Short: "Validate a previously written evidence record",
		Args:  exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			e, err := nrverify.LoadEvidence(args[0])
			if err != nil {
				return err
			}
			if err := nrverify.ValidateEvidence(e); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "evidence %s is consistent\n", args[0])
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  noArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			if err != nil {
				return nrerr.Wrap(nrerr.IOError, -1, "write config", err)
			}
			return nil
		},
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	return exactArgs(0)(cmd, args)
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return nrerr.Newf(nrerr.CLIUsage, -1, "%s: expected %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}
