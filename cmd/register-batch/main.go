package main

import (
	"fmt"
	"os"

	"github.com/KyungWonPark/GroupICA/internal/cli"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/KyungWonPark/GroupICA/internal/register"
	"github.com/spf13/cobra"
)

func main() {
	var common cli.Common
	var workers int
	var outputDir, antsPath, tmpDir, failureLog string
	var registeredAffine bool

	cmd := &cobra.Command{
		Use:   "register-batch <input_dir> <template_file>",
		Short: "Register every .nii.gz series of a directory to a template",
		Long: `Register every *.nii.gz file of input_dir, one subject at a time, into
registered_<input_dir> (or --output-dir). Failed inputs are listed in the
failure log.

Example: register-batch input t1-template.nii.gz --workers 4`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := common.Open(cmd)
			if err != nil {
				return err
			}
			cfg := s.Cfg
			cli.Override(cmd, "workers", &cfg.Workers, workers)
			cli.Override(cmd, "output-dir", &cfg.Register.OutputDir, outputDir)
			cli.Override(cmd, "ants-path", &cfg.Register.ANTsBinDir, antsPath)
			cli.Override(cmd, "tmpdir", &cfg.Register.TempDir, tmpDir)
			cli.Override(cmd, "failure-log", &cfg.Register.FailureLog, failureLog)
			cli.Override(cmd, "registered-affine", &cfg.Register.UseRegisteredAffine, registeredAffine)

			inputDir, template := args[0], args[1]
			if info, err := os.Stat(inputDir); err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a directory", inputDir)
			}
			if info, err := os.Stat(template); err != nil || info.IsDir() {
				return fmt.Errorf("%w: %s does not exist or is not a file", errs.ErrMissingResource, template)
			}

			out := cfg.Register.OutputDir
			if out == "" {
				out = register.DefaultOutputDir(inputDir)
			}

			engine := &register.ANTs{BinDir: cfg.Register.ANTsBinDir, Threads: cfg.Workers, Log: s.Log}
			if err := engine.CheckTools(); err != nil {
				return err
			}

			d := &register.Driver{
				Engine:              engine,
				Workers:             cfg.Workers,
				Log:                 s.Log,
				Diag:                s.Diag,
				TempDir:             cfg.Register.TempDir,
				UseRegisteredAffine: cfg.Register.UseRegisteredAffine,
			}
			report, err := d.RegisterBatch(cmd.Context(), inputDir, out, template)
			if werr := register.WriteFailures(cfg.Register.FailureLog, report); werr != nil {
				s.Diag.Warn("FailureLogWarning", "could not write %s: %v", cfg.Register.FailureLog, werr)
			}
			if err != nil {
				return err
			}

			if failed := report.Failed(); len(failed) > 0 {
				s.Log.Warnf("Registration completed with %d errors. See %s for details.", len(failed), cfg.Register.FailureLog)
				return nil
			}
			s.Log.Info("Registration complete, thanks for waiting!")
			return nil
		},
	}

	common.Bind(cmd)
	flags := cmd.Flags()
	flags.IntVarP(&workers, "workers", "j", 0, "concurrent per-volume warps, all CPUs when 0")
	flags.StringVarP(&outputDir, "output-dir", "o", "", "output directory, registered_<input_dir> when empty")
	flags.StringVar(&antsPath, "ants-path", "", "directory of the ANTs binaries, $PATH when empty")
	flags.StringVar(&tmpDir, "tmpdir", "", "parent of the scratch directories")
	flags.StringVar(&failureLog, "failure-log", register.FailureLog, "file listing inputs that failed")
	flags.BoolVar(&registeredAffine, "registered-affine", false, "write merged series with the registered affine")

	cli.Execute(cmd, &common)
}
