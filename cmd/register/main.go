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
	var antsPath, tmpDir string
	var registeredAffine bool

	cmd := &cobra.Command{
		Use:   "register <input_nifti_file> <output_nifti_file> <template_nifti_file>",
		Short: "Register a 4D fMRI series to a template",
		Long: `Estimate one SyN transform from the mean volume of the input to the template
and apply it to every time point.

Example: register input.nii.gz output.nii.gz template.nii.gz --workers 4`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := common.Open(cmd)
			if err != nil {
				return err
			}
			cfg := s.Cfg
			cli.Override(cmd, "workers", &cfg.Workers, workers)
			cli.Override(cmd, "ants-path", &cfg.Register.ANTsBinDir, antsPath)
			cli.Override(cmd, "tmpdir", &cfg.Register.TempDir, tmpDir)
			cli.Override(cmd, "registered-affine", &cfg.Register.UseRegisteredAffine, registeredAffine)

			input, output, template := args[0], args[1], args[2]
			if _, err := os.Stat(template); err != nil {
				return fmt.Errorf("%w: template: %w", errs.ErrMissingResource, err)
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
			if err := d.RegisterSubject(cmd.Context(), input, output, template); err != nil {
				return err
			}

			s.Log.Info("Done! Thanks for the wait!")
			return nil
		},
	}

	common.Bind(cmd)
	flags := cmd.Flags()
	flags.IntVarP(&workers, "workers", "j", 0, "concurrent per-volume warps, all CPUs when 0")
	flags.StringVar(&antsPath, "ants-path", "", "directory of the ANTs binaries, $PATH when empty")
	flags.StringVar(&tmpDir, "tmpdir", "", "parent of the scratch directory")
	flags.BoolVar(&registeredAffine, "registered-affine", false, "write the merged series with the registered affine")

	cli.Execute(cmd, &common)
}
