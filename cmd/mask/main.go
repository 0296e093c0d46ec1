package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/KyungWonPark/GroupICA/internal/cli"
	"github.com/KyungWonPark/GroupICA/internal/errs"
	"github.com/KyungWonPark/GroupICA/internal/extract"
	"github.com/KyungWonPark/GroupICA/internal/io"
	"github.com/KyungWonPark/GroupICA/internal/mask"
	"github.com/KyungWonPark/GroupICA/internal/nifti"
	"github.com/spf13/cobra"
)

func main() {
	var common cli.Common
	var groupICADir, outMaskDir, maskFile string

	cmd := &cobra.Command{
		Use:   "mask",
		Short: "Create the component mask and mask the group ICA map",
		Long: `Resample the reference mask onto the grid of
<group-ica-dir>/output/melodic_IC.nii.gz, binarize it and apply it.

The masked map is saved as <group-ica-dir>/output/melodic_IC_masked.npy
(components by voxels) and the conformed mask as <out-mask-dir>/mask_IC.nii.gz
for reuse by extract.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := common.Open(cmd)
			if err != nil {
				return err
			}
			m := &s.Cfg.Mask
			cli.Override(cmd, "group-ica-dir", &m.GroupICADir, groupICADir)
			cli.Override(cmd, "out-mask-dir", &m.OutMaskDir, outMaskDir)
			cli.Override(cmd, "mask-file", &m.MaskFile, maskFile)

			if err := s.EnsureDir(m.OutMaskDir); err != nil {
				return err
			}
			if info, err := os.Stat(m.GroupICADir); err != nil || !info.IsDir() {
				return fmt.Errorf("%w: %s is not a directory", errs.ErrMissingResource, m.GroupICADir)
			}

			s.Log.Infof("Loading mask file %s...", m.MaskFile)
			ref, err := nifti.Load(m.MaskFile, s.Diag)
			if err != nil {
				return fmt.Errorf("%w: %w", errs.ErrMissingResource, err)
			}
			icaPath := filepath.Join(m.GroupICADir, "output", "melodic_IC.nii.gz")
			ica, err := nifti.Load(icaPath, s.Diag)
			if err != nil {
				return fmt.Errorf("%w: %w", errs.ErrMissingResource, err)
			}

			s.Log.Infof("Applying transformed mask %v to image %v...", ica.Dims(), ica.Shape)
			masked, conformed, err := mask.BuildMask(ref, ica)
			if err != nil {
				return err
			}
			rows, cols := masked.Dims()
			s.Log.Infof("Shape of masked image: (%d, %d)", rows, cols)

			if err := io.Mat64toNpy(extract.ComponentsPath(m.GroupICADir), masked); err != nil {
				return err
			}

			out := filepath.Join(m.OutMaskDir, "mask_IC.nii.gz")
			s.Log.Infof("Saving mask to %s...", out)
			if err := nifti.Save(conformed, out); err != nil {
				return err
			}

			s.Log.Info("Finished creating mask and masking group ICA map.")
			return nil
		},
	}

	common.Bind(cmd)
	flags := cmd.Flags()
	flags.StringVar(&groupICADir, "group-ica-dir", "registered_input", "directory holding output/melodic_IC.nii.gz")
	flags.StringVar(&outMaskDir, "out-mask-dir", "metadata", "directory for mask_IC.nii.gz")
	flags.StringVar(&maskFile, "mask-file", "metadata/mask_ga_40.nii.gz", "reference brain mask")

	cli.Execute(cmd, &common)
}
