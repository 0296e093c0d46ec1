package main

import (
	"github.com/KyungWonPark/GroupICA/internal/calc"
	"github.com/KyungWonPark/GroupICA/internal/cli"
	"github.com/KyungWonPark/GroupICA/internal/extract"
	"github.com/KyungWonPark/GroupICA/internal/timeseries"
	"github.com/spf13/cobra"
)

func main() {
	var common cli.Common
	var (
		groupICADir, outDir, maskFile, dataDir, suffix string
		standardize, failureLog                        string
		startIdx, workers                              int
		trim                                           []int
		netmat, csv                                    bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Dual regression and connectivity map extraction for resting state fMRI",
		Long: `Extract per-subject features from resting state fMRI.

Every file of the data directory is masked with the conformed mask written by
"mask", standardized, detrended and run through dual regression against the
masked group ICA map (<group-ica-dir>/output/melodic_IC_masked.npy). The
weighted seed-to-voxel maps are saved as <outdir>/<subject>_<suffix>.npy.

Subjects whose output already exists are skipped; failing subjects are
appended to the failure log so a later run can restart with --start-idx.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := common.Open(cmd)
			if err != nil {
				return err
			}
			cfg := s.Cfg
			x := &cfg.Extract

			cli.Override(cmd, "group-ica-dir", &x.GroupICADir, groupICADir)
			cli.Override(cmd, "outdir", &x.OutDir, outDir)
			cli.Override(cmd, "mask-file", &x.MaskFile, maskFile)
			cli.Override(cmd, "rs-data-dir", &x.RSDataDir, dataDir)
			cli.Override(cmd, "rs-output-file", &x.RSOutputFile, suffix)
			cli.Override(cmd, "start-idx", &x.StartIdx, startIdx)
			cli.Override(cmd, "standardize", &x.Standardize, standardize)
			cli.Override(cmd, "trim", &x.Trim, trim)
			cli.Override(cmd, "netmat", &x.Netmat, netmat)
			cli.Override(cmd, "csv", &x.CSV, csv)
			cli.Override(cmd, "failure-log", &x.FailureLog, failureLog)
			cli.Override(cmd, "workers", &cfg.Workers, workers)

			mode, err := timeseries.ParseMode(x.Standardize)
			if err != nil {
				return err
			}

			if err := s.EnsureDir(x.OutDir); err != nil {
				return err
			}

			e, err := extract.New(extract.Options{
				GroupICADir: x.GroupICADir,
				MaskFile:    x.MaskFile,
				DataDir:     x.RSDataDir,
				OutDir:      x.OutDir,
				Suffix:      x.RSOutputFile,
				StartIdx:    x.StartIdx,
				Standardize: mode,
				Trim:        x.Trim,
				Netmat:      x.Netmat,
				CSV:         x.CSV,
				FailureLog:  x.FailureLog,
			}, calc.Init(cfg.Workers), s.Log, s.Diag)
			if err != nil {
				return err
			}
			s.Log.Info("Successfully loaded mask and group ICA map.")

			report, err := e.Run(cmd.Context())
			report.Log(s.Log)
			return err
		},
	}

	common.Bind(cmd)
	flags := cmd.Flags()
	flags.StringVar(&groupICADir, "group-ica-dir", "registered_input", "directory holding output/melodic_IC_masked.npy")
	flags.StringVar(&outDir, "outdir", "out-features", "feature output directory")
	flags.IntVar(&startIdx, "start-idx", 0, "position in the sorted subject list to start from")
	flags.StringVar(&maskFile, "mask-file", "metadata/mask_IC.nii.gz", "conformed mask written by mask")
	flags.StringVar(&dataDir, "rs-data-dir", "rs_data", "directory with the resting state data")
	flags.StringVar(&suffix, "rs-output-file", "features_42_comps", "name suffix of the feature files")
	flags.IntVarP(&workers, "workers", "j", 0, "compute workers, all CPUs when 0")
	flags.StringVar(&standardize, "standardize", "voxel", "z-score axis: voxel or timepoint")
	flags.IntSliceVar(&trim, "trim", nil, "time indices to keep, all when empty")
	flags.BoolVar(&netmat, "netmat", false, "also save the component network matrix")
	flags.BoolVar(&csv, "csv", false, "also save the features as CSV")
	flags.StringVar(&failureLog, "failure-log", "corrupted_files.txt", "file failing subjects are appended to")

	cli.Execute(cmd, &common)
}
