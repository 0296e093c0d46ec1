package main

import (
	"github.com/KyungWonPark/GroupICA/internal/cli"
	"github.com/KyungWonPark/GroupICA/internal/io"
	"github.com/spf13/cobra"
)

func main() {
	var common cli.Common

	cmd := &cobra.Command{
		Use:   "npy2csv <file.npy>",
		Short: "Convert a 2D .npy array to <file.npy>.csv",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := common.Open(cmd)
			if err != nil {
				return err
			}
			fileName := args[0]

			npyFile, err := io.NpytoMat64(fileName)
			if err != nil {
				return err
			}
			rows, cols := npyFile.Dims()
			s.Log.Infof("Reading npy file complete: (%d, %d)", rows, cols)

			if err := io.Mat64toCSV(fileName+".csv", npyFile); err != nil {
				return err
			}
			s.Log.Infof("Saved %s.csv", fileName)
			return nil
		},
	}

	common.Bind(cmd)
	cli.Execute(cmd, &common)
}
