package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KyungWonPark/GroupICA/internal/errs"
)

// EnsureDir creates dir when it is missing. Unless assumeYes is set the user
// is asked on out and answers on in; anything but y returns ErrAborted.
func EnsureDir(dir string, in io.Reader, out io.Writer, assumeYes bool) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	if !assumeYes {
		fmt.Fprintf(out, "Output directory %s does not exist. Do you want to create it? (y/n): ", dir)
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			return fmt.Errorf("%w: output directory %s does not exist and user chose not to create it", errs.ErrAborted, dir)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	fmt.Fprintf(out, "Output directory '%s' created.\n", dir)
	return nil
}
