// Package cli holds the flag and session plumbing shared by the binaries.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/KyungWonPark/GroupICA/internal/config"
	"github.com/KyungWonPark/GroupICA/internal/diag"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Common are the flags every binary accepts.
type Common struct {
	ConfigPath string
	SaveConfig string
	EnvFile    string
	LogLevel   string
	Yes        bool
	NoColor    bool

	session *Session
}

// Bind registers the common flags on cmd.
func (c *Common) Bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&c.ConfigPath, "config", "", "YAML configuration file")
	flags.StringVar(&c.SaveConfig, "save-config", "", "write the effective configuration to this YAML file after a successful run")
	flags.StringVar(&c.EnvFile, "env-file", ".env", "dotenv file with GICA_* overrides")
	flags.StringVar(&c.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVarP(&c.Yes, "yes", "y", false, "create missing output directories without asking")
	flags.BoolVar(&c.NoColor, "no-color", false, "disable colored output")
}

// Session is the per-run state of a binary.
type Session struct {
	Cfg  *config.Config
	Log  *log.Logger
	Diag *diag.Collector
	yes  bool
}

// Open loads the configuration and applies the common flags the user set.
func (c *Common) Open(cmd *cobra.Command) (*Session, error) {
	cfg, err := config.Load(c.ConfigPath, c.EnvFile)
	if err != nil {
		return nil, err
	}
	Override(cmd, "log-level", &cfg.LogLevel, c.LogLevel)
	if c.NoColor {
		cfg.Color = false
	}

	c.session = &Session{
		Cfg:  cfg,
		Log:  diag.NewLogger(cfg.LogLevel, cfg.Color),
		Diag: diag.NewCollector(),
		yes:  c.Yes,
	}
	return c.session, nil
}

// EnsureDir asks before creating a missing output directory.
func (s *Session) EnsureDir(dir string) error {
	return config.EnsureDir(dir, os.Stdin, os.Stdout, s.yes)
}

// Override stores val in dst when the flag name was given on the command line.
func Override[T any](cmd *cobra.Command, name string, dst *T, val T) {
	if cmd.Flags().Changed(name) {
		*dst = val
	}
}

// Execute runs root until it returns or the process is interrupted, prints
// the warnings digest and exits 1 on error.
func Execute(root *cobra.Command, c *Common) {
	root.SilenceErrors = true
	root.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()

	if code := finish(err, c, os.Stdout, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// finish saves the effective configuration when asked, prints the warnings
// digest and the error, and returns the exit code.
func finish(err error, c *Common, stdout, stderr io.Writer) int {
	if err == nil && c.SaveConfig != "" && c.session != nil {
		err = config.SaveConfig(c.session.Cfg, c.SaveConfig)
	}

	colored := !c.NoColor
	if c.session != nil {
		colored = c.session.Cfg.Color
		c.session.Diag.Flush(stdout, colored)
	}

	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, diag.Paint(colored, color.FgRed).Sprintf("Error: %v", err))
	return 1
}
