// Package diag collects non-fatal warnings during a run and sets up logging.
package diag

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

const bannerWidth = 30

// Warning is one captured non-fatal condition.
type Warning struct {
	Category string
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Category, w.Message)
}

// Collector accumulates warnings for a single run. It is passed by reference to
// every I/O call and drained once by the binary at the end. A nil *Collector
// discards everything.
type Collector struct {
	lock     sync.Mutex
	warnings []Warning
}

// NewCollector returns an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Warn records a warning. Duplicates are kept.
func (c *Collector) Warn(category string, format string, args ...interface{}) {
	if c == nil {
		return
	}

	c.lock.Lock()
	c.warnings = append(c.warnings, Warning{Category: category, Message: fmt.Sprintf(format, args...)})
	c.lock.Unlock()
}

// Warnings returns a copy of the captured warnings in capture order.
func (c *Collector) Warnings() []Warning {
	if c == nil {
		return nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Len returns the number of captured warnings.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.warnings)
}

// Flush writes the warnings digest to w and empties the collector. Nothing is
// written when no warning was captured.
func (c *Collector) Flush(w io.Writer, colored bool) {
	if c == nil {
		return
	}

	c.lock.Lock()
	warnings := c.warnings
	c.warnings = nil
	c.lock.Unlock()

	if len(warnings) == 0 {
		return
	}

	banner := strings.Repeat("-", bannerWidth) + " WARNING " + strings.Repeat("-", bannerWidth)

	fmt.Fprintln(w)
	fmt.Fprintln(w, Paint(colored, color.FgYellow).Sprint(banner))
	for _, warning := range warnings {
		fmt.Fprintln(w, warning.String())
	}
}

// Paint returns a printer for attr. Colors are on exactly when enabled is
// true, whatever the terminal.
func Paint(enabled bool, attr color.Attribute) *color.Color {
	c := color.New(attr)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
