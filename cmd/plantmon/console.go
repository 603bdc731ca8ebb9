package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/sensor"
	"github.com/srg/plantmon/internal/store"
	"golang.org/x/term"
)

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// console prints pipeline events as they arrive.
type console struct {
	mu       sync.Mutex
	out      io.Writer
	alert    *color.Color
	healthy  *color.Color
	degraded *color.Color
	failed   *color.Color
	dim      *color.Color
}

func newConsole(out io.Writer, colored bool) *console {
	c := &console{
		out:      out,
		alert:    color.New(color.FgRed, color.Bold),
		healthy:  color.New(color.FgGreen),
		degraded: color.New(color.FgYellow),
		failed:   color.New(color.FgRed),
		dim:      color.New(color.Faint),
	}
	for _, col := range []*color.Color{c.alert, c.healthy, c.degraded, c.failed, c.dim} {
		if colored {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func (c *console) OnSample(s sensor.Sample) {
	parts := make([]string, 0, len(sensor.Metrics))
	for _, m := range sensor.Metrics {
		parts = append(parts, fmt.Sprintf("%s %s", m.Label(), m.Format(m.Value(s))))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim.Fprint(c.out, s.Time().Format("15:04:05"))
	fmt.Fprintf(c.out, "  %s\n", strings.Join(parts, "  "))
}

func (c *console) OnAlert(e alert.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alert.Fprintf(c.out, "ALERT %s\n", e)
}

func (c *console) OnConnectionStateChanged(st link.ConnectionState) {
	col := c.dim
	switch {
	case st.Degraded():
		col = c.degraded
	case st.State == link.Streaming:
		col = c.healthy
	case st.State == link.Failed:
		col = c.failed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	col.Fprintf(c.out, "state: %s\n", st)
}

func (c *console) OnReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim.Fprintln(c.out, "history cleared")
}

// printSummary writes the current readout and the recent alerts.
func printSummary(out io.Writer, st *store.Store, alerts []alert.Event, dropped uint64) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Samples: %d received, %d/%d kept\n", st.Appended(), st.Len(), st.Cap())
	for _, m := range sensor.Metrics {
		fmt.Fprintf(out, "  %-12s %s\n", m.Label()+":", st.Current(m))
	}
	if dropped > 0 {
		fmt.Fprintf(out, "Dropped frames: %d\n", dropped)
	}
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts")
		return
	}
	fmt.Fprintf(out, "Alerts (%d):\n", len(alerts))
	for _, e := range alerts {
		fmt.Fprintf(out, "  %s %s\n", time.UnixMilli(e.Timestamp).Format("15:04:05"), e)
	}
}
