package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/link/goble"
	"github.com/srg/plantmon/pkg/config"
)

// newTransport builds the radio transport; tests swap it for a fake.
var newTransport = func(cfg *config.Config, logger *logrus.Logger) link.Transport {
	return goble.NewTransport(capabilityChecker(cfg), logger)
}

// capabilityChecker picks the grant source; tests swap it.
var capabilityChecker = func(cfg *config.Config) link.CapabilityChecker {
	if cfg.Capabilities.AssumeGranted {
		return link.GrantAll()
	}
	return goble.NewCapabilityChecker()
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for plant sensors",
	Long: `Scan for Bluetooth Low Energy plant sensors in the vicinity.

A peripheral is listed when its advertised name contains the configured
name filter or it advertises the sensor service. Use --all to list every
advertising peripheral.`,
	RunE: runScan,
}

var (
	scanTimeout time.Duration
	scanFormat  string
	scanAll     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanTimeout, "timeout", "t", 0, "Scan duration (defaults to scan_timeout from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "List every peripheral, not only plant sensors")
}

type scanEntry struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	RSSI     int       `json:"rssi"`
	Services []string  `json:"services,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	timeout := cfg.ScanTimeout
	if scanTimeout > 0 {
		timeout = scanTimeout
	}

	filter := link.ScanFilter{}
	if !scanAll {
		filter.NameContains = cfg.Peripheral.NameFilter
		if cfg.Peripheral.ServiceUUID != "" {
			filter.ServiceUUIDs = []string{cfg.Peripheral.ServiceUUID}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for plant sensors", "Scanning", timeout)
	progress.Start()
	entries, err := collectPeripherals(ctx, newTransport(cfg, logger), filter, timeout, logger)
	progress.Stop()
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return displayPeripheralsJSON(out, entries)
	}
	return displayPeripheralsTable(out, entries)
}

// collectPeripherals scans for timeout and returns one entry per address,
// sorted by name. Ctrl+C ends the scan early without an error.
func collectPeripherals(ctx context.Context, t link.Transport, filter link.ScanFilter, timeout time.Duration, logger *logrus.Logger) ([]scanEntry, error) {
	seen := make(map[string]scanEntry)
	for p, err := range link.Discover(ctx, t, filter, timeout) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.WithError(err).Error("Scan failed")
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"address": p.Address,
			"name":    p.Name,
			"rssi":    p.RSSI,
		}).Debug("Peripheral discovered")
		seen[strings.ToLower(p.Address)] = scanEntry{
			Address:  p.Address,
			Name:     p.Name,
			RSSI:     p.RSSI,
			Services: p.Services,
			LastSeen: time.Now(),
		}
	}

	entries := make([]scanEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Address < entries[j].Address
	})
	return entries, nil
}

func displayPeripheralsTable(out io.Writer, entries []scanEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No plant sensors discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, e := range entries {
		name := e.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(e.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		lastSeen := time.Since(e.LastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, e.Address, e.RSSI, services, lastSeen)
	}

	return w.Flush()
}

func displayPeripheralsJSON(out io.Writer, entries []scanEntry) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
