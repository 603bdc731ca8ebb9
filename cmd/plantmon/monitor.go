package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/plantmon/internal/connection"
	"github.com/srg/plantmon/internal/groutine"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/metrics"
	"github.com/srg/plantmon/internal/mqttsink"
	"github.com/srg/plantmon/internal/pipeline"
	"github.com/srg/plantmon/pkg/config"
)

const stopTimeout = 5 * time.Second

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream readings from a plant sensor",
	Long: `Connect to the first matching plant sensor, subscribe to its readings and
print every sample and alert until interrupted with Ctrl+C.

Failed attempts are retried up to retry.max_attempts times. Readings can be
exported on a Prometheus endpoint (--metrics-addr) and published to an MQTT
broker (--mqtt-broker). A summary of the kept history is printed on exit.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("name", "", "Advertised name substring to match (overrides peripheral.name_filter)")
	monitorCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	monitorCmd.Flags().String("mqtt-broker", "", "Publish readings to this MQTT broker, e.g. tcp://localhost:1883")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyMonitorFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	colored := false
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		colored = isTerminal(f)
	}

	err = monitor(ctx, cfg, cmd.OutOrStdout(), colored, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func applyMonitorFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.Peripheral.NameFilter = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v, _ := cmd.Flags().GetString("mqtt-broker"); v != "" {
		cfg.MQTT.Broker = v
	}
}

// monitor wires the pipeline and the connection machine, then supervises
// attempts until ctx is done or a failure is not worth retrying.
func monitor(ctx context.Context, cfg *config.Config, out io.Writer, colored bool, logger *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	p, err := pipeline.New(pipeline.Options{
		HistoryCapacity:  cfg.HistoryCapacity,
		AlertLogCapacity: cfg.AlertLogCapacity,
	}, pipeline.WithLogger(logger), pipeline.WithRejectObserver(collector))
	if err != nil {
		return err
	}
	p.Subscribe(collector)
	p.Subscribe(newConsole(out, colored))

	if cfg.MQTT.Broker != "" {
		client, err := mqttsink.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.ConnectTimeout)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		p.Subscribe(mqttsink.New(client, cfg.MQTT.TopicPrefix, logger))
		logger.WithField("broker", cfg.MQTT.Broker).Info("Publishing readings to MQTT")
	}

	m, err := connection.New(newTransport(cfg, logger), p, connection.Options{
		NameContains:       cfg.Peripheral.NameFilter,
		ServiceUUID:        cfg.Peripheral.ServiceUUID,
		CharacteristicUUID: cfg.Peripheral.CharacteristicUUID,
		ScanTimeout:        cfg.ScanTimeout,
		ConnectTimeout:     cfg.ConnectTimeout,
	},
		connection.WithCapabilities(capabilityChecker(cfg)),
		connection.WithStateNotifier(p.Hub()),
		connection.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer m.Close()
	collector.TrackDroppedFrames(m.DroppedFrames)

	if cfg.Metrics.Addr != "" {
		groutine.Go(ctx, "plantmon-metrics", func(ctx context.Context) {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.WithError(err).Error("Metrics endpoint failed")
			}
		})
	}

	err = supervise(ctx, m, cfg.Retry, logger)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if stopErr := m.Stop(stopCtx); stopErr != nil {
		logger.WithError(stopErr).Warn("Connection did not stop cleanly")
	}

	printSummary(out, p.Store(), p.Alerts().Snapshot(), m.DroppedFrames())
	return err
}

// attemptRunner is the part of the connection machine the supervisor drives.
type attemptRunner interface {
	Start(ctx context.Context) error
	Await(ctx context.Context, states ...link.State) (link.ConnectionState, error)
}

// supervise starts attempts and restarts the ones that end in a retryable
// failure, waiting backoff in between. Reaching Streaming resets the failure
// count. It returns nil when an attempt ends without a reason, the terminal
// error otherwise.
func supervise(ctx context.Context, r attemptRunner, retry config.RetryConfig, logger *logrus.Logger) error {
	failures := 0
	for {
		if err := r.Start(ctx); err != nil {
			return err
		}

		st, err := r.Await(ctx, link.Streaming, link.Idle, link.Failed)
		if err != nil {
			return err
		}
		if st.State == link.Streaming {
			failures = 0
			if st, err = r.Await(ctx, link.Idle, link.Failed); err != nil {
				return err
			}
		}

		if st.Reason == nil {
			return nil
		}
		if !link.Retryable(st.Reason) {
			return st.Reason
		}

		failures++
		if failures >= retry.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, failures, st.Reason)
		}

		logger.WithFields(logrus.Fields{
			"attempt": failures,
			"max":     retry.MaxAttempts,
			"backoff": retry.Backoff,
		}).WithError(st.Reason).Warn("Attempt failed, retrying")

		select {
		case <-time.After(retry.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
