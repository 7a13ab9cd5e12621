package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/config"
	"github.com/victorjacobs/go-rs485/logging"
	"github.com/victorjacobs/go-rs485/protocol"
	"github.com/victorjacobs/go-rs485/rs485"
)

var (
	monitorInclude []string
	monitorExclude []string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Log every valid frame seen on the bus",
	Long: `Log the frames on the bus without bridging anything to MQTT.

Frames are validated against the configured prefix, suffix and checksums
before they are shown. Filters from the configuration's monitor section apply,
and more can be given on the command line:

  rs485bridge monitor --include "20 01" --exclude 30

A frame is shown when any filter accepts it; without filters every frame is shown.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringSliceVar(&monitorInclude, "include", nil, "Show frames starting with these hex bytes")
	monitorCmd.Flags().StringSliceVar(&monitorExclude, "exclude", nil, "Show frames not starting with these hex bytes")
}

func monitorFilters(cfg *config.Configuration) ([]rs485.Filter, error) {
	filters, err := cfg.MonitorFilters()
	if err != nil {
		return nil, err
	}

	add := func(values []string, inverted bool) error {
		for _, value := range values {
			data, err := protocol.ParseHex(value)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return fmt.Errorf("empty filter %q", value)
			}
			filters = append(filters, rs485.Filter{Pattern: protocol.Pattern{Data: data}, Inverted: inverted})
		}
		return nil
	}

	if err := add(monitorInclude, false); err != nil {
		return nil, err
	}
	if err := add(monitorExclude, true); err != nil {
		return nil, err
	}

	return filters, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfiguration(configFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	logger := logging.New(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	filters, err := monitorFilters(cfg)
	if err != nil {
		return err
	}

	framing, err := cfg.Bus.Framing()
	if err != nil {
		return err
	}

	conn, connInfo, err := openConnection(cfg)
	if err != nil {
		return fmt.Errorf("error opening bus: %w", err)
	}

	bus := rs485.NewBus(conn, framing, nil, logger)
	defer bus.Close()
	bus.SetMonitor(rs485.NewMonitor(filters, logger))

	logger.Info("Monitoring bus", zap.String("connection", connInfo), zap.Int("filters", len(filters)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		bus.Close()
	}()

	if err := bus.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
