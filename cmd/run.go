package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/bridge"
	"github.com/victorjacobs/go-rs485/config"
	"github.com/victorjacobs/go-rs485/homeassistant"
	"github.com/victorjacobs/go-rs485/logging"
	"github.com/victorjacobs/go-rs485/metrics"
	"github.com/victorjacobs/go-rs485/routes"
	"github.com/victorjacobs/go-rs485/rs485"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge between the bus and MQTT",
	RunE:  runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfiguration(configFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	logger := logging.New(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	reg := metrics.NewRegistry()
	appMetrics := metrics.NewAppMetrics(reg)

	conn, connInfo, err := openConnection(cfg)
	if err != nil {
		return fmt.Errorf("error opening bus: %w", err)
	}
	logger.Info("Connected to bus", zap.String("connection", connInfo))

	framing, err := cfg.Bus.Framing()
	if err != nil {
		conn.Close()
		return err
	}

	bus := rs485.NewBus(conn, framing, appMetrics, logger)
	defer bus.Close()

	if len(cfg.Monitor) > 0 {
		filters, err := cfg.MonitorFilters()
		if err != nil {
			return err
		}
		bus.SetMonitor(rs485.NewMonitor(filters, logger))
	}

	var b *bridge.Bridge

	mqttOpts := cfg.Mqtt.ClientOptions(logger)
	// Configure MQTT subscriptions in the ConnectHandler to make sure they are set up after reconnect
	mqttOpts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("MQTT connected")
		b.SubscribeToCommands(client)
		b.PublishStates()
	})

	mqttClient := mqtt.NewClient(mqttOpts)
	homeAssistant := homeassistant.NewClient(mqttClient, cfg.Mqtt.TopicPrefix, cfg.Mqtt.DiscoveryPrefix, appMetrics, logger)

	b, err = bridge.New(cfg, bus, homeAssistant, logger)
	if err != nil {
		return fmt.Errorf("error setting up bridge: %w", err)
	}

	if t := mqttClient.Connect(); t.Wait() && t.Error() != nil {
		return fmt.Errorf("MQTT connection error: %w", t.Error())
	}
	defer mqttClient.Disconnect(250)

	if err := b.RegisterDevices(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go loopSafely(ctx, logger, func() {
		runBus(ctx, bus, func() (rs485.Connection, string, error) { return openConnection(cfg) }, logger)
	})

	go b.PollStates(ctx)

	var writer routes.Writer
	if cfg.Http.EnableWrite {
		writer = bus
	}

	server := &http.Server{
		Addr:              cfg.Http.Addr,
		Handler:           routes.NewRouter(b, writer, metrics.Handler(reg), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.Http.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
