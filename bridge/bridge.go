package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/climate"
	"github.com/victorjacobs/go-rs485/config"
	"github.com/victorjacobs/go-rs485/fan"
	"github.com/victorjacobs/go-rs485/homeassistant"
	"github.com/victorjacobs/go-rs485/protocol"
	"github.com/victorjacobs/go-rs485/rs485"
)

// Bus is the part of rs485.Bus the bridge needs.
type Bus interface {
	Send(cmd protocol.Command)
	Register(l rs485.Listener)
}

// Subscriber is the part of mqtt.Client used for command topics.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type climateDevice struct {
	adapter      *climate.Climate
	sensorTopic  string
	commandState *protocol.Command
}

type fanDevice struct {
	adapter      *fan.Fan
	commandState *protocol.Command
}

// States is a snapshot of every device, keyed by name.
type States struct {
	Climates map[string]climate.State `json:"climates"`
	Fans     map[string]fan.State     `json:"fans"`
}

// Bridge connects the bus devices to Home Assistant. Every adapter call goes through
// one mutex, so bus frames, MQTT commands and sensor readings never interleave.
type Bridge struct {
	bus           Bus
	homeAssistant *homeassistant.Client
	pollInterval  time.Duration
	logger        *zap.Logger

	mutex    sync.Mutex
	climates []*climateDevice
	fans     []*fanDevice
}

func New(cfg *config.Configuration, bus Bus, homeAssistant *homeassistant.Client, logger *zap.Logger) (*Bridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bridge{
		bus:           bus,
		homeAssistant: homeAssistant,
		pollInterval:  cfg.PollInterval,
		logger:        logger.Named("bridge"),
	}

	for i := range cfg.Climates {
		if err := b.addClimate(&cfg.Climates[i], logger); err != nil {
			return nil, fmt.Errorf("climate %q: %w", cfg.Climates[i].Name, err)
		}
	}

	for i := range cfg.Fans {
		if err := b.addFan(&cfg.Fans[i], logger); err != nil {
			return nil, fmt.Errorf("fan %q: %w", cfg.Fans[i].Name, err)
		}
	}

	return b, nil
}

func (b *Bridge) addClimate(c *config.Climate, logger *zap.Logger) error {
	adapterCfg, err := c.AdapterConfig()
	if err != nil {
		return err
	}

	adapter, err := climate.NewClimate(adapterCfg, b.bus, b.homeAssistant, logger)
	if err != nil {
		return err
	}

	commandState, err := c.CommandState.Command()
	if err != nil {
		return fmt.Errorf("command_state: %w", err)
	}

	listener, err := c.Listener(func(frame protocol.Frame) {
		b.mutex.Lock()
		defer b.mutex.Unlock()

		adapter.Publish(frame)
	})
	if err != nil {
		return err
	}

	b.bus.Register(listener)
	b.climates = append(b.climates, &climateDevice{
		adapter:      adapter,
		sensorTopic:  c.SensorTopic,
		commandState: commandState,
	})

	return nil
}

func (b *Bridge) addFan(f *config.Fan, logger *zap.Logger) error {
	adapterCfg, err := f.AdapterConfig()
	if err != nil {
		return err
	}

	adapter, err := fan.NewFan(adapterCfg, b.bus, b.homeAssistant, logger)
	if err != nil {
		return err
	}

	on, off, err := f.PowerPatterns()
	if err != nil {
		return err
	}

	commandState, err := f.CommandState.Command()
	if err != nil {
		return fmt.Errorf("command_state: %w", err)
	}

	listener, err := f.Listener(func(frame protocol.Frame) {
		b.mutex.Lock()
		defer b.mutex.Unlock()

		switch {
		case off.Matches(frame):
			adapter.PublishPower(false)
		case on.Matches(frame):
			adapter.PublishPower(true)
		default:
			adapter.Publish(frame)
		}
	})
	if err != nil {
		return err
	}

	b.bus.Register(listener)
	b.fans = append(b.fans, &fanDevice{
		adapter:      adapter,
		commandState: commandState,
	})

	return nil
}

// RegisterDevices publishes the discovery configuration of every device.
func (b *Bridge) RegisterDevices() error {
	for _, c := range b.climates {
		c.adapter.LogConfig()
		if err := b.homeAssistant.RegisterClimate(c.adapter.Name(), c.adapter.Traits()); err != nil {
			return fmt.Errorf("register climate %q: %w", c.adapter.Name(), err)
		}
		b.logger.Info("Registered climate", zap.String("name", c.adapter.Name()))
	}

	for _, f := range b.fans {
		f.adapter.LogConfig()
		if err := b.homeAssistant.RegisterFan(f.adapter.Name(), f.adapter.SupportsSpeed()); err != nil {
			return fmt.Errorf("register fan %q: %w", f.adapter.Name(), err)
		}
		b.logger.Info("Registered fan", zap.String("name", f.adapter.Name()))
	}

	return nil
}

// PublishStates republishes the last known state of every device, e.g. after the
// MQTT connection came back.
func (b *Bridge) PublishStates() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, c := range b.climates {
		b.homeAssistant.OnClimateState(c.adapter.Name(), c.adapter.State())
	}
	for _, f := range b.fans {
		b.homeAssistant.OnFanState(f.adapter.Name(), f.adapter.State())
	}
}

// SubscribeToCommands wires the command and sensor topics into the adapters. It
// has to run on every (re)connect.
func (b *Bridge) SubscribeToCommands(client Subscriber) {
	for _, c := range b.climates {
		adapter := c.adapter
		name := adapter.Name()

		b.subscribe(client, b.homeAssistant.ClimateModeCommandTopic(name), b.climateCommand(adapter, homeassistant.ParseModeCommand))
		b.subscribe(client, b.homeAssistant.ClimateTemperatureCommandTopic(name), b.climateCommand(adapter, homeassistant.ParseTemperatureCommand))
		b.subscribe(client, b.homeAssistant.ClimatePresetCommandTopic(name), b.climateCommand(adapter, homeassistant.ParsePresetCommand))

		if c.sensorTopic != "" {
			b.subscribe(client, c.sensorTopic, func(payload []byte) {
				value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
				if err != nil {
					b.logger.Warn("Invalid sensor reading", zap.String("climate", name), zap.ByteString("payload", payload))
					return
				}

				b.mutex.Lock()
				defer b.mutex.Unlock()

				adapter.UpdateCurrentTemperature(value)
			})
		}
	}

	for _, f := range b.fans {
		adapter := f.adapter
		name := adapter.Name()

		b.subscribe(client, b.homeAssistant.FanCommandTopic(name), func(payload []byte) {
			b.mutex.Lock()
			defer b.mutex.Unlock()

			req, err := homeassistant.ParseFanCommand(payload, adapter.State())
			if err != nil {
				b.logger.Warn("Invalid fan command", zap.String("fan", name), zap.Error(err))
				return
			}
			adapter.Perform(req)
		})

		if adapter.SupportsSpeed() {
			b.subscribe(client, b.homeAssistant.FanPresetCommandTopic(name), func(payload []byte) {
				req, err := homeassistant.ParseFanPresetCommand(payload)
				if err != nil {
					b.logger.Warn("Invalid fan preset", zap.String("fan", name), zap.Error(err))
					return
				}

				b.mutex.Lock()
				defer b.mutex.Unlock()

				adapter.Perform(req)
			})
		}
	}
}

func (b *Bridge) climateCommand(adapter *climate.Climate, parse func([]byte) (climate.Call, error)) func([]byte) {
	return func(payload []byte) {
		call, err := parse(payload)
		if err != nil {
			b.logger.Warn("Invalid climate command", zap.String("climate", adapter.Name()), zap.Error(err))
			return
		}

		b.mutex.Lock()
		defer b.mutex.Unlock()

		adapter.Control(call)
	}
}

func (b *Bridge) subscribe(client Subscriber, topic string, handle func(payload []byte)) {
	if t := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	}); t.Wait() && t.Error() != nil {
		b.logger.Error("MQTT subscribe failed", zap.String("topic", topic), zap.Error(t.Error()))
		return
	}

	b.logger.Debug("Subscribed", zap.String("topic", topic))
}

// PollStates sends the state request of every device that has one, right away and
// then every poll interval, until the context is cancelled.
func (b *Bridge) PollStates(ctx context.Context) {
	if b.pollInterval <= 0 {
		return
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		b.poll()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) poll() {
	for _, c := range b.climates {
		if c.commandState != nil {
			b.bus.Send(*c.commandState)
		}
	}
	for _, f := range b.fans {
		if f.commandState != nil {
			b.bus.Send(*f.commandState)
		}
	}
}

func (b *Bridge) States() States {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	states := States{
		Climates: make(map[string]climate.State, len(b.climates)),
		Fans:     make(map[string]fan.State, len(b.fans)),
	}
	for _, c := range b.climates {
		states.Climates[c.adapter.Name()] = c.adapter.State()
	}
	for _, f := range b.fans {
		states.Fans[f.adapter.Name()] = f.adapter.State()
	}

	return states
}
