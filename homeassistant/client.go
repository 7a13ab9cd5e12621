package homeassistant

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/climate"
	"github.com/victorjacobs/go-rs485/fan"
	"github.com/victorjacobs/go-rs485/metrics"
)

const (
	PresetAway = "away"
	PresetHome = "home"
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

type Client struct {
	mqtt            Publisher
	topicPrefix     string
	discoveryPrefix string
	metrics         *metrics.AppMetrics
	logger          *zap.Logger
}

func NewClient(mqtt Publisher, topicPrefix, discoveryPrefix string, m *metrics.AppMetrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		mqtt:            mqtt,
		topicPrefix:     topicPrefix,
		discoveryPrefix: discoveryPrefix,
		metrics:         m,
		logger:          logger.Named("homeassistant"),
	}
}

func (h *Client) ClimateStateTopic(name string) string {
	return fmt.Sprintf("%v/climate/%v/state", h.topicPrefix, name)
}

func (h *Client) ClimateModeCommandTopic(name string) string {
	return fmt.Sprintf("%v/climate/%v/mode/cmd", h.topicPrefix, name)
}

func (h *Client) ClimateTemperatureCommandTopic(name string) string {
	return fmt.Sprintf("%v/climate/%v/temperature/cmd", h.topicPrefix, name)
}

func (h *Client) ClimatePresetCommandTopic(name string) string {
	return fmt.Sprintf("%v/climate/%v/preset/cmd", h.topicPrefix, name)
}

func (h *Client) FanStateTopic(name string) string {
	return fmt.Sprintf("%v/fan/%v/state", h.topicPrefix, name)
}

func (h *Client) FanCommandTopic(name string) string {
	return fmt.Sprintf("%v/fan/%v/cmd", h.topicPrefix, name)
}

func (h *Client) FanPresetStateTopic(name string) string {
	return fmt.Sprintf("%v/fan/%v/preset/state", h.topicPrefix, name)
}

func (h *Client) FanPresetCommandTopic(name string) string {
	return fmt.Sprintf("%v/fan/%v/preset/cmd", h.topicPrefix, name)
}

func (h *Client) deviceInfo(name string) device {
	return device{
		Identifiers: []string{h.topicPrefix + "_" + name},
		Name:        name,
	}
}

func (h *Client) RegisterClimate(name string, traits climate.Traits) error {
	modes := []string{climate.ModeOff.String()}
	if traits.SupportsHeat {
		modes = append(modes, climate.ModeHeat.String())
	}
	if traits.SupportsCool {
		modes = append(modes, climate.ModeCool.String())
	}
	if traits.SupportsAuto {
		modes = append(modes, climate.ModeAuto.String())
	}

	cfg := climateConfiguration{
		UniqueId:                   h.topicPrefix + "_climate_" + name,
		Name:                       name,
		Modes:                      modes,
		ModeStateTopic:             h.ClimateStateTopic(name),
		ModeStateTemplate:          "{{ value_json.mode }}",
		ModeCommandTopic:           h.ClimateModeCommandTopic(name),
		TemperatureStateTopic:      h.ClimateStateTopic(name),
		TemperatureStateTemplate:   "{{ value_json.target_temperature }}",
		TemperatureCommandTopic:    h.ClimateTemperatureCommandTopic(name),
		CurrentTemperatureTopic:    h.ClimateStateTopic(name),
		CurrentTemperatureTemplate: "{{ value_json.current_temperature }}",
		MinTemp:                    traits.MinTemperature,
		MaxTemp:                    traits.MaxTemperature,
		TempStep:                   traits.TemperatureStep,
		TemperatureUnit:            "C",
		Device:                     h.deviceInfo(name),
	}

	if traits.SupportsAway {
		cfg.PresetModes = []string{PresetHome, PresetAway}
		cfg.PresetModeStateTopic = h.ClimateStateTopic(name)
		cfg.PresetModeValueTemplate = fmt.Sprintf("{{ '%v' if value_json.away else '%v' }}", PresetAway, PresetHome)
		cfg.PresetModeCommandTopic = h.ClimatePresetCommandTopic(name)
	}

	climateConfiguration, _ := json.Marshal(cfg)

	return h.publish(fmt.Sprintf("%v/climate/%v/config", h.discoveryPrefix, name), true, climateConfiguration)
}

func (h *Client) RegisterFan(name string, supportsSpeed bool) error {
	cfg := fanConfiguration{
		UniqueId:     h.topicPrefix + "_fan_" + name,
		Name:         name,
		StateTopic:   h.FanStateTopic(name),
		CommandTopic: h.FanCommandTopic(name),
		Device:       h.deviceInfo(name),
	}

	if supportsSpeed {
		cfg.PresetModeStateTopic = h.FanPresetStateTopic(name)
		cfg.PresetModeCommandTopic = h.FanPresetCommandTopic(name)
		cfg.PresetModes = []string{fan.SpeedLow.String(), fan.SpeedMedium.String(), fan.SpeedHigh.String()}
	}

	fanConfiguration, _ := json.Marshal(cfg)

	return h.publish(fmt.Sprintf("%v/fan/%v/config", h.discoveryPrefix, name), true, fanConfiguration)
}

// OnClimateState publishes the climate snapshot while the broker is connected.
func (h *Client) OnClimateState(name string, state climate.State) {
	if !h.connected(name) {
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		h.logger.Error("Failed to marshal climate state", zap.String("device", name), zap.Error(err))
		return
	}

	h.report(name, h.publish(h.ClimateStateTopic(name), true, payload))
}

// OnFanState publishes the fan snapshot while the broker is connected.
func (h *Client) OnFanState(name string, state fan.State) {
	if !h.connected(name) {
		return
	}

	stateMessage := "OFF"
	if state.On {
		stateMessage = "ON"
	}

	if err := h.publish(h.FanStateTopic(name), true, stateMessage); err != nil {
		h.report(name, err)
		return
	}

	if state.Speed != fan.SpeedNone {
		h.report(name, h.publish(h.FanPresetStateTopic(name), true, state.Speed.String()))
		return
	}

	h.report(name, nil)
}

func (h *Client) connected(name string) bool {
	if h.mqtt.IsConnected() {
		return true
	}

	h.logger.Debug("Not connected, dropping state", zap.String("device", name))
	h.count(name, "disconnected")
	return false
}

func (h *Client) report(name string, err error) {
	if err != nil {
		h.logger.Warn("MQTT publishing failed", zap.String("device", name), zap.Error(err))
		h.count(name, "error")
		return
	}

	h.count(name, "ok")
}

func (h *Client) count(name, result string) {
	if h.metrics != nil {
		h.metrics.StatePublished.WithLabelValues(name, result).Inc()
	}
}

func (h *Client) publish(topic string, retained bool, payload interface{}) error {
	if t := h.mqtt.Publish(topic, 0, retained, payload); t.Wait() && t.Error() != nil {
		return t.Error()
	}

	return nil
}
