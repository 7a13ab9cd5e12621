package climate

import (
	"errors"

	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/protocol"
)

const (
	minTemperature  = 5
	maxTemperature  = 40
	temperatureStep = 1
)

// Climate translates bus frames into thermostat state and thermostat requests into
// bus commands. It is not safe for concurrent use.
type Climate struct {
	cfg    Config
	sender protocol.Sender
	sink   Sink
	logger *zap.Logger

	modeRules []protocol.Rule[Mode]
	state     State
}

func NewClimate(cfg Config, sender protocol.Sender, sink Sink, logger *zap.Logger) (*Climate, error) {
	if len(cfg.CommandOff.Data) == 0 {
		return nil, errors.New("climate requires an off command")
	}
	if cfg.CommandTemperature == nil {
		return nil, errors.New("climate requires a temperature command")
	}
	if !cfg.ExternalSensor && !cfg.StateCurrent.configured() {
		return nil, errors.New("climate requires either an external sensor or a current temperature state")
	}
	if !cfg.StateTarget.configured() {
		return nil, errors.New("climate requires a target temperature state")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Climate{
		cfg:    cfg,
		sender: sender,
		sink:   sink,
		logger: logger.With(zap.String("climate", cfg.Name)),
		modeRules: []protocol.Rule[Mode]{
			{Pattern: cfg.StateOff, State: ModeOff},
			{Pattern: cfg.StateHeat, State: ModeHeat},
			{Pattern: cfg.StateCool, State: ModeCool},
			{Pattern: cfg.StateAuto, State: ModeAuto},
		},
	}, nil
}

func (c *Climate) Name() string {
	return c.cfg.Name
}

func (c *Climate) State() State {
	return c.state
}

func (c *Climate) Traits() Traits {
	return Traits{
		SupportsCurrentTemperature: true,
		SupportsAuto:               c.cfg.CommandAuto != nil,
		SupportsCool:               c.cfg.CommandCool != nil,
		SupportsHeat:               c.cfg.CommandHeat != nil,
		SupportsAway:               c.cfg.CommandAway != nil,
		MinTemperature:             minTemperature,
		MaxTemperature:             maxTemperature,
		TemperatureStep:            temperatureStep,
	}
}

// Publish updates the state from a frame received for this device.
func (c *Climate) Publish(frame protocol.Frame) {
	changed := false

	if mode, ok := protocol.FirstMatch(frame, c.modeRules); ok && c.state.Mode != mode {
		c.state.Mode = mode
		changed = true
	}

	if c.cfg.StateAway != nil {
		if away := c.cfg.StateAway.Matches(frame); c.state.Away != away {
			c.state.Away = away
			changed = true
		}
	}

	if !c.cfg.ExternalSensor {
		if value, ok := c.cfg.StateCurrent.decode(frame); ok && c.state.CurrentTemperature != Celsius(value) {
			c.state.CurrentTemperature = Celsius(value)
			changed = true
		}
	}

	// The device is the only source of the target temperature
	if value, ok := c.cfg.StateTarget.decode(frame); ok && c.state.TargetTemperature != Celsius(value) {
		c.state.TargetTemperature = Celsius(value)
		changed = true
	}

	if changed {
		c.publishState()
	}
}

// UpdateCurrentTemperature takes a reading from the external sensor.
func (c *Climate) UpdateCurrentTemperature(value float64) {
	c.state.CurrentTemperature = Celsius(value)
	c.publishState()
}

// Control applies a host request and sends the commands it requires. The state is
// always published afterwards.
func (c *Climate) Control(call Call) {
	if call.Mode != nil && c.state.Mode != *call.Mode {
		c.state.Mode = *call.Mode
		c.logger.Debug("Setting mode", zap.Stringer("mode", c.state.Mode))

		cmd, adopted := c.resolveMode(c.state.Mode)
		c.state.Mode = adopted
		c.send(cmd)
	}

	if call.TargetTemperature != nil && c.state.TargetTemperature != Celsius(*call.TargetTemperature) {
		c.state.TargetTemperature = Celsius(*call.TargetTemperature)
		c.logger.Debug("Setting target temperature", zap.Float64("temperature", *call.TargetTemperature))

		cmd, err := c.cfg.CommandTemperature(*call.TargetTemperature)
		if err != nil {
			c.logger.Warn("Failed to build temperature command", zap.Error(err))
		} else {
			c.send(&cmd)
		}
	}

	if c.cfg.CommandAway != nil && call.Away != nil && c.state.Away != *call.Away {
		c.state.Away = *call.Away
		c.logger.Debug("Setting away", zap.Bool("away", c.state.Away))

		if c.state.Away {
			c.send(c.cfg.CommandAway)
		} else {
			c.send(protocol.FirstCommand(c.cfg.CommandHome, c.modeCommand(c.state.Mode)))
		}
	}

	c.publishState()
}

// resolveMode picks the command for a requested mode and the mode the device ends
// up in. A nil command means nothing is sent.
func (c *Climate) resolveMode(mode Mode) (*protocol.Command, Mode) {
	switch mode {
	case ModeOff:
		return &c.cfg.CommandOff, ModeOff
	case ModeHeat, ModeCool:
		cmd := c.modeCommand(mode)
		if cmd == nil {
			c.logger.Warn("Mode not supported", zap.Stringer("mode", mode))
		}
		return cmd, mode
	case ModeAuto:
		switch {
		case c.cfg.CommandAuto != nil:
			return c.cfg.CommandAuto, ModeAuto
		case c.cfg.CommandHeat != nil && c.cfg.CommandCool != nil:
			c.logger.Warn("Auto mode not supported")
			return nil, ModeAuto
		case c.cfg.CommandHeat != nil:
			return c.cfg.CommandHeat, ModeHeat
		case c.cfg.CommandCool != nil:
			return c.cfg.CommandCool, ModeCool
		}
		return nil, ModeAuto
	default:
		c.logger.Warn("Unknown mode", zap.Stringer("mode", mode))
		return nil, mode
	}
}

// modeCommand returns the configured command for a mode without any fallback.
func (c *Climate) modeCommand(mode Mode) *protocol.Command {
	switch mode {
	case ModeOff:
		return &c.cfg.CommandOff
	case ModeHeat:
		return c.cfg.CommandHeat
	case ModeCool:
		return c.cfg.CommandCool
	case ModeAuto:
		return c.cfg.CommandAuto
	}

	return nil
}

func (c *Climate) send(cmd *protocol.Command) {
	if cmd == nil || c.sender == nil {
		return
	}

	c.sender.Send(*cmd)
}

func (c *Climate) publishState() {
	c.logger.Debug("Publishing state",
		zap.Stringer("mode", c.state.Mode),
		zap.Bool("away", c.state.Away),
		zap.Stringer("current", c.state.CurrentTemperature),
		zap.Stringer("target", c.state.TargetTemperature),
	)

	if c.sink != nil {
		c.sink.OnClimateState(c.cfg.Name, c.state)
	}
}

// LogConfig dumps the device tables.
func (c *Climate) LogConfig() {
	c.logger.Info("RS485 Climate",
		zap.Bool("external_sensor", c.cfg.ExternalSensor),
		zap.Stringer("state_off", c.cfg.StateOff),
		zap.Stringer("state_heat", c.cfg.StateHeat),
		zap.Stringer("state_cool", c.cfg.StateCool),
		zap.Stringer("state_auto", c.cfg.StateAuto),
		zap.Stringer("state_away", c.cfg.StateAway),
		zap.Stringer("command_off", &c.cfg.CommandOff),
		zap.Stringer("command_heat", c.cfg.CommandHeat),
		zap.Stringer("command_cool", c.cfg.CommandCool),
		zap.Stringer("command_auto", c.cfg.CommandAuto),
		zap.Stringer("command_away", c.cfg.CommandAway),
		zap.Stringer("command_home", c.cfg.CommandHome),
	)
}
