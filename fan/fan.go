package fan

import (
	"errors"

	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/protocol"
)

// Fan translates bus frames into fan state and host requests into bus commands.
// It is not safe for concurrent use.
type Fan struct {
	cfg    Config
	sender protocol.Sender
	sink   Sink
	logger *zap.Logger

	speedRules    []protocol.Rule[Speed]
	supportsSpeed bool
	state         State
}

func NewFan(cfg Config, sender protocol.Sender, sink Sink, logger *zap.Logger) (*Fan, error) {
	if len(cfg.CommandOn.Data) == 0 || len(cfg.CommandOff.Data) == 0 {
		return nil, errors.New("fan requires on and off commands")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fan{
		cfg:    cfg,
		sender: sender,
		sink:   sink,
		logger: logger.With(zap.String("fan", cfg.Name)),
		speedRules: []protocol.Rule[Speed]{
			{Pattern: cfg.StateSpeedHigh, State: SpeedHigh},
			{Pattern: cfg.StateSpeedMedium, State: SpeedMedium},
			{Pattern: cfg.StateSpeedLow, State: SpeedLow},
		},
		supportsSpeed: cfg.CommandSpeedLow != nil || cfg.CommandSpeedMedium != nil || cfg.CommandSpeedHigh != nil,
	}, nil
}

func (f *Fan) Name() string {
	return f.cfg.Name
}

func (f *Fan) State() State {
	return f.state
}

// SupportsSpeed reports whether any speed command is configured.
func (f *Fan) SupportsSpeed() bool {
	return f.supportsSpeed
}

// Publish updates the speed from a frame received for this device.
func (f *Fan) Publish(frame protocol.Frame) {
	if speed, ok := protocol.FirstMatch(frame, f.speedRules); ok {
		f.publishSpeed(speed)
		return
	}

	f.logger.Warn("State not found", zap.Stringer("frame", frame))
}

// PublishPower updates the on/off state reported by the device.
func (f *Fan) PublishPower(on bool) {
	if f.state.On == on {
		return
	}

	f.logger.Debug("Publishing power", zap.Bool("on", on))
	f.state.On = on
	f.publishState()
}

func (f *Fan) publishSpeed(speed Speed) {
	if !f.state.On || f.state.Speed == speed {
		return
	}

	f.logger.Debug("Publishing speed", zap.Stringer("speed", speed))
	f.state.Speed = speed
	f.publishState()
}

// Perform sends the command for the first difference between the request and the
// current state. Power wins over speed.
func (f *Fan) Perform(req Request) {
	if req.On != f.state.On {
		f.state.On = req.On
		if f.state.On {
			f.logger.Debug("Turning on")
			f.send(&f.cfg.CommandOn)
		} else {
			f.logger.Debug("Turning off")
			f.send(&f.cfg.CommandOff)
		}
		f.publishState()
	} else if f.supportsSpeed && f.state.On && req.Speed != SpeedNone && req.Speed != f.state.Speed {
		f.state.Speed = req.Speed
		if cmd := f.speedCommand(req.Speed); cmd != nil {
			f.send(cmd)
		} else {
			f.logger.Warn("Speed not supported", zap.Stringer("speed", req.Speed))
		}
		f.publishState()
	}
}

func (f *Fan) speedCommand(speed Speed) *protocol.Command {
	switch speed {
	case SpeedLow:
		return f.cfg.CommandSpeedLow
	case SpeedMedium:
		return f.cfg.CommandSpeedMedium
	case SpeedHigh:
		return f.cfg.CommandSpeedHigh
	}

	return nil
}

func (f *Fan) send(cmd *protocol.Command) {
	if f.sender != nil {
		f.sender.Send(*cmd)
	}
}

func (f *Fan) publishState() {
	if f.sink != nil {
		f.sink.OnFanState(f.cfg.Name, f.state)
	}
}

func (f *Fan) LogConfig() {
	f.logger.Info("RS485 Fan",
		zap.Bool("support_speed", f.supportsSpeed),
		zap.Stringer("state_speed_high", f.cfg.StateSpeedHigh),
		zap.Stringer("state_speed_medium", f.cfg.StateSpeedMedium),
		zap.Stringer("state_speed_low", f.cfg.StateSpeedLow),
		zap.Stringer("command_on", &f.cfg.CommandOn),
		zap.Stringer("command_off", &f.cfg.CommandOff),
		zap.Stringer("command_speed_high", f.cfg.CommandSpeedHigh),
		zap.Stringer("command_speed_medium", f.cfg.CommandSpeedMedium),
		zap.Stringer("command_speed_low", f.cfg.CommandSpeedLow),
	)
}
