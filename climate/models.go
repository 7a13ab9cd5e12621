package climate

import (
	"encoding/json"
	"fmt"

	"github.com/victorjacobs/go-rs485/protocol"
)

type Mode int

const (
	ModeOff Mode = iota
	ModeHeat
	ModeCool
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	case ModeCool:
		return "cool"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "heat":
		return ModeHeat, nil
	case "cool":
		return ModeCool, nil
	case "auto", "heat_cool":
		return ModeAuto, nil
	default:
		return ModeOff, fmt.Errorf("unknown climate mode %q", s)
	}
}

// Temperature is a reading that may not have been received yet.
type Temperature struct {
	Value float64
	Set   bool
}

func Celsius(value float64) Temperature {
	return Temperature{Value: value, Set: true}
}

func (t Temperature) MarshalJSON() ([]byte, error) {
	if !t.Set {
		return []byte("null"), nil
	}

	return json.Marshal(t.Value)
}

func (t Temperature) String() string {
	if !t.Set {
		return "unset"
	}

	return fmt.Sprintf("%.1f", t.Value)
}

type State struct {
	Mode               Mode        `json:"mode"`
	Away               bool        `json:"away"`
	CurrentTemperature Temperature `json:"current_temperature"`
	TargetTemperature  Temperature `json:"target_temperature"`
}

// Call is a host request. Nil fields are left untouched.
type Call struct {
	Mode              *Mode
	TargetTemperature *float64
	Away              *bool
}

type Traits struct {
	SupportsCurrentTemperature bool    `json:"supports_current_temperature"`
	SupportsAuto               bool    `json:"supports_auto"`
	SupportsCool               bool    `json:"supports_cool"`
	SupportsHeat               bool    `json:"supports_heat"`
	SupportsAway               bool    `json:"supports_away"`
	MinTemperature             float64 `json:"min_temperature"`
	MaxTemperature             float64 `json:"max_temperature"`
	TemperatureStep            float64 `json:"temperature_step"`
}

// Sink receives a snapshot whenever the climate state is published.
type Sink interface {
	OnClimateState(name string, state State)
}

type SinkFunc func(name string, state State)

func (f SinkFunc) OnClimateState(name string, state State) {
	f(name, state)
}

// DecodeFunc extracts a temperature from a frame. It returns false when the frame
// carries no value.
type DecodeFunc func(frame protocol.Frame) (float64, bool)

// TemperatureSource is either a custom decode function or a numeric field; the
// function wins when both are set.
type TemperatureSource struct {
	Func  DecodeFunc
	Field *protocol.NumericField
}

func (s TemperatureSource) configured() bool {
	return s.Func != nil || s.Field != nil
}

func (s TemperatureSource) decode(frame protocol.Frame) (float64, bool) {
	if s.Func != nil {
		return s.Func(frame)
	}

	if s.Field != nil && s.Field.Fits(frame) {
		value, err := s.Field.Decode(frame)
		return value, err == nil
	}

	return 0, false
}

type Config struct {
	Name string

	// ExternalSensor disables decoding the current temperature from frames;
	// readings arrive through UpdateCurrentTemperature instead.
	ExternalSensor bool
	StateCurrent   TemperatureSource
	StateTarget    TemperatureSource

	StateOff  *protocol.Pattern
	StateHeat *protocol.Pattern
	StateCool *protocol.Pattern
	StateAuto *protocol.Pattern
	StateAway *protocol.Pattern

	CommandOff         protocol.Command
	CommandHeat        *protocol.Command
	CommandCool        *protocol.Command
	CommandAuto        *protocol.Command
	CommandAway        *protocol.Command
	CommandHome        *protocol.Command
	CommandTemperature protocol.TemperatureCommand
}
