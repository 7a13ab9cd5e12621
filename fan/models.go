package fan

import (
	"fmt"

	"github.com/victorjacobs/go-rs485/protocol"
)

type Speed int

const (
	SpeedNone Speed = iota
	SpeedLow
	SpeedMedium
	SpeedHigh
)

func (s Speed) String() string {
	switch s {
	case SpeedNone:
		return "none"
	case SpeedLow:
		return "low"
	case SpeedMedium:
		return "medium"
	case SpeedHigh:
		return "high"
	default:
		return fmt.Sprintf("speed(%d)", int(s))
	}
}

func (s Speed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Speed) UnmarshalText(text []byte) error {
	parsed, err := ParseSpeed(string(text))
	if err != nil {
		return err
	}

	*s = parsed
	return nil
}

func ParseSpeed(s string) (Speed, error) {
	switch s {
	case "none", "":
		return SpeedNone, nil
	case "low":
		return SpeedLow, nil
	case "medium", "mid":
		return SpeedMedium, nil
	case "high":
		return SpeedHigh, nil
	default:
		return SpeedNone, fmt.Errorf("unknown fan speed %q", s)
	}
}

type State struct {
	On    bool  `json:"on"`
	Speed Speed `json:"speed"`
}

// Request is the state the host wants the fan in.
type Request struct {
	On    bool
	Speed Speed
}

type Sink interface {
	OnFanState(name string, state State)
}

type SinkFunc func(name string, state State)

func (f SinkFunc) OnFanState(name string, state State) {
	f(name, state)
}

type Config struct {
	Name string

	StateSpeedLow    *protocol.Pattern
	StateSpeedMedium *protocol.Pattern
	StateSpeedHigh   *protocol.Pattern

	CommandOn          protocol.Command
	CommandOff         protocol.Command
	CommandSpeedLow    *protocol.Command
	CommandSpeedMedium *protocol.Command
	CommandSpeedHigh   *protocol.Command
}
