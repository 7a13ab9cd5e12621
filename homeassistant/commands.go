package homeassistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/victorjacobs/go-rs485/climate"
	"github.com/victorjacobs/go-rs485/fan"
)

func ParseModeCommand(payload []byte) (climate.Call, error) {
	mode, err := climate.ParseMode(strings.ToLower(strings.TrimSpace(string(payload))))
	if err != nil {
		return climate.Call{}, err
	}

	return climate.Call{Mode: &mode}, nil
}

func ParseTemperatureCommand(payload []byte) (climate.Call, error) {
	temperature, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return climate.Call{}, fmt.Errorf("invalid temperature %q: %w", payload, err)
	}

	return climate.Call{TargetTemperature: &temperature}, nil
}

func ParsePresetCommand(payload []byte) (climate.Call, error) {
	var away bool
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case PresetAway:
		away = true
	case PresetHome, "none":
		away = false
	default:
		return climate.Call{}, fmt.Errorf("unknown preset %q", payload)
	}

	return climate.Call{Away: &away}, nil
}

// ParseFanCommand turns an ON/OFF payload into a request that keeps the current speed.
func ParseFanCommand(payload []byte, current fan.State) (fan.Request, error) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON":
		return fan.Request{On: true, Speed: current.Speed}, nil
	case "OFF":
		return fan.Request{On: false, Speed: current.Speed}, nil
	default:
		return fan.Request{}, fmt.Errorf("unknown fan command %q", payload)
	}
}

// ParseFanPresetCommand asks for a speed. A fan that is off gets switched on first.
func ParseFanPresetCommand(payload []byte) (fan.Request, error) {
	speed, err := fan.ParseSpeed(strings.ToLower(strings.TrimSpace(string(payload))))
	if err != nil {
		return fan.Request{}, err
	}

	return fan.Request{On: true, Speed: speed}, nil
}
