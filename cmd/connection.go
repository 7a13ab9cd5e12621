package cmd

import (
	"fmt"

	"github.com/victorjacobs/go-rs485/config"
	"github.com/victorjacobs/go-rs485/rs485"
)

// openConnection opens the serial port or the WebSocket gateway, whichever is
// configured, and describes it for the logs.
func openConnection(cfg *config.Configuration) (rs485.Connection, string, error) {
	if cfg.WebSocket.Url != "" {
		conn, err := rs485.OpenWebSocket(cfg.WebSocket.Url, cfg.WebSocket.Username, cfg.WebSocket.Password)
		if err != nil {
			return nil, "", err
		}
		return conn, cfg.WebSocket.Url, nil
	}

	serialCfg := cfg.Bus.Serial(cfg.SerialPort)
	conn, err := rs485.OpenSerial(serialCfg)
	if err != nil {
		return nil, "", err
	}

	return conn, fmt.Sprintf("%v @ %d baud", serialCfg.Port, serialCfg.BaudRate), nil
}
