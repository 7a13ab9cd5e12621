package rs485

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Connection is the byte channel the bus runs over.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// FrameConnection is a Connection whose reads each return exactly one frame.
type FrameConnection interface {
	Connection
	WholeFrames()
}

type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	// RxWait is the idle gap that ends a frame.
	RxWait time.Duration
}

func parseParity(parity string) (serial.Parity, error) {
	switch strings.ToLower(parity) {
	case "", "none":
		return serial.NoParity, nil
	case "even":
		return serial.EvenParity, nil
	case "odd":
		return serial.OddParity, nil
	case "mark":
		return serial.MarkParity, nil
	case "space":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q", parity)
	}
}

func parseStopBits(stopBits int) (serial.StopBits, error) {
	switch stopBits {
	case 0, 1:
		return serial.OneStopBit, nil
	case 2:
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("unsupported stop bits %d", stopBits)
	}
}

// SerialConnection wraps a serial port. A read returns whatever bytes are buffered,
// and returns none once the line was idle for RxWait.
type SerialConnection struct {
	port serial.Port
}

func OpenSerial(cfg SerialConfig) (*SerialConnection, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}

	stopBits, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: dataBits,
		Parity:   parity,
		StopBits: stopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	rxWait := cfg.RxWait
	if rxWait <= 0 {
		rxWait = DefaultRxWait
	}

	if err := port.SetReadTimeout(rxWait); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &SerialConnection{port: port}, nil
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// DefaultRxWait ends a frame when the serial config leaves the idle gap unset.
const DefaultRxWait = 10 * time.Millisecond

var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection talks to a networked RS485 gateway that forwards every bus
// frame as one binary message.
type WebSocketConnection struct {
	conn   *websocket.Conn
	closed bool
}

func (w *WebSocketConnection) WholeFrames() {}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		if len(data) > len(p) {
			return 0, fmt.Errorf("websocket frame of %d bytes exceeds buffer of %d", len(data), len(p))
		}

		return copy(p, data), nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

func OpenWebSocket(wsURL, username, password string) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	if username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}
