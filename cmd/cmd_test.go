package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/config"
	"github.com/victorjacobs/go-rs485/protocol"
	"github.com/victorjacobs/go-rs485/rs485"
)

func TestMonitorFilters(t *testing.T) {
	t.Cleanup(func() {
		monitorInclude = nil
		monitorExclude = nil
	})

	cfg := &config.Configuration{Monitor: []config.HexPattern{{Data: "20", Offset: 1}}}
	monitorInclude = []string{"30 01"}
	monitorExclude = []string{"0x41"}

	filters, err := monitorFilters(cfg)
	require.NoError(t, err)
	assert.Equal(t, []rs485.Filter{
		{Pattern: protocol.Pattern{Offset: 1, Data: []byte{0x20}}},
		{Pattern: protocol.Pattern{Data: []byte{0x30, 0x01}}},
		{Pattern: protocol.Pattern{Data: []byte{0x41}}, Inverted: true},
	}, filters)

	monitorExclude = []string{"xyz"}
	_, err = monitorFilters(cfg)
	assert.Error(t, err)
}

func TestLoopSafelyRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})

	go loopSafely(ctx, zap.NewNop(), func() {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			cancel()
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop was not restarted")
	}
	assert.Equal(t, int32(2), calls.Load())
}

type fakeConnection struct {
	reads  [][]byte
	closed bool
}

func (f *fakeConnection) Read(p []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, io.EOF
	}

	n := copy(p, f.reads[0])
	f.reads = f.reads[1:]
	return n, nil
}

func (f *fakeConnection) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakeConnection) Close() error {
	f.closed = true
	return nil
}

func TestRunBusReconnects(t *testing.T) {
	reconnectDelay = 0
	t.Cleanup(func() { reconnectDelay = time.Second })

	failed := &fakeConnection{}
	fresh := &fakeConnection{reads: [][]byte{{0x20, 0x01}}}
	bus := rs485.NewBus(failed, rs485.Config{}, nil, nil)

	var frames []protocol.Frame
	bus.Register(rs485.Listener{
		Device: protocol.Pattern{Data: []byte{0x20}},
		Handle: func(frame protocol.Frame) { frames = append(frames, frame) },
	})

	reopened := 0
	reopen := func() (rs485.Connection, string, error) {
		reopened++
		return fresh, "fake", nil
	}

	runBus(context.Background(), bus, reopen, zap.NewNop())
	assert.Equal(t, 1, reopened)
	assert.True(t, failed.closed)

	runBus(context.Background(), bus, func() (rs485.Connection, string, error) {
		return nil, "", errors.New("port gone")
	}, zap.NewNop())
	assert.Equal(t, []protocol.Frame{{0x20, 0x01}}, frames)
	assert.False(t, fresh.closed, "failed reopen keeps the current connection")
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "rs485bridge", rootCmd.Use)

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["monitor"])
	assert.True(t, names["config"])

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, config.DefaultFilename, flag.DefValue)
}

const minimalConfig = `
serial_port: /dev/ttyUSB0
mqtt:
  ip_address: 127.0.0.1
  password: hunter2
fans:
  - name: hood
    device: { data: "30" }
    state_on: { data: "01", offset: 1 }
    state_off: { data: "00", offset: 1 }
    command_on: { data: "30 01" }
    command_off: { data: "30 00" }
`

func TestConfigCommand(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "rs485bridge.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(minimalConfig), 0o600))

	configFile = filename
	t.Cleanup(func() { configFile = config.DefaultFilename })

	var out bytes.Buffer
	configCmd.SetOut(&out)
	t.Cleanup(func() { configCmd.SetOut(nil) })

	require.NoError(t, runConfig(configCmd, nil))
	assert.Contains(t, out.String(), "hood")
	assert.Contains(t, out.String(), "baud_rate: 9600")
	assert.NotContains(t, out.String(), "hunter2")
}

func TestConfigCommandInvalid(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "rs485bridge.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("serial_port: /dev/ttyUSB0\n"), 0o600))

	configFile = filename
	t.Cleanup(func() { configFile = config.DefaultFilename })

	assert.ErrorContains(t, runConfig(configCmd, nil), "no devices configured")
}
