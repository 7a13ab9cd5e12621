package climate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorjacobs/go-rs485/protocol"
)

type recorder struct {
	sent   []protocol.Command
	states []State
}

func (r *recorder) Send(cmd protocol.Command) {
	r.sent = append(r.sent, cmd)
}

func (r *recorder) OnClimateState(_ string, state State) {
	r.states = append(r.states, state)
}

func (r *recorder) lastSent(t *testing.T) []byte {
	t.Helper()
	require.NotEmpty(t, r.sent)
	return r.sent[len(r.sent)-1].Data
}

func pattern(offset int, data ...byte) *protocol.Pattern {
	return &protocol.Pattern{Offset: offset, Data: data}
}

func command(data ...byte) *protocol.Command {
	return &protocol.Command{Data: data}
}

func ptr[T any](v T) *T {
	return &v
}

var (
	cmdOff  = []byte{0x30, 0x00}
	cmdHeat = []byte{0x30, 0x01}
	cmdCool = []byte{0x30, 0x02}
	cmdAuto = []byte{0x30, 0x03}
	cmdAway = []byte{0x30, 0x04}
	cmdHome = []byte{0x30, 0x05}
)

func baseConfig() Config {
	return Config{
		Name:         "living_room",
		StateCurrent: TemperatureSource{Field: &protocol.NumericField{Offset: 3, Length: 1, Precision: 1}},
		StateTarget:  TemperatureSource{Field: &protocol.NumericField{Offset: 4, Length: 1, Precision: 1}},
		StateOff:     pattern(2, 0x00),
		StateHeat:    pattern(2, 0x01),
		StateCool:    pattern(2, 0x02),
		StateAuto:    pattern(2, 0x03),
		StateAway:    pattern(5, 0x01),
		CommandOff:   protocol.Command{Data: cmdOff},
		CommandHeat:  command(cmdHeat...),
		CommandCool:  command(cmdCool...),
		CommandTemperature: func(value float64) (protocol.Command, error) {
			return protocol.Command{Data: []byte{0x31, byte(value)}}, nil
		},
	}
}

func newClimate(t *testing.T, cfg Config) (*Climate, *recorder) {
	t.Helper()
	rec := &recorder{}
	c, err := NewClimate(cfg, rec, rec, nil)
	require.NoError(t, err)
	return c, rec
}

func TestNewClimateRequiresCommands(t *testing.T) {
	cfg := baseConfig()
	cfg.CommandOff = protocol.Command{}
	_, err := NewClimate(cfg, nil, nil, nil)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.CommandTemperature = nil
	_, err = NewClimate(cfg, nil, nil, nil)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.StateCurrent = TemperatureSource{}
	_, err = NewClimate(cfg, nil, nil, nil)
	assert.Error(t, err)

	cfg.ExternalSensor = true
	_, err = NewClimate(cfg, nil, nil, nil)
	assert.NoError(t, err)
}

func TestInitialState(t *testing.T) {
	c, _ := newClimate(t, baseConfig())

	assert.Equal(t, ModeOff, c.State().Mode)
	assert.False(t, c.State().TargetTemperature.Set)
	assert.False(t, c.State().CurrentTemperature.Set)
}

func TestPublishMode(t *testing.T) {
	tests := []struct {
		name  string
		frame protocol.Frame
		want  Mode
	}{
		{"heat", protocol.Frame{0xF7, 0x01, 0x01}, ModeHeat},
		{"cool", protocol.Frame{0xF7, 0x01, 0x02}, ModeCool},
		{"auto", protocol.Frame{0xF7, 0x01, 0x03}, ModeAuto},
		{"off", protocol.Frame{0xF7, 0x01, 0x00}, ModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClimate(t, baseConfig())
			c.state.Mode = ModeCool
			if tt.want == ModeCool {
				c.state.Mode = ModeHeat
			}

			c.Publish(tt.frame)
			assert.Equal(t, tt.want, c.State().Mode)
		})
	}
}

func TestPublishModePriority(t *testing.T) {
	// Every pattern matches the same frame
	cfg := baseConfig()
	cfg.StateOff = pattern(0, 0xF7)
	cfg.StateHeat = pattern(0, 0xF7)
	cfg.StateCool = pattern(0, 0xF7)
	cfg.StateAuto = pattern(0, 0xF7)

	c, _ := newClimate(t, cfg)
	c.state.Mode = ModeAuto
	c.Publish(protocol.Frame{0xF7})
	assert.Equal(t, ModeOff, c.State().Mode)

	cfg.StateOff = nil
	c, _ = newClimate(t, cfg)
	c.Publish(protocol.Frame{0xF7})
	assert.Equal(t, ModeHeat, c.State().Mode)

	cfg.StateHeat = nil
	c, _ = newClimate(t, cfg)
	c.Publish(protocol.Frame{0xF7})
	assert.Equal(t, ModeCool, c.State().Mode)

	cfg.StateCool = nil
	c, _ = newClimate(t, cfg)
	c.Publish(protocol.Frame{0xF7})
	assert.Equal(t, ModeAuto, c.State().Mode)
}

func TestPublishNoMatchLeavesMode(t *testing.T) {
	c, rec := newClimate(t, baseConfig())
	c.state.Mode = ModeCool

	c.Publish(protocol.Frame{0xF7, 0x01, 0x09})
	assert.Equal(t, ModeCool, c.State().Mode)
	assert.Empty(t, rec.states)
}

func TestPublishAwayFollowsPattern(t *testing.T) {
	c, _ := newClimate(t, baseConfig())

	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x15, 0x16, 0x01})
	assert.True(t, c.State().Away)

	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x15, 0x16, 0x01})
	assert.True(t, c.State().Away)

	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x15, 0x16, 0x00})
	assert.False(t, c.State().Away)

	// Too short for the away pattern means not away
	c.state.Away = true
	c.Publish(protocol.Frame{0xF7, 0x01, 0x01})
	assert.False(t, c.State().Away)
}

func TestPublishTemperatures(t *testing.T) {
	c, rec := newClimate(t, baseConfig())

	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x15, 0x16, 0x00})
	assert.Equal(t, Celsius(21), c.State().CurrentTemperature)
	assert.Equal(t, Celsius(22), c.State().TargetTemperature)
	require.Len(t, rec.states, 1)
	assert.Equal(t, c.State(), rec.states[0])

	// Identical frame, nothing changed
	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x15, 0x16, 0x00})
	assert.Len(t, rec.states, 1)

	// Frame too short for temperatures leaves them alone
	c.Publish(protocol.Frame{0xF7, 0x01, 0x02})
	assert.Equal(t, Celsius(21), c.State().CurrentTemperature)
	assert.Equal(t, ModeCool, c.State().Mode)
	assert.Len(t, rec.states, 2)
}

func TestPublishSingleNotificationForManyFields(t *testing.T) {
	c, rec := newClimate(t, baseConfig())

	c.Publish(protocol.Frame{0xF7, 0x01, 0x02, 0x10, 0x12, 0x01})
	require.Len(t, rec.states, 1)
	assert.Equal(t, State{
		Mode:               ModeCool,
		Away:               true,
		CurrentTemperature: Celsius(16),
		TargetTemperature:  Celsius(18),
	}, rec.states[0])
}

func TestPublishDecodeFuncWins(t *testing.T) {
	cfg := baseConfig()
	cfg.StateCurrent.Func = func(frame protocol.Frame) (float64, bool) {
		if len(frame) < 7 {
			return 0, false
		}
		return float64(frame[6]) / 2, true
	}
	cfg.StateTarget.Func = func(frame protocol.Frame) (float64, bool) {
		return 19.5, true
	}

	c, _ := newClimate(t, cfg)
	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x15, 0x16, 0x00, 0x2B})
	assert.Equal(t, Celsius(21.5), c.State().CurrentTemperature)
	assert.Equal(t, Celsius(19.5), c.State().TargetTemperature)

	// The function has no value, the field is not consulted
	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x30, 0x16, 0x00})
	assert.Equal(t, Celsius(21.5), c.State().CurrentTemperature)
}

func TestExternalSensor(t *testing.T) {
	cfg := baseConfig()
	cfg.ExternalSensor = true
	c, rec := newClimate(t, cfg)

	c.Publish(protocol.Frame{0xF7, 0x01, 0x01, 0x15, 0x16, 0x00})
	assert.False(t, c.State().CurrentTemperature.Set)
	assert.Equal(t, Celsius(22), c.State().TargetTemperature)

	c.UpdateCurrentTemperature(20.5)
	assert.Equal(t, Celsius(20.5), c.State().CurrentTemperature)
	assert.Len(t, rec.states, 2)
}

func TestControlMode(t *testing.T) {
	tests := []struct {
		name      string
		configure func(cfg *Config)
		from      Mode
		request   Mode
		wantMode  Mode
		wantSent  [][]byte
	}{
		{"off", nil, ModeHeat, ModeOff, ModeOff, [][]byte{cmdOff}},
		{"heat", nil, ModeOff, ModeHeat, ModeHeat, [][]byte{cmdHeat}},
		{"cool", nil, ModeOff, ModeCool, ModeCool, [][]byte{cmdCool}},
		{"same mode sends nothing", nil, ModeHeat, ModeHeat, ModeHeat, nil},
		{"heat without command is adopted", func(cfg *Config) { cfg.CommandHeat = nil }, ModeOff, ModeHeat, ModeHeat, nil},
		{"auto with command", func(cfg *Config) { cfg.CommandAuto = command(cmdAuto...) }, ModeOff, ModeAuto, ModeAuto, [][]byte{cmdAuto}},
		{"auto with heat and cool", nil, ModeOff, ModeAuto, ModeAuto, nil},
		{"auto downgrades to heat", func(cfg *Config) { cfg.CommandCool = nil }, ModeOff, ModeAuto, ModeHeat, [][]byte{cmdHeat}},
		{"auto downgrades to cool", func(cfg *Config) { cfg.CommandHeat = nil }, ModeOff, ModeAuto, ModeCool, [][]byte{cmdCool}},
		{"auto without any command", func(cfg *Config) { cfg.CommandHeat, cfg.CommandCool = nil, nil }, ModeOff, ModeAuto, ModeAuto, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			if tt.configure != nil {
				tt.configure(&cfg)
			}
			c, rec := newClimate(t, cfg)
			c.state.Mode = tt.from

			c.Control(Call{Mode: ptr(tt.request)})

			assert.Equal(t, tt.wantMode, c.State().Mode)
			var sent [][]byte
			for _, cmd := range rec.sent {
				sent = append(sent, cmd.Data)
			}
			assert.Equal(t, tt.wantSent, sent)
			require.Len(t, rec.states, 1)
			assert.Equal(t, tt.wantMode, rec.states[0].Mode)
		})
	}
}

func TestControlTargetTemperature(t *testing.T) {
	c, rec := newClimate(t, baseConfig())

	c.Control(Call{TargetTemperature: ptr(23.0)})
	assert.Equal(t, Celsius(23), c.State().TargetTemperature)
	assert.Equal(t, []byte{0x31, 23}, rec.lastSent(t))

	c.Control(Call{TargetTemperature: ptr(23.0)})
	assert.Len(t, rec.sent, 1)
	assert.Len(t, rec.states, 2, "state is published even without a change")
}

func TestControlTargetTemperatureTemplate(t *testing.T) {
	cfg := baseConfig()
	cfg.CommandTemperature = protocol.TemperatureTemplate{
		Command: protocol.Command{Data: []byte{0x31, 0x00, 0x00}},
		Field:   protocol.NumericField{Offset: 1, Length: 2, Precision: 10},
	}.Build
	c, rec := newClimate(t, cfg)

	c.Control(Call{TargetTemperature: ptr(21.5)})
	assert.Equal(t, []byte{0x31, 0x00, 0xD7}, rec.lastSent(t))
}

func TestControlAway(t *testing.T) {
	cfg := baseConfig()
	cfg.CommandAway = command(cmdAway...)
	cfg.CommandHome = command(cmdHome...)
	c, rec := newClimate(t, cfg)

	c.Control(Call{Away: ptr(true)})
	assert.True(t, c.State().Away)
	assert.Equal(t, cmdAway, rec.lastSent(t))

	c.Control(Call{Away: ptr(false)})
	assert.False(t, c.State().Away)
	assert.Equal(t, cmdHome, rec.lastSent(t))
}

func TestControlAwayOffResendsMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want []byte
	}{
		{ModeOff, cmdOff},
		{ModeHeat, cmdHeat},
		{ModeCool, cmdCool},
		{ModeAuto, cmdAuto},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			cfg := baseConfig()
			cfg.CommandAway = command(cmdAway...)
			cfg.CommandAuto = command(cmdAuto...)
			c, rec := newClimate(t, cfg)
			c.state.Mode = tt.mode
			c.state.Away = true

			c.Control(Call{Away: ptr(false)})
			require.Len(t, rec.sent, 1)
			assert.Equal(t, tt.want, rec.sent[0].Data)
		})
	}
}

func TestControlAwayOffWithoutModeCommand(t *testing.T) {
	cfg := baseConfig()
	cfg.CommandAway = command(cmdAway...)
	c, rec := newClimate(t, cfg)
	c.state.Mode = ModeAuto
	c.state.Away = true

	c.Control(Call{Away: ptr(false)})
	assert.False(t, c.State().Away)
	assert.Empty(t, rec.sent)
}

func TestControlAwayIgnoredWithoutCommand(t *testing.T) {
	c, rec := newClimate(t, baseConfig())

	c.Control(Call{Away: ptr(true)})
	assert.False(t, c.State().Away)
	assert.Empty(t, rec.sent)
	assert.Len(t, rec.states, 1)
}

func TestControlEverything(t *testing.T) {
	cfg := baseConfig()
	cfg.CommandAway = command(cmdAway...)
	c, rec := newClimate(t, cfg)

	c.Control(Call{Mode: ptr(ModeHeat), TargetTemperature: ptr(20.0), Away: ptr(true)})

	require.Len(t, rec.sent, 3)
	assert.Equal(t, cmdHeat, rec.sent[0].Data)
	assert.Equal(t, []byte{0x31, 20}, rec.sent[1].Data)
	assert.Equal(t, cmdAway, rec.sent[2].Data)
	assert.Len(t, rec.states, 1)
}

func TestTraits(t *testing.T) {
	cfg := baseConfig()
	cfg.CommandAway = command(cmdAway...)
	c, _ := newClimate(t, cfg)

	traits := c.Traits()
	assert.True(t, traits.SupportsHeat)
	assert.True(t, traits.SupportsCool)
	assert.False(t, traits.SupportsAuto)
	assert.True(t, traits.SupportsAway)
	assert.Equal(t, 5.0, traits.MinTemperature)
	assert.Equal(t, 40.0, traits.MaxTemperature)
	assert.Equal(t, 1.0, traits.TemperatureStep)
}

func TestParseMode(t *testing.T) {
	for _, mode := range []Mode{ModeOff, ModeHeat, ModeCool, ModeAuto} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	_, err := ParseMode("dry")
	assert.Error(t, err)
}

func TestTemperatureJSON(t *testing.T) {
	b, err := Temperature{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = Celsius(21.5).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "21.5", string(b))
}
