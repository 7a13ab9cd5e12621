package config

import (
	"errors"
	"fmt"

	"github.com/victorjacobs/go-rs485/climate"
	"github.com/victorjacobs/go-rs485/fan"
	"github.com/victorjacobs/go-rs485/protocol"
	"github.com/victorjacobs/go-rs485/rs485"
)

type HexPattern struct {
	Data     string `mapstructure:"data"`
	Offset   int    `mapstructure:"offset"`
	Inverted bool   `mapstructure:"inverted"`
}

func (h *HexPattern) Pattern() (*protocol.Pattern, error) {
	if h == nil {
		return nil, nil
	}

	data, err := protocol.ParseHex(h.Data)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("pattern data is empty")
	}
	if h.Offset < 0 || h.Offset > 128 {
		return nil, fmt.Errorf("pattern offset %d out of range 0..128", h.Offset)
	}

	return &protocol.Pattern{Offset: h.Offset, Data: data}, nil
}

type HexCommand struct {
	Data string `mapstructure:"data"`
	Ack  string `mapstructure:"ack"`
}

func (h *HexCommand) Command() (*protocol.Command, error) {
	if h == nil {
		return nil, nil
	}

	data, err := protocol.ParseHex(h.Data)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("command data is empty")
	}

	ack, err := protocol.ParseHex(h.Ack)
	if err != nil {
		return nil, err
	}

	return &protocol.Command{Data: data, Ack: ack}, nil
}

type NumericState struct {
	Offset    int `mapstructure:"offset"`
	Length    int `mapstructure:"length"`
	Precision int `mapstructure:"precision"`
}

func (n *NumericState) Field() (*protocol.NumericField, error) {
	if n == nil {
		return nil, nil
	}

	length := n.Length
	if length == 0 {
		length = 1
	}
	if length < 1 || length > 4 {
		return nil, fmt.Errorf("length %d out of range 1..4", n.Length)
	}
	if n.Offset < 0 || n.Offset > 128 {
		return nil, fmt.Errorf("offset %d out of range 0..128", n.Offset)
	}
	if !isPowerOfTen(n.Precision) {
		return nil, fmt.Errorf("precision %d is not a power of ten", n.Precision)
	}

	return &protocol.NumericField{Offset: n.Offset, Length: length, Precision: n.Precision}, nil
}

func isPowerOfTen(n int) bool {
	if n == 0 {
		return true
	}
	for n%10 == 0 {
		n /= 10
	}
	return n == 1
}

// TemperatureCommand is a command template; the requested temperature is written
// into Data at Offset.
type TemperatureCommand struct {
	HexCommand   `mapstructure:",squash"`
	NumericState `mapstructure:",squash"`
}

func (t *TemperatureCommand) Build() (protocol.TemperatureCommand, error) {
	if t == nil {
		return nil, errors.New("command_temperature is required")
	}

	cmd, err := t.HexCommand.Command()
	if err != nil {
		return nil, fmt.Errorf("command_temperature: %w", err)
	}

	field, err := t.NumericState.Field()
	if err != nil {
		return nil, fmt.Errorf("command_temperature: %w", err)
	}
	if !field.Fits(cmd.Data) {
		return nil, errors.New("command_temperature: value does not fit in data")
	}

	return protocol.TemperatureTemplate{Command: *cmd, Field: *field}.Build, nil
}

// Device holds what every bus device shares: its address patterns and polling command.
type Device struct {
	Name         string      `mapstructure:"name"`
	Device       HexPattern  `mapstructure:"device"`
	SubDevice    *HexPattern `mapstructure:"sub_device"`
	CommandState *HexCommand `mapstructure:"command_state"`
}

func (d *Device) Listener(handle func(protocol.Frame)) (rs485.Listener, error) {
	device, err := d.Device.Pattern()
	if err != nil {
		return rs485.Listener{}, fmt.Errorf("device: %w", err)
	}

	subDevice, err := d.SubDevice.Pattern()
	if err != nil {
		return rs485.Listener{}, fmt.Errorf("sub_device: %w", err)
	}

	return rs485.Listener{Name: d.Name, Device: *device, SubDevice: subDevice, Handle: handle}, nil
}

func (d *Device) validate() error {
	if d.Name == "" {
		return errors.New("name is required")
	}
	if _, err := d.Listener(nil); err != nil {
		return err
	}
	if _, err := d.CommandState.Command(); err != nil {
		return fmt.Errorf("command_state: %w", err)
	}
	return nil
}

type Climate struct {
	Device `mapstructure:",squash"`

	// SensorTopic is an MQTT topic carrying the current temperature, replacing
	// StateCurrent.
	SensorTopic  string        `mapstructure:"sensor_topic"`
	StateCurrent *NumericState `mapstructure:"state_current"`
	StateTarget  *NumericState `mapstructure:"state_target"`

	StateOff  *HexPattern `mapstructure:"state_off"`
	StateHeat *HexPattern `mapstructure:"state_heat"`
	StateCool *HexPattern `mapstructure:"state_cool"`
	StateAuto *HexPattern `mapstructure:"state_auto"`
	StateAway *HexPattern `mapstructure:"state_away"`

	CommandOff         *HexCommand         `mapstructure:"command_off"`
	CommandHeat        *HexCommand         `mapstructure:"command_heat"`
	CommandCool        *HexCommand         `mapstructure:"command_cool"`
	CommandAuto        *HexCommand         `mapstructure:"command_auto"`
	CommandAway        *HexCommand         `mapstructure:"command_away"`
	CommandHome        *HexCommand         `mapstructure:"command_home"`
	CommandTemperature *TemperatureCommand `mapstructure:"command_temperature"`
}

func (c *Climate) validate() error {
	if err := c.Device.validate(); err != nil {
		return err
	}
	if (c.SensorTopic == "") == (c.StateCurrent == nil) {
		return errors.New("exactly one of sensor_topic and state_current is required")
	}
	if c.StateTarget == nil {
		return errors.New("state_target is required")
	}
	if c.CommandOff == nil {
		return errors.New("command_off is required")
	}
	if c.CommandHeat == nil && c.CommandCool == nil && c.CommandAuto == nil {
		return errors.New("at least one of command_heat, command_cool and command_auto is required")
	}

	_, err := c.AdapterConfig()
	return err
}

// AdapterConfig converts the file representation into the climate tables.
func (c *Climate) AdapterConfig() (climate.Config, error) {
	cfg := climate.Config{Name: c.Name, ExternalSensor: c.SensorTopic != ""}
	p := parser{}

	cfg.StateCurrent.Field = p.field("state_current", c.StateCurrent)
	cfg.StateTarget.Field = p.field("state_target", c.StateTarget)

	cfg.StateOff = p.pattern("state_off", c.StateOff)
	cfg.StateHeat = p.pattern("state_heat", c.StateHeat)
	cfg.StateCool = p.pattern("state_cool", c.StateCool)
	cfg.StateAuto = p.pattern("state_auto", c.StateAuto)
	cfg.StateAway = p.pattern("state_away", c.StateAway)

	if off := p.command("command_off", c.CommandOff); off != nil {
		cfg.CommandOff = *off
	}
	cfg.CommandHeat = p.command("command_heat", c.CommandHeat)
	cfg.CommandCool = p.command("command_cool", c.CommandCool)
	cfg.CommandAuto = p.command("command_auto", c.CommandAuto)
	cfg.CommandAway = p.command("command_away", c.CommandAway)
	cfg.CommandHome = p.command("command_home", c.CommandHome)

	if p.err == nil {
		cfg.CommandTemperature, p.err = c.CommandTemperature.Build()
	}

	return cfg, p.err
}

type Fan struct {
	Device `mapstructure:",squash"`

	StateOn          *HexPattern `mapstructure:"state_on"`
	StateOff         *HexPattern `mapstructure:"state_off"`
	StateSpeedLow    *HexPattern `mapstructure:"state_speed_low"`
	StateSpeedMedium *HexPattern `mapstructure:"state_speed_medium"`
	StateSpeedHigh   *HexPattern `mapstructure:"state_speed_high"`

	CommandOn          *HexCommand `mapstructure:"command_on"`
	CommandOff         *HexCommand `mapstructure:"command_off"`
	CommandSpeedLow    *HexCommand `mapstructure:"command_speed_low"`
	CommandSpeedMedium *HexCommand `mapstructure:"command_speed_medium"`
	CommandSpeedHigh   *HexCommand `mapstructure:"command_speed_high"`
}

func (f *Fan) validate() error {
	if err := f.Device.validate(); err != nil {
		return err
	}
	if f.StateOn == nil || f.StateOff == nil {
		return errors.New("state_on and state_off are required")
	}
	if f.CommandOn == nil || f.CommandOff == nil {
		return errors.New("command_on and command_off are required")
	}

	if _, err := f.AdapterConfig(); err != nil {
		return err
	}
	_, _, err := f.PowerPatterns()
	return err
}

func (f *Fan) AdapterConfig() (fan.Config, error) {
	cfg := fan.Config{Name: f.Name}
	p := parser{}

	cfg.StateSpeedLow = p.pattern("state_speed_low", f.StateSpeedLow)
	cfg.StateSpeedMedium = p.pattern("state_speed_medium", f.StateSpeedMedium)
	cfg.StateSpeedHigh = p.pattern("state_speed_high", f.StateSpeedHigh)

	if on := p.command("command_on", f.CommandOn); on != nil {
		cfg.CommandOn = *on
	}
	if off := p.command("command_off", f.CommandOff); off != nil {
		cfg.CommandOff = *off
	}
	cfg.CommandSpeedLow = p.command("command_speed_low", f.CommandSpeedLow)
	cfg.CommandSpeedMedium = p.command("command_speed_medium", f.CommandSpeedMedium)
	cfg.CommandSpeedHigh = p.command("command_speed_high", f.CommandSpeedHigh)

	return cfg, p.err
}

// PowerPatterns returns the patterns reporting the fan switched on and off.
func (f *Fan) PowerPatterns() (on, off *protocol.Pattern, err error) {
	p := parser{}
	on = p.pattern("state_on", f.StateOn)
	off = p.pattern("state_off", f.StateOff)
	return on, off, p.err
}

// parser keeps the first conversion error so tables can be filled in one go.
type parser struct {
	err error
}

func (p *parser) pattern(key string, h *HexPattern) *protocol.Pattern {
	pattern, err := h.Pattern()
	p.keep(key, err)
	return pattern
}

func (p *parser) command(key string, h *HexCommand) *protocol.Command {
	cmd, err := h.Command()
	p.keep(key, err)
	return cmd
}

func (p *parser) field(key string, n *NumericState) *protocol.NumericField {
	field, err := n.Field()
	p.keep(key, err)
	return field
}

func (p *parser) keep(key string, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%v: %w", key, err)
	}
}

func (b *Bus) Framing() (rs485.Config, error) {
	prefix, err := protocol.ParseHex(b.Prefix)
	if err != nil {
		return rs485.Config{}, fmt.Errorf("bus prefix: %w", err)
	}

	suffix, err := protocol.ParseHex(b.Suffix)
	if err != nil {
		return rs485.Config{}, fmt.Errorf("bus suffix: %w", err)
	}

	checksum, err := rs485.ParseChecksum(b.Checksum)
	if err != nil {
		return rs485.Config{}, err
	}

	checksum2, err := rs485.ParseChecksum(b.Checksum2)
	if err != nil {
		return rs485.Config{}, err
	}

	return rs485.Config{
		Prefix:     prefix,
		Suffix:     suffix,
		Checksum:   checksum,
		Checksum2:  checksum2,
		TxInterval: b.TxInterval,
	}, nil
}

func (b *Bus) Serial(port string) rs485.SerialConfig {
	return rs485.SerialConfig{
		Port:     port,
		BaudRate: b.BaudRate,
		DataBits: b.DataBits,
		Parity:   b.Parity,
		StopBits: b.StopBits,
		RxWait:   b.RxWait,
	}
}

func (c *Configuration) MonitorFilters() ([]rs485.Filter, error) {
	filters := make([]rs485.Filter, 0, len(c.Monitor))
	for i := range c.Monitor {
		pattern, err := c.Monitor[i].Pattern()
		if err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
		filters = append(filters, rs485.Filter{Pattern: *pattern, Inverted: c.Monitor[i].Inverted})
	}

	return filters, nil
}
