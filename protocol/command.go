package protocol

import "fmt"

// Command is one outgoing instruction. Ack is the response the device is expected
// to answer with; it is only reported, never awaited.
type Command struct {
	Data []byte
	Ack  []byte
}

func (c *Command) String() string {
	if c == nil {
		return "<none>"
	}

	if len(c.Ack) == 0 {
		return Hex(c.Data)
	}

	return fmt.Sprintf("%v, ack: %v", Hex(c.Data), Hex(c.Ack))
}

// Sender is the outbound write capability of the bus. Sending is fire-and-forget.
type Sender interface {
	Send(cmd Command)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(cmd Command)

func (f SenderFunc) Send(cmd Command) {
	f(cmd)
}

// FirstCommand returns the first configured command of a fallback chain, or nil.
func FirstCommand(chain ...*Command) *Command {
	for _, cmd := range chain {
		if cmd != nil && len(cmd.Data) > 0 {
			return cmd
		}
	}

	return nil
}

// TemperatureCommand converts a requested temperature into the command setting it.
type TemperatureCommand func(value float64) (Command, error)

// TemperatureTemplate builds temperature commands by writing the value into a copy
// of Command.Data at Field.
type TemperatureTemplate struct {
	Command Command
	Field   NumericField
}

func (t TemperatureTemplate) Build(value float64) (Command, error) {
	data := make([]byte, len(t.Command.Data))
	copy(data, t.Command.Data)

	if err := t.Field.Encode(value, data); err != nil {
		return Command{}, fmt.Errorf("error encoding temperature %v: %w", value, err)
	}

	return Command{Data: data, Ack: t.Command.Ack}, nil
}
