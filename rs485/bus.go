package rs485

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/victorjacobs/go-rs485/metrics"
	"github.com/victorjacobs/go-rs485/protocol"
)

const maxFrameSize = 256

var (
	ErrFraming  = errors.New("invalid framing")
	ErrChecksum = errors.New("checksum mismatch")
)

type Config struct {
	Prefix    []byte
	Suffix    []byte
	Checksum  Checksum
	Checksum2 Checksum
	// TxInterval is the minimum gap between two writes.
	TxInterval time.Duration
}

// Listener receives the frames addressed to one device.
type Listener struct {
	Name      string
	Device    protocol.Pattern
	SubDevice *protocol.Pattern
	Handle    func(frame protocol.Frame)
}

func (l *Listener) accepts(frame protocol.Frame) bool {
	return l.Device.Matches(frame) && (l.SubDevice == nil || l.SubDevice.Matches(frame))
}

// Bus frames outgoing commands and routes incoming frames to listeners.
type Bus struct {
	conn    Connection
	cfg     Config
	metrics *metrics.AppMetrics
	logger  *zap.Logger

	mutex   sync.Mutex
	limiter *rate.Limiter

	listeners []Listener
	monitor   *Monitor
	pending   []byte
}

func NewBus(conn Connection, cfg Config, m *metrics.AppMetrics, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.TxInterval > 0 {
		limit = rate.Every(cfg.TxInterval)
	}

	return &Bus{
		conn:    conn,
		cfg:     cfg,
		metrics: m,
		logger:  logger.Named("rs485"),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Register adds a listener. Listeners must be registered before Run.
func (b *Bus) Register(l Listener) {
	b.listeners = append(b.listeners, l)
}

func (b *Bus) SetMonitor(m *Monitor) {
	b.monitor = m
}

// Send writes a command to the bus. Failures are logged, never returned.
func (b *Bus) Send(cmd protocol.Command) {
	if err := b.Write(cmd.Data); err != nil {
		b.logger.Warn("Write failed", zap.Stringer("data", protocol.Frame(cmd.Data)), zap.Error(err))
		return
	}

	if len(cmd.Ack) > 0 {
		b.logger.Debug("Expecting ack", zap.Stringer("ack", protocol.Frame(cmd.Ack)))
	}
}

// Write frames data and writes it, keeping TxInterval between writes.
func (b *Bus) Write(data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.limiter.Wait(context.Background()); err != nil {
		return err
	}

	packed := b.Pack(data)
	n, err := b.conn.Write(packed)
	if err != nil {
		return err
	}

	if n != len(packed) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(packed))
	}

	if b.metrics != nil {
		b.metrics.FramesSent.Inc()
	}
	b.logger.Debug("Wrote frame", zap.Stringer("frame", protocol.Frame(packed)))

	return nil
}

// Pack wraps data in prefix, checksums and suffix. Checksums cover the prefix, and
// the second checksum also covers the first.
func (b *Bus) Pack(data []byte) []byte {
	packed := make([]byte, 0, len(b.cfg.Prefix)+len(data)+2+len(b.cfg.Suffix))
	packed = append(packed, b.cfg.Prefix...)
	packed = append(packed, data...)

	if b.cfg.Checksum != ChecksumNone {
		packed = append(packed, b.cfg.Checksum.compute(packed))
	}
	if b.cfg.Checksum2 != ChecksumNone {
		packed = append(packed, b.cfg.Checksum2.compute(packed))
	}

	return append(packed, b.cfg.Suffix...)
}

// Unpack validates a raw frame and returns the data between prefix and checksums.
func (b *Bus) Unpack(raw []byte) (protocol.Frame, error) {
	overhead := len(b.cfg.Prefix) + b.cfg.Checksum.size() + b.cfg.Checksum2.size() + len(b.cfg.Suffix)
	if len(raw) <= overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrFraming, len(raw))
	}

	if !bytes.HasPrefix(raw, b.cfg.Prefix) || !bytes.HasSuffix(raw, b.cfg.Suffix) {
		return nil, fmt.Errorf("%w: missing prefix or suffix", ErrFraming)
	}

	body := raw[:len(raw)-len(b.cfg.Suffix)]

	if b.cfg.Checksum2 != ChecksumNone {
		last := len(body) - 1
		if got, want := body[last], b.cfg.Checksum2.compute(body[:last]); got != want {
			return nil, fmt.Errorf("%w: checksum2 0x%02X, expected 0x%02X", ErrChecksum, got, want)
		}
		body = body[:last]
	}

	if b.cfg.Checksum != ChecksumNone {
		last := len(body) - 1
		if got, want := body[last], b.cfg.Checksum.compute(body[:last]); got != want {
			return nil, fmt.Errorf("%w: checksum 0x%02X, expected 0x%02X", ErrChecksum, got, want)
		}
		body = body[:last]
	}

	frame := make(protocol.Frame, len(body)-len(b.cfg.Prefix))
	copy(frame, body[len(b.cfg.Prefix):])

	return frame, nil
}

// Run reads from the connection until the context is cancelled or the connection
// fails. Listeners are called from this goroutine only.
//
// A read that returns no bytes means the line was idle for RxWait, which ends the
// frame being collected. Connections that deliver whole frames end a frame on
// every read instead.
func (b *Bus) Run(ctx context.Context) error {
	b.mutex.Lock()
	conn := b.conn
	b.mutex.Unlock()

	_, wholeFrames := conn.(FrameConnection)
	buf := make([]byte, maxFrameSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := conn.Read(buf)
		if err != nil {
			b.flush()
			return fmt.Errorf("read failed: %w", err)
		}

		if n == 0 {
			b.flush()
			continue
		}

		if b.metrics != nil {
			b.metrics.BytesReceived.Add(float64(n))
		}

		b.pending = append(b.pending, buf[:n]...)
		if wholeFrames {
			b.flush()
			continue
		}

		b.extract()
		if len(b.pending) > maxFrameSize {
			b.logger.Warn("Discarding oversized frame", zap.Int("size", len(b.pending)))
			b.count("invalid")
			b.pending = b.pending[:0]
		}
	}
}

// flush hands whatever was collected to Receive as one frame.
func (b *Bus) flush() {
	if len(b.pending) == 0 {
		return
	}

	raw := make([]byte, len(b.pending))
	copy(raw, b.pending)
	b.pending = b.pending[:0]

	b.Receive(raw)
}

// extract dispatches the complete frames at the start of pending. A frame ends at
// a suffix only when everything up to it unpacks, so a data or checksum byte equal
// to the suffix does not cut the frame short.
func (b *Bus) extract() {
	if len(b.cfg.Suffix) == 0 {
		return
	}

	for {
		if len(b.cfg.Prefix) > 0 {
			start := bytes.Index(b.pending, b.cfg.Prefix)
			if start < 0 {
				// Keep a prefix that may be completed by the next read
				keep := min(len(b.pending), len(b.cfg.Prefix)-1)
				b.pending = append(b.pending[:0], b.pending[len(b.pending)-keep:]...)
				return
			}
			b.pending = b.pending[start:]
		}

		frame, end := b.nextFrame()
		if frame == nil {
			return
		}

		b.pending = b.pending[end:]
		b.dispatch(frame)
	}
}

// nextFrame returns the first valid frame in pending and where it ends, or nil.
func (b *Bus) nextFrame() (protocol.Frame, int) {
	from := len(b.cfg.Prefix)

	for {
		i := bytes.Index(b.pending[from:], b.cfg.Suffix)
		if i < 0 {
			return nil, 0
		}

		end := from + i + len(b.cfg.Suffix)
		if frame, err := b.Unpack(b.pending[:end]); err == nil {
			return frame, end
		}

		from += i + 1
	}
}

// Receive validates a raw frame and dispatches it to every listener that accepts it.
func (b *Bus) Receive(raw []byte) {
	frame, err := b.Unpack(raw)
	if err != nil {
		b.count("invalid")
		b.logger.Debug("Dropping frame", zap.Stringer("frame", protocol.Frame(raw)), zap.Error(err))
		return
	}

	b.dispatch(frame)
}

func (b *Bus) dispatch(frame protocol.Frame) {
	if b.monitor != nil {
		b.monitor.Observe(frame)
	}

	handled := false
	for i := range b.listeners {
		if b.listeners[i].accepts(frame) {
			b.listeners[i].Handle(frame)
			handled = true
		}
	}

	if handled {
		b.count("ok")
	} else {
		b.count("unmatched")
	}
}

func (b *Bus) count(result string) {
	if b.metrics != nil {
		b.metrics.FramesReceived.WithLabelValues(result).Inc()
	}
}

// Reconnect replaces a failed connection. It must not be called while Run is active.
func (b *Bus) Reconnect(conn Connection) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.conn.Close(); err != nil {
		b.logger.Debug("Closing old connection failed", zap.Error(err))
	}
	b.conn = conn
	b.pending = b.pending[:0]
}

func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.conn.Close()
}
