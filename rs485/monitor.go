package rs485

import (
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/protocol"
)

type Filter struct {
	Pattern  protocol.Pattern
	Inverted bool
}

func (f Filter) accepts(frame protocol.Frame) bool {
	return f.Pattern.Matches(frame) != f.Inverted
}

// Monitor logs every valid frame accepted by its filters. Without filters every frame
// is logged; with filters a frame is logged when any filter accepts it.
type Monitor struct {
	filters []Filter
	logger  *zap.Logger
}

func NewMonitor(filters []Filter, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		filters: filters,
		logger:  logger.Named("monitor"),
	}
}

func (m *Monitor) Accepts(frame protocol.Frame) bool {
	if len(m.filters) == 0 {
		return true
	}

	for _, filter := range m.filters {
		if filter.accepts(frame) {
			return true
		}
	}

	return false
}

func (m *Monitor) Observe(frame protocol.Frame) {
	if m.Accepts(frame) {
		m.logger.Info("Frame", zap.Stringer("data", frame), zap.Int("len", len(frame)))
	}
}
