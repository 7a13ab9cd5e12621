package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/rs485"
)

var reconnectDelay = time.Second

// loopSafely calls f until the context is done, restarting it after a panic.
func loopSafely(ctx context.Context, logger *zap.Logger, f func()) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("Panic, restarting", zap.Any("panic", v))
			time.Sleep(time.Second)
			go loopSafely(ctx, logger, f)
		}
	}()

	for ctx.Err() == nil {
		f()
	}
}

// runBus runs the bus once. When the connection fails it is reopened, so the next
// run reads from a working connection.
func runBus(ctx context.Context, bus *rs485.Bus, reopen func() (rs485.Connection, string, error), logger *zap.Logger) {
	err := bus.Run(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}

	logger.Error("Bus stopped, reconnecting", zap.Error(err))
	time.Sleep(reconnectDelay)

	conn, info, err := reopen()
	if err != nil {
		logger.Error("Reconnecting failed", zap.Error(err))
		return
	}

	bus.Reconnect(conn)
	logger.Info("Reconnected to bus", zap.String("connection", info))
}
