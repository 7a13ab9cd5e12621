package routes

import (
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/protocol"
)

const maxWriteBody = 1024

// Writer is implemented by rs485.Bus.
type Writer interface {
	Write(data []byte) error
}

// Write puts the hex encoded request body on the bus, framed like any command.
func Write(bus Writer, logger *zap.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWriteBody))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := protocol.ParseHex(string(body))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(data) == 0 {
			http.Error(w, "empty frame", http.StatusBadRequest)
			return
		}

		if err := bus.Write(data); err != nil {
			logger.Warn("Raw write failed", zap.Stringer("data", protocol.Frame(data)), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		logger.Info("Raw write", zap.Stringer("data", protocol.Frame(data)))
		w.WriteHeader(http.StatusNoContent)
	}
}
