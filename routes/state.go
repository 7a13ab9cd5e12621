package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/victorjacobs/go-rs485/bridge"
)

// StateProvider is implemented by bridge.Bridge.
type StateProvider interface {
	States() bridge.States
}

type stateResponse struct {
	bridge.States
	LastRefreshed time.Time `json:"last_refreshed"`
}

func State(b StateProvider, logger *zap.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		resp := stateResponse{
			States:        b.States(),
			LastRefreshed: time.Now(),
		}

		marshaled, err := json.Marshal(resp)
		if err != nil {
			logger.Error("Error marshaling state", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(marshaled)
	}
}
