package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// NewRouter serves the device states and metrics. POST /write is only registered
// when bus is not nil.
func NewRouter(states StateProvider, bus Writer, metrics http.Handler, logger *zap.Logger) *httprouter.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	router := httprouter.New()
	router.GET("/state", State(states, logger))
	if bus != nil {
		router.POST("/write", Write(bus, logger))
	}
	if metrics != nil {
		router.Handler(http.MethodGet, "/metrics", metrics)
	}

	return router
}
