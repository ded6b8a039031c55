package di

import (
	"net/http"

	"go.uber.org/zap"

	"statbucket/application/ports"
	"statbucket/application/stats"
	"statbucket/infrastructure/config"
	"statbucket/infrastructure/observability"
)

// Container holds the wired application dependencies.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Collector *observability.Collector
	Store     ports.Store
	Service   *stats.Service
	Handler   http.Handler
}

// Shutdown flushes buffered state before the process exits.
func (c *Container) Shutdown() {
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
