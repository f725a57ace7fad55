// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/gpib-manager/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// InstrumentHandler serves the control page and the session endpoints
type InstrumentHandler interface {
	HandleIndex(c echo.Context) error
	HandleConnect(c echo.Context) error
	HandleDisconnect(c echo.Context) error
	HandleSend(c echo.Context) error
	HandleStatus(c echo.Context) error
	HandleStatusMsgpack(c echo.Context) error
}

// PulseHandler serves the pulse preset endpoints
type PulseHandler interface {
	HandlePulses(c echo.Context) error
	HandleApplyPulse(c echo.Context) error
	HandlePorts(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the session operations the handlers use.
// This allows mocking in tests
type SessionManager interface {
	Connect(address string) (string, error)
	Disconnect() error
	Send(command string) (string, error)
	AppendLog(message string)
	Snapshot(logLimit, historyLimit int) models.Snapshot
}

// PulseApplier configures the connected instrument for a pulse
type PulseApplier interface {
	Apply(ctx context.Context, cfg models.PulseConfig) error
}
