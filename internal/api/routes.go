// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Instrument InstrumentHandler
	Pulse      PulseHandler
}

// NewHandlers creates all handler instances
func NewHandlers(h *Handler) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(h.opts.Version, h.opts.Driver),
		Instrument: h,
		Pulse:      h,
	}
}

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// Control page and session routes
	e.GET("/", handlers.Instrument.HandleIndex)
	e.POST("/connect", handlers.Instrument.HandleConnect)
	e.POST("/disconnect", handlers.Instrument.HandleDisconnect)
	e.POST("/send", handlers.Instrument.HandleSend)
	e.GET("/status", handlers.Instrument.HandleStatus)

	apiGroup := e.Group("/api")
	apiGroup.GET("/status/msgpack", handlers.Instrument.HandleStatusMsgpack)
	apiGroup.GET("/pulses", handlers.Pulse.HandlePulses)
	apiGroup.POST("/pulses/apply", handlers.Pulse.HandleApplyPulse)
	apiGroup.GET("/ports", handlers.Pulse.HandlePorts)
}

// MiddlewareConfig selects the middleware SetupMiddleware installs
type MiddlewareConfig struct {
	RequestLogging bool
	BodyLimit      string
	EnableCORS     bool
	AllowOrigins   []string

	// Basic auth is enabled when Password is set
	Password     string
	Realm        string
	ExcludedPath string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.RequestLogging {
				return true
			}
			// The page polls /status every couple of seconds
			path := c.Request().URL.Path
			return path == "/status" || path == "/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.EnableCORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	if cfg.Password != "" {
		e.Use(BasicAuth(cfg.Password, cfg.Realm, cfg.ExcludedPath))
	}
}

// BasicAuth requires HTTP Basic credentials carrying password on every
// request except excludedPath. Any user name is accepted.
func BasicAuth(password, realm, excludedPath string) echo.MiddlewareFunc {
	if realm == "" {
		realm = "GPIB"
	}
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Skipper: func(c echo.Context) bool {
			return excludedPath != "" && c.Request().URL.Path == excludedPath
		},
		Validator: func(_, given string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(given), []byte(password)) == 1, nil
		},
		Realm: realm,
	})
}

// SplitOrigins parses a comma-separated origin list
func SplitOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
