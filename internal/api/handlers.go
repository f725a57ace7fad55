package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gpib-manager/backend/internal/models"
	"github.com/gpib-manager/backend/internal/parser"
	"github.com/gpib-manager/backend/internal/session"
	"github.com/gpib-manager/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Options tunes what the handlers return.
type Options struct {
	Version          string
	Driver           string
	DefaultAddress   string
	ResponseLogLines int // log lines returned by /connect and /send
	StatusLogLines   int // log lines returned by /status
	PageHistoryLines int // history entries rendered on the page
	PollIntervalMs   int
	// ListPorts enumerates serial ports for /api/ports; nil disables it.
	ListPorts func() ([]string, error)
}

// DefaultOptions returns the stock log and history windows.
func DefaultOptions() Options {
	return Options{
		Version:          "dev",
		DefaultAddress:   "1",
		ResponseLogLines: 10,
		StatusLogLines:   50,
		PageHistoryLines: 20,
		PollIntervalMs:   2000,
	}
}

// Handler handles API requests.
type Handler struct {
	session SessionManager
	runner  PulseApplier
	pulses  []models.PulseConfig
	opts    Options
}

// NewHandler creates a new API handler.
func NewHandler(sess SessionManager, runner PulseApplier, pulses []models.PulseConfig, opts Options) *Handler {
	return &Handler{
		session: sess,
		runner:  runner,
		pulses:  pulses,
		opts:    opts,
	}
}

type connectResponse struct {
	Status  string            `json:"status"`
	Log     []models.LogEntry `json:"log"`
	History []string          `json:"history"`
}

type sendResponse struct {
	Response string            `json:"response"`
	Log      []models.LogEntry `json:"log,omitempty"`
	History  []string          `json:"history,omitempty"`
}

type applyResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Pulse   string            `json:"pulse"`
	Log     []models.LogEntry `json:"log"`
	History []string          `json:"history"`
}

// HandleIndex renders the control page with the newest commands first.
func (h *Handler) HandleIndex(c echo.Context) error {
	snap := h.session.Snapshot(1, h.opts.PageHistoryLines)
	history := snap.History
	slices.Reverse(history)

	return c.Render(http.StatusOK, web.IndexTemplate, web.PageData{
		Title:          "GPIB Web Manager",
		History:        history,
		Pulses:         h.pulses,
		DefaultAddress: h.opts.DefaultAddress,
		Status:         snap.Status,
		Address:        snap.Address,
		Driver:         h.opts.Driver,
		PollIntervalMs: h.opts.PollIntervalMs,
	})
}

// HandleConnect opens the instrument named by the address form field.
func (h *Handler) HandleConnect(c echo.Context) error {
	address := strings.TrimSpace(c.FormValue("address"))

	status, err := h.session.Connect(address)
	snap := h.session.Snapshot(h.opts.ResponseLogLines, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, connectResponse{
			Status:  string(models.StatusError),
			Log:     snap.Log,
			History: snap.History,
		})
	}

	return c.JSON(http.StatusOK, connectResponse{
		Status:  status,
		Log:     snap.Log,
		History: snap.History,
	})
}

// HandleDisconnect closes the instrument connection if one is open.
func (h *Handler) HandleDisconnect(c echo.Context) error {
	err := h.session.Disconnect()
	snap := h.session.Snapshot(h.opts.ResponseLogLines, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, connectResponse{
			Status:  string(models.StatusError),
			Log:     snap.Log,
			History: snap.History,
		})
	}

	return c.JSON(http.StatusOK, connectResponse{
		Status:  string(snap.Status),
		Log:     snap.Log,
		History: snap.History,
	})
}

// HandleSend forwards the command form field and returns the reply.
func (h *Handler) HandleSend(c echo.Context) error {
	resp, err := h.session.Send(c.FormValue("command"))
	if errors.Is(err, session.ErrEmptyCommand) {
		return c.JSON(http.StatusBadRequest, sendResponse{Response: "Empty command"})
	}

	snap := h.session.Snapshot(h.opts.ResponseLogLines, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, sendResponse{
			Response: fmt.Sprintf("Error: %v", err),
			Log:      snap.Log,
			History:  snap.History,
		})
	}

	return c.JSON(http.StatusOK, sendResponse{
		Response: resp,
		Log:      snap.Log,
		History:  snap.History,
	})
}

// HandleStatus is polled by the page to refresh log, history and status.
func (h *Handler) HandleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Snapshot(h.opts.StatusLogLines, 0))
}

// HandleStatusMsgpack returns the status snapshot in MessagePack format.
func (h *Handler) HandleStatusMsgpack(c echo.Context) error {
	data, err := msgpack.Marshal(h.session.Snapshot(h.opts.StatusLogLines, 0))
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandlePulses lists the loaded pulse presets.
func (h *Handler) HandlePulses(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pulses": h.pulses,
		"count":  len(h.pulses),
	})
}

// HandleApplyPulse configures the connected instrument for the named preset.
func (h *Handler) HandleApplyPulse(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return NewValidationError("name")
	}

	pulse, ok := parser.FindPulse(h.pulses, name)
	if !ok {
		return NewNotFoundError("pulse", name)
	}

	err := h.runner.Apply(c.Request().Context(), pulse)
	if errors.Is(err, session.ErrNotConnected) {
		return NewConflictError("connect to an instrument before applying a pulse")
	}
	if err != nil {
		h.session.AppendLog(fmt.Sprintf("Apply error: %v", err))
	} else {
		h.session.AppendLog(fmt.Sprintf("Applied %s", pulse))
	}

	snap := h.session.Snapshot(h.opts.ResponseLogLines, 0)
	resp := applyResponse{
		Status:  "Applied",
		Message: fmt.Sprintf("Applied %s", pulse.Name),
		Pulse:   pulse.Name,
		Log:     snap.Log,
		History: snap.History,
	}
	if err != nil {
		resp.Status = string(models.StatusError)
		resp.Message = fmt.Sprintf("Error: %v", err)
		return c.JSON(http.StatusInternalServerError, resp)
	}

	return c.JSON(http.StatusOK, resp)
}

// HandlePorts lists the serial ports a Prologix adapter could be on.
func (h *Handler) HandlePorts(c echo.Context) error {
	if h.opts.ListPorts == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"ports": []string{}})
	}

	ports, err := h.opts.ListPorts()
	if err != nil {
		return NewInternalError("failed to list serial ports", err)
	}
	if ports == nil {
		ports = []string{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ports": ports})
}
