package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gpib-manager/backend/internal/models"
	"github.com/gpib-manager/backend/internal/sequence"
	"github.com/gpib-manager/backend/internal/session"
	"github.com/gpib-manager/backend/internal/testutil"
	"github.com/gpib-manager/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testEnv struct {
	echo    *echo.Echo
	driver  *testutil.StubDriver
	session *session.Manager
	handler *Handler
}

func newTestEnv(t *testing.T, mw MiddlewareConfig) *testEnv {
	t.Helper()

	driver := testutil.NewStubDriver("OK")
	mgr := session.NewManager(driver)
	runner := sequence.NewRunner(mgr, sequence.WithSettleDelay(0))

	pulse := models.DefaultPulse()
	pulse.Name = "Slow square"
	opts := DefaultOptions()
	opts.Driver = "stub"
	opts.ListPorts = func() ([]string, error) { return []string{"/dev/ttyUSB0"}, nil }
	h := NewHandler(mgr, runner, []models.PulseConfig{pulse}, opts)

	e := echo.New()
	renderer, err := web.NewRenderer()
	require.NoError(t, err)
	e.Renderer = renderer
	SetupMiddleware(e, mw)
	RegisterRoutes(e, NewHandlers(h))

	return &testEnv{echo: e, driver: driver, session: mgr, handler: h}
}

func (env *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

type jsonBody struct {
	Status   string            `json:"status"`
	Response string            `json:"response"`
	Message  string            `json:"message"`
	Log      []models.LogEntry `json:"log"`
	History  []string          `json:"history"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) jsonBody {
	t.Helper()
	var body jsonBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHandleConnect(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})

	rec := env.postForm("/connect", url.Values{"address": {"10"}})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Connected to GPIB::10::INSTR", body.Status)
	require.Len(t, body.Log, 1)
	assert.Equal(t, "Connected to GPIB::10::INSTR", body.Log[0].Message)
	assert.NotNil(t, body.History)
	assert.Equal(t, []string{"GPIB::10::INSTR"}, env.driver.Opened())
}

func TestHandleConnect_Failure(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.driver.OpenErr = errors.New("no listener at address")

	rec := env.postForm("/connect", url.Values{"address": {"3"}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Error", body.Status)
	require.NotEmpty(t, body.Log)
	assert.Contains(t, body.Log[len(body.Log)-1].Message, "Connect error")
	assert.False(t, env.session.IsConnected())
}

func TestHandleConnect_InvalidAddressAfterConnect(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	require.Equal(t, http.StatusOK, env.postForm("/connect", url.Values{"address": {"10"}}).Code)

	rec := env.postForm("/connect", url.Values{"address": {"abc"}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error", decode(t, rec).Status)

	assert.Equal(t, "Not connected", decode(t, env.get("/status")).Status)
}

func TestHandleSend(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	require.Equal(t, http.StatusOK, env.postForm("/connect", url.Values{"address": {"10"}}).Code)

	rec := env.postForm("/send", url.Values{"command": {"*IDN?"}})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "OK", body.Response)
	assert.Equal(t, []string{"*IDN?"}, body.History)
	require.Len(t, body.Log, 3)
	assert.Equal(t, "> *IDN?", body.Log[1].Message)
	assert.Equal(t, "< OK", body.Log[2].Message)
}

func TestHandleSend_LogWindow(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.postForm("/connect", url.Values{"address": {"10"}})

	for i := 0; i < 8; i++ {
		env.postForm("/send", url.Values{"command": {"*IDN?"}})
	}

	body := decode(t, env.postForm("/send", url.Values{"command": {"*IDN?"}}))
	assert.Len(t, body.Log, 10)
	assert.Len(t, body.History, 1)
}

func TestHandleSend_EmptyCommand(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.postForm("/connect", url.Values{"address": {"10"}})

	rec := env.postForm("/send", url.Values{"command": {"   "}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"response":"Empty command"}`, rec.Body.String())
	assert.Empty(t, env.driver.Writes())
}

func TestHandleSend_NotConnected(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})

	rec := env.postForm("/send", url.Values{"command": {"*IDN?"}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Error: no device connected", body.Response)
	require.NotEmpty(t, body.Log)
	assert.Contains(t, body.Log[len(body.Log)-1].Message, "Send error")
}

func TestHandleSend_DriverError(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.postForm("/connect", url.Values{"address": {"10"}})
	env.driver.ReadErr = errors.New("timeout")

	rec := env.postForm("/send", url.Values{"command": {"*IDN?"}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(decode(t, rec).Response, "Error: "))
	assert.True(t, env.session.IsConnected())
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})

	body := decode(t, env.get("/status"))
	assert.Equal(t, "Not connected", body.Status)
	assert.NotNil(t, body.Log)

	env.postForm("/connect", url.Values{"address": {"10"}})
	for i := 0; i < 40; i++ {
		env.postForm("/send", url.Values{"command": {"*IDN?"}})
	}

	body = decode(t, env.get("/status"))
	assert.Equal(t, "Connected", body.Status)
	assert.Len(t, body.Log, 50)
	assert.Equal(t, []string{"*IDN?"}, body.History)
}

func TestHandleDisconnect(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.postForm("/connect", url.Values{"address": {"10"}})

	rec := env.postForm("/disconnect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Not connected", decode(t, rec).Status)
	assert.Equal(t, 0, env.driver.OpenHandles())

	// Idempotent
	assert.Equal(t, http.StatusOK, env.postForm("/disconnect", nil).Code)
}

func TestHandleStatusMsgpack(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.postForm("/connect", url.Values{"address": {"10"}})

	rec := env.get("/api/status/msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var snap models.Snapshot
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, models.StatusConnected, snap.Status)
	assert.True(t, snap.Connected)
	assert.Equal(t, "GPIB::10::INSTR", snap.Address)
}

func TestHandleIndex(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.postForm("/connect", url.Values{"address": {"10"}})
	env.postForm("/send", url.Values{"command": {"*IDN?"}})
	env.postForm("/send", url.Values{"command": {":VOLT?"}})

	rec := env.get("/")
	require.Equal(t, http.StatusOK, rec.Code)

	html := rec.Body.String()
	assert.Contains(t, html, "GPIB Device Manager")
	assert.Contains(t, html, "Slow square")
	newest := strings.Index(html, "<option>:VOLT?</option>")
	oldest := strings.Index(html, "<option>*IDN?</option>")
	require.NotEqual(t, -1, newest)
	require.NotEqual(t, -1, oldest)
	assert.Less(t, newest, oldest)
}

func TestHandlePulses(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})

	rec := env.get("/api/pulses")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pulses []models.PulseConfig `json:"pulses"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Slow square", body.Pulses[0].Name)
}

func TestHandleApplyPulse(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})
	env.postForm("/connect", url.Values{"address": {"10"}})

	rec := env.postForm("/api/pulses/apply", url.Values{"name": {"slow SQUARE"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "Applied", body.Status)
	assert.Equal(t, []string{
		sequence.CmdClearStatus,
		sequence.CmdReset,
		":SOURce:APPLy:SQUare 1.00E+00, 1.00, 0.00",
		":SOURce:FUNCtion:SQUare:DCYCle 50.00",
		sequence.CmdOutputOn,
		sequence.CmdTriggerInternal,
		sequence.CmdContinuousOff,
		":TRIGger:TIMer 2.0",
	}, env.driver.Writes())
	// Pulse writes do not enter the command history
	assert.Empty(t, body.History)
}

func TestHandleApplyPulse_Errors(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})

	rec := env.postForm("/api/pulses/apply", url.Values{"name": {"Slow square"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"CONFLICT"`)
	assert.Empty(t, env.driver.Writes())

	rec = env.postForm("/api/pulses/apply", url.Values{"name": {"missing"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)

	rec = env.postForm("/api/pulses/apply", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"VALIDATION_ERROR"`)
}

func TestHandlePorts(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})

	rec := env.get("/api/ports")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ports":["/dev/ttyUSB0"]}`, rec.Body.String())

	env.handler.opts.ListPorts = func() ([]string, error) { return nil, errors.New("no serial support") }
	rec = env.get("/api/ports")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no serial support")
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, MiddlewareConfig{})

	rec := env.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"dev","driver":"stub"}`, rec.Body.String())
}

func TestHandleSend_DirectContext(t *testing.T) {
	e := echo.New()
	driver := testutil.NewStubDriver("+1.000E+00")
	mgr := session.NewManager(driver)
	_, err := mgr.Connect("GPIB::4::INSTR")
	require.NoError(t, err)
	h := NewHandler(mgr, nil, nil, DefaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader("command=%3AVOLT%3F"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleSend(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "+1.000E+00", decode(t, rec).Response)
	}
}
