package models

// ConnectionStatus is the state of the instrument connection as shown to clients.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "Connected"
	StatusNotConnected ConnectionStatus = "Not connected"
	StatusError        ConnectionStatus = "Error"
)

// Snapshot is a consistent copy of the session state taken under its lock.
type Snapshot struct {
	Log       []LogEntry       `json:"log" msgpack:"log"`
	History   []string         `json:"history" msgpack:"history"`
	Status    ConnectionStatus `json:"status" msgpack:"status"`
	Address   string           `json:"address,omitempty" msgpack:"address,omitempty"`
	Connected bool             `json:"-" msgpack:"connected"`
}

// InstrumentInfo is the decoded reply to an *IDN? query.
type InstrumentInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Version      string `json:"version"`
	Raw          string `json:"raw"`
}
