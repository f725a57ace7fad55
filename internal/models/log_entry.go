// Package models contains domain types for the GPIB Web Manager.
package models

import "encoding/json"

// LogTimeLayout is the wall-clock format used for log timestamps.
const LogTimeLayout = "15:04:05"

// LogEntry is one line of the rolling session log.
type LogEntry struct {
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
	Message   string `json:"message" msgpack:"message"`
}

// MarshalJSON encodes the entry as a [timestamp, message] pair, the shape
// the browser client renders.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Timestamp, e.Message})
}

// UnmarshalJSON accepts the [timestamp, message] pair produced by MarshalJSON.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	e.Timestamp, e.Message = pair[0], pair[1]
	return nil
}
