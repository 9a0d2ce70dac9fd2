// Package protocol implements the request codec (C3): the tagged-union
// command requests and the uniform envelope responses exchanged over the
// secure channel.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Command tags. A request is either a bare string matching one of these,
// or an object of the shape {"StartClash": StartBody} for CmdStartClash.
const (
	CmdGetVersion  = "GetVersion"
	CmdGetClash    = "GetClash"
	CmdGetLogs     = "GetLogs"
	CmdStartClash  = "StartClash"
	CmdStopClash   = "StopClash"
	CmdStopService = "StopService"
)

// StartBody carries everything the supervisor needs to spawn the core.
type StartBody struct {
	CoreType   *string `json:"core_type,omitempty"`
	SocketPath *string `json:"socket_path,omitempty"`
	BinPath    string  `json:"bin_path"`
	ConfigDir  string  `json:"config_dir"`
	ConfigFile string  `json:"config_file"`
	LogFile    string  `json:"log_file"`
}

// Command is the decoded tagged union. Tag is always set; Start is only
// populated when Tag == CmdStartClash.
type Command struct {
	Tag   string
	Start StartBody
}

// UnmarshalJSON accepts either a bare JSON string ("GetVersion") or a
// single-key object ({"StartClash": {...}}).
func (c *Command) UnmarshalJSON(data []byte) error {
	var bareTag string
	if err := json.Unmarshal(data, &bareTag); err == nil {
		c.Tag = bareTag
		return nil
	}

	var wrapped struct {
		StartClash *StartBody `json:"StartClash"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("unrecognized command shape: %w", err)
	}
	if wrapped.StartClash == nil {
		return fmt.Errorf("unrecognized command object: %s", string(data))
	}
	c.Tag = CmdStartClash
	c.Start = *wrapped.StartClash
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON, used by clients and tests.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Tag == CmdStartClash {
		return json.Marshal(struct {
			StartClash StartBody `json:"StartClash"`
		}{StartClash: c.Start})
	}
	return json.Marshal(c.Tag)
}

// Envelope is the uniform response shape of every command.
type Envelope struct {
	Code uint64          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const (
	CodeOK    = 0
	CodeError = 400
)

// OK wraps a successful handler result into a response envelope.
func OK(v any) Envelope {
	if v == nil {
		return Envelope{Code: CodeOK, Msg: "ok", Data: json.RawMessage("null")}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(fmt.Errorf("failed to marshal response data: %w", err))
	}
	return Envelope{Code: CodeOK, Msg: "ok", Data: data}
}

// Fail wraps a handler error into a response envelope.
func Fail(err error) Envelope {
	return Envelope{Code: CodeError, Msg: err.Error(), Data: json.RawMessage("null")}
}

// Decode unmarshals v out of the envelope's data field.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
