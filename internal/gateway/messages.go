// Package gateway binds browser sessions to cluster supervisors: JSON
// messages in from the client, status, terminal text and spots out.
package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound message types.
const (
	TypeConnect    = "connect"
	TypeCommand    = "command"
	TypeDisconnect = "disconnect"
)

// Outbound message types.
const (
	TypeStatus   = "status"
	TypeTerminal = "terminal"
	TypeSpot     = "spot"
	TypeError    = "error"
)

// Error texts sent to clients.
const (
	MsgInvalidJSON     = "Invalid JSON message"
	MsgClusterNotFound = "Cluster not found"
	MsgNotConnected    = "Not connected to cluster"
	MsgMissingLogin    = "Login callsign is required"
)

// ErrProtocol marks malformed or unsupported client messages.
var ErrProtocol = errors.New("client protocol error")

// ClusterID accepts either a JSON string or a JSON number.
type ClusterID string

func (c *ClusterID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ClusterID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("clusterId must be a string or number")
	}
	*c = ClusterID(n.String())
	return nil
}

// Inbound is a message from the client. Command text travels in Data;
// Text is accepted as an alias.
type Inbound struct {
	Type          string    `json:"type"`
	ClusterID     ClusterID `json:"clusterId,omitempty"`
	LoginCallsign string    `json:"loginCallsign,omitempty"`
	Data          string    `json:"data,omitempty"`
	Text          string    `json:"text,omitempty"`
}

// CommandText returns the command payload.
func (m Inbound) CommandText() string {
	if m.Data != "" {
		return m.Data
	}
	return m.Text
}

// Outbound is a message to the client.
type Outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// DecodeInbound parses and validates a client message. Errors wrap
// ErrProtocol and their text is safe to send back to the client.
func DecodeInbound(raw []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(raw, &m); err != nil {
		return Inbound{}, fmt.Errorf("%w: %s", ErrProtocol, MsgInvalidJSON)
	}
	m.Type = strings.ToLower(strings.TrimSpace(m.Type))
	switch m.Type {
	case TypeConnect, TypeCommand, TypeDisconnect:
		return m, nil
	case "":
		return Inbound{}, fmt.Errorf("%w: %s", ErrProtocol, MsgInvalidJSON)
	}
	return Inbound{}, fmt.Errorf("%w: Unknown message type: %s", ErrProtocol, m.Type)
}

// protocolText strips the ErrProtocol prefix for the client-facing text.
func protocolText(err error) string {
	return strings.TrimPrefix(err.Error(), ErrProtocol.Error()+": ")
}
