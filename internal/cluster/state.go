package cluster

import "errors"

// State is the lifecycle position of a session's upstream connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingLogin
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingLogin:
		return "AwaitingLogin"
	case StateStreaming:
		return "Streaming"
	case StateClosed:
		return "Closed"
	}
	return "Unknown"
}

// CloseReason qualifies StateClosed.
type CloseReason int

const (
	CloseNone CloseReason = iota
	CloseNormal
	CloseError
)

func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "Normal"
	case CloseError:
		return "Error"
	}
	return ""
}

var (
	ErrConnectTimeout = errors.New("connect timeout")
	ErrConnectRefused = errors.New("connection refused")
	ErrNetwork        = errors.New("network error")
	ErrUpstreamClosed = errors.New("upstream closed connection")
	ErrNotConnected   = errors.New("not connected to cluster")
	ErrAlreadyActive  = errors.New("session already has an active cluster connection")
	ErrLoginFailed    = errors.New("failed to send login")
	ErrNoLogin        = errors.New("login callsign must be specified")
	ErrSocketOpen     = errors.New("session already has an open socket")
)
