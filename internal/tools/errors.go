package tools

import (
	"errors"
	"fmt"
)

// Failure kinds for a single server. Match them with errors.Is.
var (
	ErrConnection = errors.New("connection failed")
	ErrProtocol   = errors.New("protocol error")
	ErrAuth       = errors.New("missing credentials")
)

// Stage is the step of the handshake where a server failed.
type Stage string

const (
	StageAuth       Stage = "auth"
	StageConnect    Stage = "connect"
	StageInitialize Stage = "initialize"
	StageListTools  Stage = "list_tools"
)

// ServerError records why one tool server contributed no tools.
type ServerError struct {
	Server string
	Stage  Stage
	Kind   error
	Err    error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s: %v: %v", e.Server, e.Stage, e.Kind, e.Err)
}

func (e *ServerError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func serverErr(server string, stage Stage, err error) *ServerError {
	kind := ErrProtocol
	switch stage {
	case StageAuth:
		kind = ErrAuth
	case StageConnect:
		kind = ErrConnection
	}
	return &ServerError{Server: server, Stage: stage, Kind: kind, Err: err}
}
