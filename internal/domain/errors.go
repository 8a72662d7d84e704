package domain

import (
	"context"
	"errors"
	"net"
)

// ─── Error Codes ────────────────────────────────────────────────────────────
// Closed enumeration of failure codes crossing module boundaries.
// Background failures are recovered into DailyState.LastAPIError; only
// direct user actions surface these as live errors.

// Code identifies a classified failure.
type Code string

const (
	CodeNone          Code = ""
	CodeMissingHandle Code = "missing_handle"
	CodeNoCandidates  Code = "no_candidates"
	CodeRerollLimit   Code = "reroll_limit"
	CodeEmergencyUsed Code = "emergency_used_today"
	CodeInFlight      Code = "in_flight"
	CodeNotReady      Code = "not_ready"
	CodeNotFound      Code = "not_found"
	CodeRateLimited   Code = "rate_limited"
	CodeServerError   Code = "server_error"
	CodeHTTPError     Code = "http_error"
	CodeTimeout       Code = "timeout"
	CodeOffline       Code = "offline_or_cors"
	CodeUnknown       Code = "unknown"
)

// Error is a classified domain error. The Code is stable API surface;
// the message is for logs only.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return e.Msg
}

// NewError builds a classified error.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	ErrMissingHandle   = &Error{Code: CodeMissingHandle, Msg: "no judge handle configured"}
	ErrNoCandidates    = &Error{Code: CodeNoCandidates, Msg: "no candidate problems match the current filters"}
	ErrEmptyCandidates = &Error{Code: CodeNoCandidates, Msg: "candidate set is empty"}
	ErrRerollLimit     = &Error{Code: CodeRerollLimit, Msg: "daily reroll limit exceeded"}
	ErrEmergencyUsed   = &Error{Code: CodeEmergencyUsed, Msg: "emergency override already used today"}
	ErrInFlight        = &Error{Code: CodeInFlight, Msg: "a solved check is already in flight"}
	ErrNotReady        = &Error{Code: CodeNotReady, Msg: "no handle or problem assigned"}
)

// CodeOf classifies an arbitrary error into a Code. Classified errors keep
// their code; transport-level failures map to timeout/offline; everything
// else is unknown. A nil error maps to CodeNone.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return CodeTimeout
		}
		return CodeOffline
	}
	return CodeUnknown
}
