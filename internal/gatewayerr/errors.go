// Package gatewayerr implements the §7 error taxonomy: a small set of
// typed "ws.<code>" errors and the close-frame encoding rule that turns
// one into a WebSocket close code + reason.
package gatewayerr

import (
	"fmt"
	"unicode/utf8"
)

// Code is one of the gateway's well-known error codes, always reported
// under the "ws" group.
type Code string

const (
	CodeNewRunnerConnected      Code = "new_runner_connected"
	CodeConnectionClosed        Code = "connection_closed"
	CodeEviction                Code = "eviction"
	CodeTimedOutWaitingForInit  Code = "timed_out_waiting_for_init"
	CodeInvalidInitialPacket    Code = "invalid_initial_packet"
	CodeInvalidPacket           Code = "invalid_packet"
	CodeInvalidUrl              Code = "invalid_url"
	CodeInternal                Code = "internal"
)

// Error is a structured "ws.<code>" protocol error. It carries enough
// information to both log (Error()) and encode as a WebSocket close frame
// (CloseFrame()).
type Error struct {
	Group  string
	Code   Code
	Detail string
}

// New builds a ws.<code> error with an optional human-readable detail.
func New(code Code, detail string) *Error {
	return &Error{Group: "ws", Code: code, Detail: detail}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s.%s", e.Group, e.Code)
	}
	return fmt.Sprintf("%s.%s: %s", e.Group, e.Code, e.Detail)
}

// Is lets errors.Is match two *Error values by (group, code), ignoring
// Detail — so callers can write errors.Is(err, gatewayerr.New(CodeEviction, "")).
func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Group == o.Group && e.Code == o.Code
}

// maxReasonBytes is the WebSocket close-frame reason size limit (125 bytes
// total, minus the 2-byte status code).
const maxReasonBytes = 123

// CloseFrame implements the §6 close-frame encoding rule: Normal (1000)
// only for ws.connection_closed, Error (1011) otherwise; the reason is
// "<group>.<code>" only — never Detail, which is for logs, not the wire —
// truncated to ≤123 bytes on a UTF-8-safe boundary.
func (e *Error) CloseFrame() (code int, reason string) {
	const (
		closeNormal = 1000
		closeError  = 1011
	)
	if e.Group == "ws" && e.Code == CodeConnectionClosed {
		code = closeNormal
	} else {
		code = closeError
	}
	return code, truncateUTF8(fmt.Sprintf("%s.%s", e.Group, e.Code), maxReasonBytes)
}

// truncateUTF8 truncates s to at most n bytes without splitting a
// multi-byte rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := s[:n]
	for len(b) > 0 && !utf8.RuneStart(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	// RuneStart found the start byte of a possibly-incomplete rune; verify
	// it actually decodes, and drop it if the rune was cut off.
	if len(b) > 0 {
		if r, size := utf8.DecodeLastRuneInString(b); r == utf8.RuneError && size <= 1 {
			b = b[:len(b)-1]
		}
	}
	return b
}

// CloseFrameFor is a convenience for errors that are not *Error — any
// unexpected error maps to the generic internal-error close code.
func CloseFrameFor(err error) (code int, reason string) {
	if err == nil {
		return New(CodeConnectionClosed, "").CloseFrame()
	}
	if e, ok := err.(*Error); ok {
		return e.CloseFrame()
	}
	return New(CodeInternal, err.Error()).CloseFrame()
}
