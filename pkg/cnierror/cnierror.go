// Package cnierror implements the CNI error JSON contract: the numeric
// codes and wire shape a CNI plugin writes to stderr on failure.
package cnierror

import (
	"encoding/json"
	"fmt"
)

// CNI error codes used by this plugin (spec §6/§7).
const (
	CodeVersion          = 1
	CodeUnsupportedField = 2
	CodeContainer        = 3
	CodeEnvVar           = 4
	CodeIO               = 5
	CodeDecode           = 6
	CodeNetwork          = 7
	CodeRetry            = 11
	CodeInternal         = 278
	CodeNotSupported     = 287
)

// Error is the CNI error object written to stderr.
type Error struct {
	CNIVersion string `json:"cniVersion"`
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
	Details    string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Msg, e.Details)
	}
	return e.Msg
}

// New builds a CNI error for the given code.
func New(cniVersion string, code int, msg string, details string) *Error {
	return &Error{CNIVersion: cniVersion, Code: code, Msg: msg, Details: details}
}

// NotSupported builds the fixed error returned for CHECK/STATUS/GC.
func NotSupported(cniVersion, command string) *Error {
	return New(cniVersion, CodeNotSupported, "command not supported", command)
}

// Coerce turns any error into a *Error, defaulting to the internal code
// when err is not already one (spec §7: only CniError-typed failures carry
// their own code, everything else is coerced).
func Coerce(cniVersion string, err error) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*Error); ok {
		return ce
	}
	return New(cniVersion, CodeInternal, "internal error", err.Error())
}

// WriteTo encodes the error object exactly as the CNI spec requires.
func (e *Error) WriteTo(w interface{ Write([]byte) (int, error) }) error {
	enc := json.NewEncoder(w)
	return enc.Encode(e)
}
