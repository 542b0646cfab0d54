// Package rvt holds the core data model shared by the encoder, decoder and
// serializer: the flat error taxonomy, runtime configuration, instruction
// records, packets and statistics counters.
package rvt

import (
	"fmt"
)

// Err is the library's flat error code, returned wrapped in an *Error.
type Err uint32

const (
	OK Err = iota
	ErrInvalid
	ErrNoMem
	ErrBadPacket
	ErrBadInstr
	ErrBadConfig
	ErrBadRAS
	ErrBadVMA
	ErrSectionEmpty
	ErrFileOpen
	ErrFileRead
	ErrFileWrite
	ErrFileScan
	ErrUnimplemented
	errLast
)

type errDesc struct {
	name string
	msg  string
}

var errorCodeDesc = map[Err]errDesc{
	OK:                {"OK", "No error."},
	ErrInvalid:        {"ERR_INVALID", "Null or out-of-range argument."},
	ErrNoMem:          {"ERR_NOMEM", "Allocation failed."},
	ErrBadPacket:      {"ERR_BAD_PACKET", "Unknown format, truncated, or impossible field combination."},
	ErrBadInstr:       {"ERR_BAD_INSTR", "Disassembler refused or classified as noninsn."},
	ErrBadConfig:      {"ERR_BAD_CONFIG", "Protocol/configuration incompatibility."},
	ErrBadRAS:         {"ERR_BAD_RAS", "Pop from empty return-address stack."},
	ErrBadVMA:         {"ERR_BAD_VMA", "PC outside any loadable section."},
	ErrSectionEmpty:   {"ERR_SECTION_EMPTY", "Section load returned no bytes."},
	ErrFileOpen:       {"ERR_FILE_OPEN", "File open failure."},
	ErrFileRead:       {"ERR_FILE_READ", "File read failure."},
	ErrFileWrite:      {"ERR_FILE_WRITE", "File write failure."},
	ErrFileScan:       {"ERR_FILE_SCAN", "Stimulus/CSV scan failure."},
	ErrUnimplemented:  {"ERR_UNIMPLEMENTED", "CONTEXT subformat or context_change trigger."},
}

// Error is the library error object returned by fallible operations.
type Error struct {
	Code    Err
	Idx     int64 // trace/instruction index, -1 if not applicable
	Message string
}

// NewError builds an Error with no index and no extra message.
func NewError(code Err) *Error {
	return &Error{Code: code, Idx: -1}
}

// NewErrorIdx builds an Error tagged with a trace index.
func NewErrorIdx(code Err, idx int64) *Error {
	return &Error{Code: code, Idx: idx}
}

// NewErrorMsg builds an Error with a descriptive message.
func NewErrorMsg(code Err, msg string) *Error {
	return &Error{Code: code, Idx: -1, Message: msg}
}

func (e *Error) Error() string {
	desc, ok := errorCodeDesc[e.Code]
	name, msg := "ERR_UNKNOWN", "unknown error"
	if ok {
		name, msg = desc.name, desc.msg
	}
	s := fmt.Sprintf("%s (%s)", name, msg)
	if e.Idx >= 0 {
		s = fmt.Sprintf("%s; idx=%d", s, e.Idx)
	}
	if e.Message != "" {
		s = fmt.Sprintf("%s; %s", s, e.Message)
	}
	return s
}

// Code returns the Err code of any error produced by this package, or OK
// (plus false) if err is nil or not one of ours.
func Code(err error) (Err, bool) {
	if err == nil {
		return OK, false
	}
	if e, ok := err.(*Error); ok {
		return e.Code, true
	}
	return OK, false
}
