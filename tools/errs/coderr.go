package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error codes reported back to clients. The split between permission and
// throttling matters: clients back off on throttling and give up on
// permission failures.
const (
	CodeBadPayload  = 1001
	CodePermission  = 1003
	CodeNotFound    = 1004
	CodeThrottled   = 1005
	CodeStoreFailed = 1500
)

var (
	ErrBadPayload  = NewCodeError(CodeBadPayload, "invalid payload")
	ErrPermission  = NewCodeError(CodePermission, "not a participant of this chat")
	ErrNotFound    = NewCodeError(CodeNotFound, "not found")
	ErrThrottled   = NewCodeError(CodeThrottled, "rate limit exceeded")
	ErrStoreFailed = NewCodeError(CodeStoreFailed, "backing store unavailable")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// WithDetail returns a copy carrying extra context for the client.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// New builds an ad hoc error with fmt-style detail.
func New(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// AsCode extracts a CodeError, falling back to CodeStoreFailed so transport
// handlers always have something well-formed to send.
func AsCode(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrStoreFailed.WithDetail(err.Error())
}
