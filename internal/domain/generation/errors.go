package generation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies why a generation cycle, or a request against one, failed.
type ErrorCode string

const (
	CodeProviderRejected ErrorCode = "provider_rejected"
	CodeTimeout          ErrorCode = "timeout"
	CodeStreamFailure    ErrorCode = "stream_failure"
	CodeNotFound         ErrorCode = "not_found"
	CodeInvalidArgument  ErrorCode = "invalid_argument"
	CodeConflict         ErrorCode = "conflict"
	CodeInternal         ErrorCode = "internal"
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap keeps an existing code when err already carries one.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return &Error{Code: ge.Code, Op: strings.TrimSpace(op), Message: ge.Message, Cause: err}
	}
	return NewError(code, op, err.Error(), err)
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func CodeOf(err error) ErrorCode {
	var ge *Error
	if !errors.As(err, &ge) {
		return ""
	}
	return ge.Code
}

// UserMessage is the text stored on a failed row. It omits the op chain.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) && strings.TrimSpace(ge.Message) != "" {
		switch ge.Code {
		case CodeTimeout:
			return "Video generation timed out: " + ge.Message
		case CodeStreamFailure:
			return "Video upload failed: " + ge.Message
		case CodeProviderRejected:
			return "Video provider rejected the request: " + ge.Message
		default:
			return ge.Message
		}
	}
	return err.Error()
}
