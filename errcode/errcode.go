package errcode

// Code is a stable error identifier shared by every component.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK              Code = "ok"
	Busy            Code = "busy"
	Full            Code = "full"
	Empty           Code = "empty"
	Timeout         Code = "timeout"
	InvalidParams   Code = "invalid_params"
	InvalidPayload  Code = "invalid_payload"
	PayloadTooLarge Code = "payload_too_large"
	NotRegistered   Code = "not_registered"
	NotFound        Code = "not_found"
	NotRunning      Code = "not_running"
	Stale           Code = "stale"
	Unsupported     Code = "unsupported"

	Error Code = "error" // generic fallback
)

// Errno maps a code to the signed integer carried in error reports.
func (c Code) Errno() int32 {
	switch c {
	case OK:
		return 0
	case Busy:
		return -7
	case Full:
		return -3
	case Empty:
		return -4
	case Timeout:
		return -2
	case InvalidParams, InvalidPayload:
		return -10
	case PayloadTooLarge:
		return -11
	case NotRegistered, NotFound:
		return -12
	case NotRunning:
		return -13
	case Stale:
		return -14
	case Unsupported:
		return -6
	}
	return -1
}

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap builds an *E for op with an optional cause.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
