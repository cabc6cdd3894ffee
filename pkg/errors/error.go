package errors

import (
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Error codes. Registration failures are recoverable, everything tied to
// discriminators on the wire is a protocol violation.
const (
	CodeDuplicateType        = 409
	CodeCapacityExceeded     = 507
	CodeAlreadyFrozen        = 423
	CodeNotFrozen            = 425
	CodeUnregisteredType     = 404
	CodeUnknownDiscriminator = 400
	CodeBodyDecodeFailed     = 422
	CodeBodyEncodeFailed     = 500
	CodeEmptyFrame           = 411
	CodeFrameTooLarge        = 413
	CodeUnknownConnection    = 410
	CodeInvalidTarget        = 416
	CodeNoRoute              = 502
	CodeUnsupportedTarget    = 501
	CodeHandshakeFailed      = 403
)

const sentinelCaller = "packetmux"

var (
	ErrDuplicateType        = NonFatalError(CodeDuplicateType, "message type already registered", sentinelCaller)
	ErrCapacityExceeded     = NonFatalError(CodeCapacityExceeded, "message type capacity exceeded", sentinelCaller)
	ErrAlreadyFrozen        = NonFatalError(CodeAlreadyFrozen, "registry already frozen", sentinelCaller)
	ErrNotFrozen            = FatalError(CodeNotFrozen, "registry not frozen", sentinelCaller)
	ErrUnregisteredType     = FatalError(CodeUnregisteredType, "message type not registered", sentinelCaller)
	ErrUnknownDiscriminator = FatalError(CodeUnknownDiscriminator, "unknown discriminator", sentinelCaller)
	ErrBodyDecodeFailed     = FatalError(CodeBodyDecodeFailed, "body decode failed", sentinelCaller)
	ErrBodyEncodeFailed     = FatalError(CodeBodyEncodeFailed, "body encode failed", sentinelCaller)
	ErrEmptyFrame           = FatalError(CodeEmptyFrame, "empty frame", sentinelCaller)
	ErrFrameTooLarge        = FatalError(CodeFrameTooLarge, "frame too large", sentinelCaller)
	ErrUnknownConnection    = FatalError(CodeUnknownConnection, "unknown connection", sentinelCaller)
	ErrInvalidTarget        = NonFatalError(CodeInvalidTarget, "invalid outbound target", sentinelCaller)
	ErrNoRoute              = NonFatalError(CodeNoRoute, "no route to destination", sentinelCaller)
	ErrUnsupportedTarget    = NonFatalError(CodeUnsupportedTarget, "outbound target not supported on this side", sentinelCaller)
	ErrHandshakeFailed      = FatalError(CodeHandshakeFailed, "handshake failed", sentinelCaller)
)

type Error interface {
	error
	Fatal() bool
	Code() int
	Reason() string
	Caller() string
	Log(logger *log.Logger)
}

func NonFatalError(code int, reason string, caller string) Error {
	return &genericErr{
		fatal:  false,
		code:   code,
		reason: reason,
		caller: caller,
	}
}

func FatalError(code int, reason string, caller string) Error {
	return &genericErr{
		fatal:  true,
		code:   code,
		reason: reason,
		caller: caller,
	}
}

// Wrap returns an error with the kind of sentinel, reported by caller, with
// reason appended to the sentinel reason. cause may be nil.
func Wrap(sentinel Error, caller string, cause error, format string, args ...interface{}) Error {
	reason := sentinel.Reason()
	if format != "" {
		reason = fmt.Sprintf("%s: %s", reason, fmt.Sprintf(format, args...))
	}
	return &genericErr{
		fatal:  sentinel.Fatal(),
		code:   sentinel.Code(),
		reason: reason,
		caller: caller,
		cause:  cause,
	}
}

type genericErr struct {
	fatal  bool
	code   int
	reason string
	caller string
	cause  error
}

func (err *genericErr) Error() string {
	if err.cause != nil {
		return fmt.Sprintf("[%s] %s: %s", err.caller, err.reason, err.cause.Error())
	}
	return fmt.Sprintf("[%s] %s", err.caller, err.reason)
}

func (err *genericErr) Log(logger *log.Logger) {
	logger.Errorf("[%s]: Error type: %d, Reason: %s", err.Caller(), err.Code(), err.Reason())
}

// Is matches any Error carrying the same code, so wrapped errors compare equal
// to their sentinel.
func (err *genericErr) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	return t.Code() == err.code
}

func (err *genericErr) Unwrap() error {
	return err.cause
}

func (err *genericErr) Fatal() bool {
	return err.fatal
}

func (err *genericErr) Code() int {
	return err.code
}

func (err *genericErr) Caller() string {
	return err.caller
}

func (err *genericErr) Reason() string {
	return err.reason
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
