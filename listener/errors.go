package listener

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Kind classifies why a listener failed.
type Kind int

const (
	KindUnknown                  Kind = iota // uncategorized I/O failure
	KindConnection                           // dial failed
	KindConnectionTimeout                    // dial exceeded its deadline
	KindConnectionLost                       // peer closed the socket mid-session
	KindAuthentication                       // prompt never seen within the retry budget
	KindReceiverLost                         // sink rejected a delivery
	KindInternal                             // invariant violated or worker could not be set up
	KindAlreadyJoined                        // Join called more than once
	KindShutdownAlreadyRequested             // RequestStop called more than once
)

// Sentinels for errors.Is; every *Error matches the sentinel of its Kind.
var (
	ErrUnknown                  = errors.New("unknown error")
	ErrConnection               = errors.New("connection failed")
	ErrConnectionTimeout        = errors.New("connection timed out")
	ErrConnectionLost           = errors.New("connection lost")
	ErrAuthentication           = errors.New("authentication failed")
	ErrReceiverLost             = errors.New("receiver lost")
	ErrInternal                 = errors.New("internal error")
	ErrAlreadyJoined            = errors.New("already joined")
	ErrShutdownAlreadyRequested = errors.New("shutdown already requested")
)

var kindSentinels = map[Kind]error{
	KindUnknown:                  ErrUnknown,
	KindConnection:               ErrConnection,
	KindConnectionTimeout:        ErrConnectionTimeout,
	KindConnectionLost:           ErrConnectionLost,
	KindAuthentication:           ErrAuthentication,
	KindReceiverLost:             ErrReceiverLost,
	KindInternal:                 ErrInternal,
	KindAlreadyJoined:            ErrAlreadyJoined,
	KindShutdownAlreadyRequested: ErrShutdownAlreadyRequested,
}

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindConnectionTimeout:
		return "ConnectionTimeout"
	case KindConnectionLost:
		return "ConnectionLost"
	case KindAuthentication:
		return "AuthenticationError"
	case KindReceiverLost:
		return "ReceiverLost"
	case KindInternal:
		return "InternalError"
	case KindAlreadyJoined:
		return "AlreadyJoined"
	case KindShutdownAlreadyRequested:
		return "ShutdownAlreadyRequested"
	default:
		return "UnknownError"
	}
}

// Error carries the failure kind plus the operation and address involved.
type Error struct {
	Kind Kind
	Op   string // "dial", "auth", "read", "write", "deliver", "join", "stop", "start"
	Addr string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Addr != "" {
		msg += " (" + e.Addr + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind Kind, op, addr string, err error) *Error {
	return &Error{Kind: kind, Op: op, Addr: addr, Err: err}
}

// KindOf extracts the Kind from err. ok is false when err is nil or did not
// originate from this package.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind, true
		}
	}
	return KindUnknown, false
}

// classifyDial maps a dial failure onto the connection kinds.
func classifyDial(addr string, err error) *Error {
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return newError(KindConnectionTimeout, "dial", addr, err)
	}
	return newError(KindConnection, "dial", addr, err)
}

// classifyRead maps a non-timeout read failure onto ConnectionLost or Unknown.
func classifyRead(addr string, err error) *Error {
	if isPeerGone(err) {
		return newError(KindConnectionLost, "read", addr, err)
	}
	return newError(KindUnknown, "read", addr, err)
}

func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
