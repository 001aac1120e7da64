package smtp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// ErrTransportClosed indicates the SMTP session is no longer usable. The
// pipeline aborts the job; remaining recipients are counted as failed.
var ErrTransportClosed = errors.New("smtp transport closed")

// AuthError indicates the server rejected the credentials during session
// setup. Fails the whole job before any send.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("smtp authentication rejected (%d): %s", e.Code, e.Msg)
	}
	return "smtp authentication rejected: " + e.Msg
}

// ConnectError indicates the server could not be reached or the TLS
// handshake failed. Fails the whole job before any send.
type ConnectError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("smtp connect to %s:%d failed: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendRejectedError indicates the server refused one message. Scoped to that
// recipient; the session stays usable.
type SendRejectedError struct {
	Email string
	Err   error
}

func (e *SendRejectedError) Error() string {
	return fmt.Sprintf("smtp rejected send to %s: %v", e.Email, e.Err)
}

func (e *SendRejectedError) Unwrap() error { return e.Err }

// Auth failure reply codes per RFC 4954.
func isAuthReplyCode(code int) bool {
	switch code {
	case 530, 534, 535:
		return true
	}
	return false
}

// classifyDialErr maps a session-setup failure to AuthError or ConnectError.
func classifyDialErr(host string, port int, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && isAuthReplyCode(protoErr.Code) {
		return &AuthError{Code: protoErr.Code, Msg: protoErr.Msg}
	}
	// net/smtp reports missing AUTH support as a plain-text error.
	if strings.Contains(err.Error(), "server doesn't support AUTH") {
		return &AuthError{Msg: err.Error()}
	}
	return &ConnectError{Host: host, Port: port, Err: err}
}

// classifySendErr maps a per-message failure: rejections are recipient-scoped,
// a dead connection closes the transport for the rest of the job.
func classifySendErr(email string, err error) error {
	if isConnectionDead(err) {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return &SendRejectedError{Email: email, Err: err}
}

func isConnectionDead(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
