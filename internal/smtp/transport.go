// Package smtp wraps the SMTP session lifecycle used by the send pipeline:
// one dial-and-auth per job, many sends, one close.
package smtp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"
)

// DefaultConnectTimeout bounds dial plus TLS handshake plus AUTH.
const DefaultConnectTimeout = 30 * time.Second

// Config describes one job's SMTP endpoint and credentials. The password
// lives only in memory for the duration of the run.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// UseSSL selects implicit TLS from the first byte. Takes precedence
	// over UseTLS when both are set.
	UseSSL bool
	// UseTLS upgrades the session with STARTTLS after connecting.
	UseTLS         bool
	ConnectTimeout time.Duration
}

// Transport is an authenticated SMTP session. Not safe for concurrent use;
// each job owns exactly one.
type Transport interface {
	// Send delivers one HTML message. Returns SendRejectedError for a
	// refusal scoped to this message, or an error wrapping
	// ErrTransportClosed when the session has died.
	Send(from, to, subject, htmlBody string) error
	Close() error
}

// Dialer opens authenticated sessions. Safe for concurrent use.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Transport, error)
}

// GomailDialer is the production Dialer.
type GomailDialer struct {
	logger *slog.Logger
}

// NewDialer creates the production SMTP dialer. Logger may be nil.
func NewDialer(logger *slog.Logger) *GomailDialer {
	return &GomailDialer{logger: logger}
}

// Dial connects, negotiates TLS per cfg, and authenticates. Failures are
// classified as AuthError or ConnectError.
func (d *GomailDialer) Dial(ctx context.Context, cfg Config) (Transport, error) {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.UseSSL
	if cfg.UseSSL || cfg.UseTLS {
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	// gomail has no dial deadline of its own, so the dial runs in a
	// goroutine bounded by the timeout. An abandoned late success is
	// closed to avoid leaking the connection.
	results := make(chan dialResult, 1)
	go func() {
		closer, err := dialer.Dial()
		results <- dialResult{closer: closer, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			return nil, classifyDialErr(cfg.Host, cfg.Port, res.err)
		}
		if d.logger != nil {
			d.logger.DebugContext(ctx, "smtp session established",
				"host", cfg.Host, "port", cfg.Port, "ssl", cfg.UseSSL, "tls", cfg.UseTLS)
		}
		return &gomailTransport{closer: res.closer, logger: d.logger}, nil
	case <-timer.C:
		go drainLateDial(results)
		return nil, &ConnectError{Host: cfg.Host, Port: cfg.Port, Err: context.DeadlineExceeded}
	case <-ctx.Done():
		go drainLateDial(results)
		return nil, &ConnectError{Host: cfg.Host, Port: cfg.Port, Err: ctx.Err()}
	}
}

type dialResult struct {
	closer gomail.SendCloser
	err    error
}

// drainLateDial closes a session that completed after the caller gave up.
func drainLateDial(results <-chan dialResult) {
	if res := <-results; res.err == nil && res.closer != nil {
		_ = res.closer.Close()
	}
}

type gomailTransport struct {
	closer gomail.SendCloser
	logger *slog.Logger
	closed bool
}

func (t *gomailTransport) Send(from, to, subject, htmlBody string) error {
	if t.closed {
		return ErrTransportClosed
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := gomail.Send(t.closer, msg); err != nil {
		classified := classifySendErr(to, err)
		if t.logger != nil {
			t.logger.Debug("smtp send failed", "to", to, "error", classified)
		}
		return classified
	}
	return nil
}

// Close shuts the session down. Idempotent and best-effort; a server that
// already dropped the connection is not an error worth surfacing.
func (t *gomailTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.closer.Close(); err != nil {
		if t.logger != nil {
			t.logger.Debug("smtp close failed", "error", err)
		}
	}
	return nil
}
