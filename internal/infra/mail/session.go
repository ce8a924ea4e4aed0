package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"
)

// stage records how far an SMTP session got before it failed.
type stage int

const (
	stageConnect  stage = iota // dial, greeting, TLS
	stageAuth                  // AUTH exchange
	stageEnvelope              // MAIL FROM, RCPT TO, DATA command
	stageData                  // message bytes and the final reply
)

func (s stage) String() string {
	switch s {
	case stageConnect:
		return "connect"
	case stageAuth:
		return "auth"
	case stageEnvelope:
		return "envelope"
	default:
		return "data"
	}
}

// sessionError is a failed SMTP session with the stage it failed in.
type sessionError struct {
	stage stage
	err   error
}

func (e *sessionError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.stage, e.err)
}

func (e *sessionError) Unwrap() error { return e.err }

// retryable reports whether another session may be opened for the same message.
// Once the message body may have reached the relay, a retry could deliver it twice.
// Permanent 5xx replies are never retried, so repeated bad credentials cannot lock the mailbox.
func (e *sessionError) retryable() bool {
	var reply *textproto.Error
	if errors.As(e.err, &reply) {
		return reply.Code < 500 && e.stage < stageData
	}
	return e.stage == stageConnect
}

// session opens one connection, authenticates and transmits m. ctx bounds the whole
// exchange through the connection deadline, so nothing is written after session returns.
func (s *SMTPSender) session(ctx context.Context, m *gomail.Message) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	tlsConfig := &tls.Config{ServerName: s.host}

	var conn net.Conn
	var err error
	if s.ssl {
		conn, err = (&tls.Dialer{Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return &sessionError{stage: stageConnect, err: fromContext(ctx, err)}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return &sessionError{stage: stageConnect, err: err}
		}
	}
	// Cancellation of the parent context cuts the connection as well.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return &sessionError{stage: stageConnect, err: fromContext(ctx, err)}
	}
	defer c.Close()

	if !s.ssl {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return &sessionError{stage: stageConnect, err: fromContext(ctx, err)}
			}
		}
	}

	if ok, mechanisms := c.Extension("AUTH"); ok && s.username != "" {
		if err := c.Auth(s.auth(mechanisms)); err != nil {
			return &sessionError{stage: stageAuth, err: fromContext(ctx, err)}
		}
	}

	// gomail.Send resolves the envelope from the message headers and flattens errors with %v,
	// so the typed failure is kept here.
	var failure *sessionError
	sendErr := gomail.Send(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		fail := func(st stage, err error) error {
			failure = &sessionError{stage: st, err: fromContext(ctx, err)}
			return err
		}
		if err := c.Mail(from); err != nil {
			return fail(stageEnvelope, err)
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return fail(stageEnvelope, err)
			}
		}
		w, err := c.Data()
		if err != nil {
			return fail(stageEnvelope, err)
		}
		if _, err := msg.WriteTo(w); err != nil {
			w.Close()
			return fail(stageData, err)
		}
		if err := w.Close(); err != nil {
			return fail(stageData, err)
		}
		return nil
	}), m)
	if failure != nil {
		return failure
	}
	if sendErr != nil {
		return &sessionError{stage: stageEnvelope, err: sendErr}
	}

	// The relay has accepted the message; a failed QUIT does not change that.
	_ = c.Quit()
	return nil
}

// auth picks a mechanism from the ones the server advertises, preferring CRAM-MD5,
// then LOGIN when PLAIN is unavailable.
func (s *SMTPSender) auth(mechanisms string) smtp.Auth {
	switch {
	case strings.Contains(mechanisms, "CRAM-MD5"):
		return smtp.CRAMMD5Auth(s.username, s.password)
	case strings.Contains(mechanisms, "LOGIN") && !strings.Contains(mechanisms, "PLAIN"):
		return &loginAuth{username: s.username, password: s.password}
	default:
		return smtp.PlainAuth("", s.username, s.password, s.host)
	}
}

// fromContext reports a session cut short by ctx as the context error.
func fromContext(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// loginAuth implements the LOGIN mechanism, which Office 365 offers without PLAIN.
type loginAuth struct {
	username string
	password string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("refusing LOGIN auth over an unencrypted connection")
	}
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch {
	case bytes.EqualFold(fromServer, []byte("Username:")):
		return []byte(a.username), nil
	case bytes.EqualFold(fromServer, []byte("Password:")):
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected LOGIN challenge %q", fromServer)
	}
}
