// internal/infra/mail/smtp_sender.go
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	netmail "net/mail"
	"time"

	domainMail "renewal_notifier/internal/domain/mail"
	"renewal_notifier/internal/infra/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

const maxRetryBackoff = 30 * time.Second

// SMTPSender implements domainMail.Sender. gomail composes the MIME message; each Send
// opens its own session, authenticates and transmits one message.
type SMTPSender struct {
	host         string
	port         int
	ssl          bool
	username     string
	password     string
	fromAddress  string
	fromName     string
	timeout      time.Duration
	retryCount   int
	retryBackoff time.Duration
	limiter      *rate.Limiter // nil when unthrottled
	logger       logrus.FieldLogger
}

// NewSMTPSender builds a sender that logs through logger, normally the run-scoped entry.
func NewSMTPSender(cfg *config.AppConfig, logger logrus.FieldLogger) *SMTPSender {
	logger.WithFields(logrus.Fields{
		"host": cfg.MailServer,
		"port": cfg.MailPort,
		"user": cfg.MailUsername,
	}).Debug("Initializing SMTP sender")

	var limiter *rate.Limiter
	if cfg.MailRatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MailRatePerMinute)), 1)
	}

	return &SMTPSender{
		host: cfg.MailServer,
		port: cfg.MailPort,
		// Port 465 is implicit TLS, anything else upgrades with STARTTLS when offered.
		ssl:          cfg.MailPort == 465,
		username:     cfg.MailUsername,
		password:     cfg.MailPassword,
		fromAddress:  cfg.MailDefaultSender,
		fromName:     cfg.MailSenderName,
		timeout:      cfg.MailSendTimeout,
		retryCount:   cfg.MailRetryCount,
		retryBackoff: cfg.MailRetryBackoff,
		limiter:      limiter,
		logger:       logger,
	}
}

// Send delivers msg. Every failure is returned as *domainMail.DeliveryError.
// A session is retried only when it failed before the message could reach the relay.
func (s *SMTPSender) Send(ctx context.Context, msg domainMail.Message) error {
	if _, err := netmail.ParseAddress(msg.To); err != nil {
		return &domainMail.DeliveryError{To: msg.To, Cause: fmt.Errorf("malformed address: %w", err)}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return &domainMail.DeliveryError{To: msg.To, Cause: err}
		}
	}

	m := s.compose(msg)
	log := s.logger.WithField("to", msg.To)

	backoff := s.retryBackoff
	for attempt := 0; ; attempt++ {
		err := s.attempt(ctx, m)
		if err == nil {
			log.Debugf("Mail sent on attempt %d", attempt+1)
			return nil
		}

		var se *sessionError
		if attempt == s.retryCount || !errors.As(err, &se) || !se.retryable() {
			return &domainMail.DeliveryError{To: msg.To, Cause: err}
		}

		log.Warnf("Send attempt %d failed: %v. Retrying in %s", attempt+1, err, backoff)
		select {
		case <-ctx.Done():
			return &domainMail.DeliveryError{To: msg.To, Cause: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// attempt bounds one session by the configured timeout so a hung server cannot stall the run.
func (s *SMTPSender) attempt(ctx context.Context, m *gomail.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.session(ctx, m)
}

func (s *SMTPSender) compose(msg domainMail.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromAddress, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}
	if a := msg.Inline; a != nil {
		data := a.Data
		m.Embed(a.Name,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}
	return m
}

// LogSender is used for dry runs: it logs what would be sent and never fails.
type LogSender struct {
	logger logrus.FieldLogger
}

func NewLogSender(logger logrus.FieldLogger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg domainMail.Message) error {
	s.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
		"inline":  msg.Inline != nil,
	}).Infof("Dry run, not sending:\n%s", msg.TextBody)
	return nil
}
