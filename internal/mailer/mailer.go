// Package mailer is the sink for transactional email. A send returns the
// status code of the sink so callers can record the outcome verbatim.
package mailer

import (
	"context"
	"net/http"

	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"
)

// Message is one transactional send. TemplateID selects the template on the
// sink; ContactProperties and CustomProperties fill its variables.
type Message struct {
	TemplateID        string
	To                string
	Cc                []string
	Bcc               []string
	From              string
	ReplyTo           []string
	ContactProperties map[string]string
	CustomProperties  map[string]any
}

// Sink delivers messages. Status is the HTTP-equivalent outcome of the sink;
// err is set for transport failures and non-2xx responses.
type Sink interface {
	Send(ctx context.Context, msg Message) (status int, err error)
}

// NoopSink accepts everything. Used when no sink is configured.
type NoopSink struct {
	log *logger.Logger
}

func NewNoopSink(log *logger.Logger) NoopSink {
	return NoopSink{log: log}
}

func (n NoopSink) Send(_ context.Context, msg Message) (int, error) {
	if n.log != nil {
		n.log.Debug("mailer disabled, message dropped", "template_id", msg.TemplateID, "to", msg.To)
	}
	return http.StatusOK, nil
}

// NewSink picks Hubspot when a token is configured, SMTP when a host is
// configured and the noop sink otherwise. Real sinks retry 5xx responses.
func NewSink(cfg config.MailerConfig, log *logger.Logger) Sink {
	switch {
	case cfg.GetHubspotToken() != "":
		return NewRetrying(NewHubspotSender(cfg), DefaultAttempts, log)
	case cfg.GetSMTPHost() != "":
		return NewRetrying(NewSMTPSender(cfg), DefaultAttempts, log)
	default:
		log.Warn("no mailer configured, using noop sink")
		return NewNoopSink(log)
	}
}
