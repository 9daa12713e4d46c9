package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"time"

	"bbys_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var notificationTemplate = template.Must(template.ParseFS(templateFS, "templates/notification.html"))

type property struct {
	Name  string
	Value any
}

// SMTPSender delivers through a plain SMTP relay. The relay has no template
// store, so the body lists the template variables under the template id.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPSender(cfg config.MailerConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetMailFromName(),
		fromEmail: cfg.GetMailFromAddress(),
	}
}

func renderBody(msg Message) (string, error) {
	props := make([]property, 0, len(msg.CustomProperties)+len(msg.ContactProperties))
	for k, v := range msg.ContactProperties {
		props = append(props, property{Name: k, Value: v})
	}
	for k, v := range msg.CustomProperties {
		props = append(props, property{Name: k, Value: v})
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })

	var buf bytes.Buffer
	err := notificationTemplate.Execute(&buf, struct {
		TemplateID string
		Properties []property
	}{msg.TemplateID, props})
	if err != nil {
		return "", fmt.Errorf("render notification: %w", err)
	}
	return buf.String(), nil
}

func (s *SMTPSender) buildMsg(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	from := s.fromEmail
	if msg.From != "" {
		from = msg.From
	}
	if err := m.FromFormat(s.fromName, from); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("smtp cc: %w", err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("smtp bcc: %w", err)
		}
	}
	if len(msg.ReplyTo) > 0 {
		if err := m.ReplyTo(msg.ReplyTo[0]); err != nil {
			return nil, fmt.Errorf("smtp reply-to: %w", err)
		}
	}
	body, err := renderBody(msg)
	if err != nil {
		return nil, err
	}
	m.Subject("Notification " + msg.TemplateID)
	m.SetBodyString(gomail.TypeTextHTML, body)
	return m, nil
}

// Send maps a rejected message to 400 and a relay failure to 502 so the
// retry policy treats only the latter as transient.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (int, error) {
	m, err := s.buildMsg(msg)
	if err != nil {
		return http.StatusBadRequest, err
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(10*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return http.StatusBadGateway, fmt.Errorf("smtp send: %w", err)
	}
	return http.StatusOK, nil
}
