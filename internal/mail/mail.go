// Package mail renders and sends the connection request notifications.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const smtpTimeout = 30 * time.Second

// Message is one outbound HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig is the outbound relay. Auth is skipped when User is empty.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, msgs ...*gomail.Msg) error
}

// NewSMTPMailer builds the relay client. Nothing is dialed until Send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(smtpTimeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.User),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{cfg: cfg, dial: client.DialAndSendWithContext}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mail %q: no recipient", msg.Subject)
	}
	out, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.dial(ctx, out); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) build(msg Message) (*gomail.Msg, error) {
	out := gomail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("mail sender %q: %w", m.cfg.From, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail recipient %q: %w", msg.To, err)
	}
	out.Subject(sanitizeHeader(msg.Subject))
	out.SetDate()
	out.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return out, nil
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// LogMailer logs messages instead of sending them. Used when SMTP is not configured.
type LogMailer struct {
	log *zap.SugaredLogger
}

func NewLogMailer(log *zap.SugaredLogger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Infow("mail not sent, SMTP disabled", "to", msg.To, "subject", msg.Subject)
	return nil
}

const (
	SubjectConnectionRequest  = "New Connection Request"
	SubjectConnectionReminder = "Reminder: New Connection Request"
)

var connectionTemplate = template.Must(template.New("connection").Parse(`
<div style="font-family: Arial, sans-serif; padding: 20px;">
    <h2>Hi {{.ToName}},</h2>
    <p>{{if .Reminder}}This is a reminder that you have a pending connection request{{else}}You have a new connection request{{end}} from {{.FromName}} @{{.FromUsername}}</p>
    <p>Click <a href="{{.Link}}" style="color: #10b981;">here</a> to accept or reject the request</p>
    <br/>
    <p>Thanks, <br/>SparkLink - Stay Connected</p>
</div>`))

// ConnectionRequest is the data for the request and reminder emails.
type ConnectionRequest struct {
	To           string
	ToName       string
	FromName     string
	FromUsername string
	FrontendURL  string
	Reminder     bool
}

// Render builds the email for r.
func (r ConnectionRequest) Render() (Message, error) {
	data := struct {
		ConnectionRequest
		Link string
	}{r, strings.TrimRight(r.FrontendURL, "/") + "/connections"}

	var body bytes.Buffer
	if err := connectionTemplate.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render connection email: %w", err)
	}

	subject := SubjectConnectionRequest
	if r.Reminder {
		subject = SubjectConnectionReminder
	}
	return Message{To: r.To, Subject: subject, HTML: body.String()}, nil
}
