// Package email delivers operator alert emails over SMTP.
package email

import (
	"context"
	"fmt"
	"html"
	"net"
	"time"

	"serenata_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers operator alerts.
type Sender interface {
	SendDispatchAlert(ctx context.Context, alert DispatchAlert) error
}

// DispatchAlert describes a failed campaign dispatch.
type DispatchAlert struct {
	FunnelID    string
	OrderID     string
	MessageType string
	Reason      string
	OccurredAt  time.Time
}

// NewSender creates the configured sender, or a no-op sender when email is
// disabled.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return noopSender{}, nil
	}
	if cfg.GetSMTPHost() == "" || cfg.GetAlertRecipient() == "" {
		return nil, fmt.Errorf("email enabled but SMTP host or alert recipient missing")
	}
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromEmail: cfg.GetEmailFromAddress(),
		recipient: cfg.GetAlertRecipient(),
	}, nil
}

type noopSender struct{}

func (noopSender) SendDispatchAlert(context.Context, DispatchAlert) error { return nil }

// SMTPSender delivers alerts via a direct SMTP connection using go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	recipient string
}

// SendDispatchAlert emails the operator about a failed dispatch.
func (s *SMTPSender) SendDispatchAlert(ctx context.Context, alert DispatchAlert) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat("Serenata Funnel", s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(s.recipient); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(fmt.Sprintf("Falha no disparo do funil (%s)", alert.MessageType))
	msg.SetBodyString(gomail.TypeTextHTML, renderDispatchAlert(alert))

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func renderDispatchAlert(alert DispatchAlert) string {
	return fmt.Sprintf(
		`<h2>Falha no disparo</h2>
<p>Uma mensagem do funil não pôde ser enviada.</p>
<table>
<tr><td>Funil</td><td>%s</td></tr>
<tr><td>Pedido</td><td>%s</td></tr>
<tr><td>Mensagem</td><td>%s</td></tr>
<tr><td>Motivo</td><td>%s</td></tr>
<tr><td>Horário</td><td>%s</td></tr>
</table>`,
		html.EscapeString(alert.FunnelID),
		html.EscapeString(alert.OrderID),
		html.EscapeString(alert.MessageType),
		html.EscapeString(alert.Reason),
		alert.OccurredAt.Format(time.RFC3339),
	)
}
