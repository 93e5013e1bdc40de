// Package mailer отправляет письма с квитанциями по SMTP.
package mailer

import (
	"context"
	"fmt"
	"html"
	"io"

	"gopkg.in/gomail.v2"
)

// Sender - то, что умеет доставить собранное письмо. *gomail.Dialer подходит.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer отправляет квитанции клиентам.
type Mailer struct {
	sender Sender
	from   string
}

// New создаёт почтовый сервис с SMTP-диалером.
func New(host string, port int, user, password, from string) *Mailer {
	return NewWithSender(gomail.NewDialer(host, port, user, password), from)
}

// NewWithSender создаёт почтовый сервис с произвольным транспортом.
func NewWithSender(sender Sender, from string) *Mailer {
	return &Mailer{sender: sender, from: from}
}

// SendReceipt отправляет письмо с PDF-квитанцией во вложении.
func (m *Mailer) SendReceipt(ctx context.Context, to, driverName, chargeID string, pdf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Seu comprovante de pagamento Pixter")

	body := fmt.Sprintf(`
		<h2>Pagamento confirmado</h2>
		<p>Seu pagamento para <strong>%s</strong> foi aprovado.</p>
		<p>O comprovante está anexado a este email.</p>
		<p>Obrigado por usar a Pixter!</p>
	`, html.EscapeString(driverName))
	msg.SetBody("text/html", body)

	msg.Attach(fmt.Sprintf("recibo_%s.pdf", chargeID), gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(pdf)
		return err
	}), gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}))

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send receipt email: %w", err)
	}
	return nil
}
