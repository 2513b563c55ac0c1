package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/rs/zerolog"

	"confdesk/internal/model"
)

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends payment receipts over SMTP. It is the orchestrator's
// settlement notifier.
type Mailer struct {
	cfg  Config
	log  *zerolog.Logger
	send sendFunc
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

var subjects = map[model.PaymentCategory]string{
	model.CategoryEventRegistration: "Your registration is confirmed",
	model.CategoryAccompany:         "Accompanying person registration confirmed",
	model.CategoryWorkshop:          "Workshop seat confirmed",
	model.CategoryBanquet:           "Banquet booking confirmed",
}

func compose(from string, p model.Payment) string {
	subject, ok := subjects[p.Category]
	if !ok {
		subject = "Payment received"
	}
	body := fmt.Sprintf("Hello!\n\nWe received your payment of %s %s (payment %s).\nGateway reference: %s\n",
		p.Amount.StringFixed(2), p.Currency, p.ID, p.GatewayPaymentID)
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, p.PayerEmail, subject, body)
}

// NotifySettled mails a receipt to the payer. Payments without an address
// and a disabled mailer are skipped.
func (m *Mailer) NotifySettled(ctx context.Context, p model.Payment) error {
	if !m.cfg.Enabled || p.PayerEmail == "" {
		m.log.Debug().Str("payment_id", p.ID).Msg("receipt mail skipped")
		return nil
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := compose(m.cfg.From, p)

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.From, []string{p.PayerEmail}, []byte(msg))
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}

	m.log.Info().Str("payment_id", p.ID).Str("email", p.PayerEmail).Msg("receipt mailed")
	return nil
}
