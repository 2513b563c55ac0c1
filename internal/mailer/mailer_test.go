package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"confdesk/internal/model"
)

func testPayment() model.Payment {
	return model.Payment{
		ID: "pay-1", PayerEmail: "alice@example.org", Category: model.CategoryWorkshop,
		Amount: decimal.NewFromInt(300), Currency: "INR", GatewayPaymentID: "gw-1",
	}
}

func TestNotifySettledSends(t *testing.T) {
	m := New(Config{Enabled: true, Host: "smtp.example.org", Port: 587, Username: "u", Password: "p", From: "desk@example.org"}, nil)
	var gotAddr, gotMsg string
	var gotTo []string
	m.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := m.NotifySettled(context.Background(), testPayment()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotAddr != "smtp.example.org:587" || len(gotTo) != 1 || gotTo[0] != "alice@example.org" {
		t.Fatalf("unexpected envelope %s %v", gotAddr, gotTo)
	}
	if !strings.Contains(gotMsg, "Workshop seat confirmed") || !strings.Contains(gotMsg, "300.00 INR") {
		t.Fatalf("unexpected message %q", gotMsg)
	}
}

func TestNotifySettledSkips(t *testing.T) {
	called := false
	send := func(string, smtp.Auth, string, []string, []byte) error { called = true; return nil }

	disabled := New(Config{}, nil)
	disabled.send = send
	if err := disabled.NotifySettled(context.Background(), testPayment()); err != nil {
		t.Fatal(err)
	}

	noAddr := New(Config{Enabled: true}, nil)
	noAddr.send = send
	p := testPayment()
	p.PayerEmail = ""
	if err := noAddr.NotifySettled(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatalf("send must not be called")
	}
}

func TestNotifySettledErrors(t *testing.T) {
	m := New(Config{Enabled: true, Host: "h", Port: 25}, nil)
	boom := errors.New("relay denied")
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	if err := m.NotifySettled(context.Background(), testPayment()); !errors.Is(err, boom) {
		t.Fatalf("expected relay error, got %v", err)
	}

	m.send = func(string, smtp.Auth, string, []string, []byte) error { time.Sleep(time.Second); return nil }
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.NotifySettled(ctx, testPayment()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
