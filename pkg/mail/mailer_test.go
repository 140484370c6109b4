package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	mailFrom string
	rcptTo   []string
	data     bytes.Buffer
	quit     bool
	authed   bool
}

func (f *fakeSMTPClient) Mail(from string) error { f.mailFrom = from; return nil }
func (f *fakeSMTPClient) Rcpt(to string) error   { f.rcptTo = append(f.rcptTo, to); return nil }

func (f *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.data}, nil
}

func (f *fakeSMTPClient) Quit() error                        { f.quit = true; return nil }
func (f *fakeSMTPClient) Close() error                       { return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error         { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error               { f.authed = true; return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string)    { return false, "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newTestMailer(t *testing.T, cfg SMTPSettings) (*smtpMailer, *fakeSMTPClient) {
	t.Helper()

	mailer, err := NewSMTPMailer(cfg)
	require.NoError(t, err)

	client := &fakeSMTPClient{}
	impl := mailer.(*smtpMailer)
	impl.dialFn = func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
		server, _ := net.Pipe()
		return server, client, nil
	}
	return impl, client
}

func TestSendWritesFormattedMessage(t *testing.T) {
	mailer, client := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})

	err := mailer.Send(context.Background(), Message{
		To:      "alice@example.com",
		Subject: "Your verification code",
		Body:    "123456",
	})
	require.NoError(t, err)

	require.Equal(t, "no-reply@example.com", client.mailFrom)
	require.Equal(t, []string{"alice@example.com"}, client.rcptTo)
	require.Contains(t, client.data.String(), "Subject: Your verification code")
	require.True(t, client.quit)

	// The body must sit below the empty line that ends the header block, or
	// receivers treat it as a malformed header and drop it.
	headerEnd := "Content-Type: text/plain; charset=UTF-8\r\n\r\n"
	require.Contains(t, client.data.String(), headerEnd+"123456")
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	mailer, _ := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})

	err := mailer.Send(context.Background(), Message{To: "not-an-address"})
	require.Error(t, err)
}

func TestSendEscapesHeaderInjection(t *testing.T) {
	mailer, client := newTestMailer(t, SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})

	err := mailer.Send(context.Background(), Message{
		To:      "bob@example.com",
		Subject: "code\r\nBcc: eve@example.com",
		Body:    "654321",
	})
	require.NoError(t, err)
	require.NotContains(t, client.data.String(), "Bcc:")
	require.Contains(t, client.data.String(), "Subject: code\r\n")
}

func TestSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: "alice@example.com"})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestNewSMTPMailerValidation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true, Port: 587, From: "a@b.c"})
	require.Error(t, err)

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "h", From: "a@b.c"})
	require.Error(t, err)

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "h", Port: 587})
	require.Error(t, err)
}
