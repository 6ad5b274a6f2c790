package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/auth-service/internal/config"
)

//go:embed templates/*.html
var templateFiles embed.FS

var subjects = map[string]string{
	TemplateWelcome: "Welcome! Verify your email",
	TemplateOTP:     "Your verification code",
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier renders embedded HTML templates and sends them over SMTP.
type SMTPNotifier struct {
	addr      string
	from      string
	auth      smtp.Auth
	templates *template.Template
	send      SendFunc
}

// NewSMTPNotifier parses the templates and prepares the transport.
func NewSMTPNotifier(cfg config.MailConfig) (*SMTPNotifier, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPNotifier{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:      cfg.From,
		auth:      auth,
		templates: tmpl,
		send:      smtp.SendMail,
	}, nil
}

// WithSendFunc swaps the transport, for tests.
func (n *SMTPNotifier) WithSendFunc(send SendFunc) *SMTPNotifier {
	n.send = send
	return n
}

// Render returns the message for template without sending it.
func (n *SMTPNotifier) Render(destination, name string, payload Payload) ([]byte, error) {
	subject, ok := subjects[name]
	if !ok {
		return nil, ErrUnknownTemplate
	}

	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, name+".html", payload); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", destination)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// Notify implements Notifier. smtp.SendMail takes no context, so the send
// runs in a goroutine and ctx only bounds how long the caller waits.
func (n *SMTPNotifier) Notify(ctx context.Context, destination, name string, payload Payload) error {
	if strings.ContainsAny(destination, "\r\n") {
		return fmt.Errorf("notify: invalid destination")
	}
	msg, err := n.Render(destination, name, payload)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- n.send(n.addr, n.auth, n.from, []string{destination}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s mail: %w", name, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
