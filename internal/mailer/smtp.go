package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SMTPTransport delivers mail through an authenticated SMTP relay such as Gmail.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// sendMail defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewSMTPTransport creates a transport for host:port.
func NewSMTPTransport(host string, port int, username, password, from, fromName string) *SMTPTransport {
	return &SMTPTransport{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		FromName: fromName,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Send writes msg as a multipart/alternative email. The returned id is the Message-ID header.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg.To == "" {
		return "", ErrNoRecipient
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), t.Host)
	body, err := t.build(msg, id)
	if err != nil {
		return "", err
	}

	auth := smtp.PlainAuth("", t.Username, t.Password, t.Host)
	addr := t.Host + ":" + strconv.Itoa(t.Port)
	if err := t.sendMail(addr, auth, t.From, []string{msg.To}, body); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return id, nil
}

func (t *SMTPTransport) build(msg Message, id string) ([]byte, error) {
	from := mail.Address{Name: t.FromName, Address: t.From}
	to := mail.Address{Address: msg.To}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := []struct{ key, value string }{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", t.now().Format(time.RFC1123Z)},
		{"Message-ID", id},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	}
	var head bytes.Buffer
	for _, h := range header {
		fmt.Fprintf(&head, "%s: %s\r\n", h.key, h.value)
	}
	head.WriteString("\r\n")

	parts := []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}
