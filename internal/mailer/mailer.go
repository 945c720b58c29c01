// Package mailer renders Lumi's transactional emails and delivers them over SMTP or Amazon SES.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danieldreier/mcp-lumi/internal/metrics"
	"go.uber.org/zap"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers a message and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ErrNoRecipient is returned for a message without a To address.
var ErrNoRecipient = errors.New("message has no recipient")

// Mailer renders templates and hands the result to a Transport.
type Mailer struct {
	transport  Transport
	appBaseURL string
	logger     *zap.Logger
}

// New creates a Mailer. appBaseURL is linked from the test email.
func New(transport Transport, appBaseURL string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{transport: transport, appBaseURL: appBaseURL, logger: logger}
}

// SendVerification sends the account verification email.
func (m *Mailer) SendVerification(ctx context.Context, to, name, link string) (string, error) {
	return m.send(ctx, TemplateVerification, to, Data{Name: name, Link: link})
}

// SendPasswordReset sends the password reset email.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, link string) (string, error) {
	return m.send(ctx, TemplatePasswordReset, to, Data{Name: name, Link: link})
}

// SendFriendInvitation sends an invitation from inviterName.
func (m *Mailer) SendFriendInvitation(ctx context.Context, to, inviterName, link string) (string, error) {
	return m.send(ctx, TemplateFriendInvite, to, Data{InviterName: inviterName, Link: link})
}

// SendTest sends a short message confirming the transport works.
func (m *Mailer) SendTest(ctx context.Context, to string) (string, error) {
	return m.send(ctx, TemplateTest, to, Data{})
}

func (m *Mailer) send(ctx context.Context, template, to string, data Data) (id string, err error) {
	defer func() {
		metrics.EmailsSent.WithLabelValues(template, metrics.Status(err)).Inc()
	}()

	to = strings.TrimSpace(to)
	if to == "" {
		return "", ErrNoRecipient
	}
	data.AppBaseURL = m.appBaseURL

	msg, err := Render(template, to, data)
	if err != nil {
		return "", err
	}

	id, err = m.transport.Send(ctx, msg)
	if err != nil {
		m.logger.Error("Failed to send email",
			zap.String("template", template),
			zap.String("to", to),
			zap.Error(err))
		return "", fmt.Errorf("sending %s email: %w", template, err)
	}

	m.logger.Info("Email sent",
		zap.String("template", template),
		zap.String("to", to),
		zap.String("message_id", id))
	return id, nil
}
