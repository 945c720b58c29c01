package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// Template names, also used as metric labels.
const (
	TemplateVerification  = "verification"
	TemplatePasswordReset = "password_reset"
	TemplateFriendInvite  = "friend_invitation"
	TemplateTest          = "test"
)

// Data is the set of values a template may reference.
type Data struct {
	Name        string
	InviterName string
	Link        string
	AppBaseURL  string
}

type emailTemplate struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #6d5dfc; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #6d5dfc; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>{{template "title" .}}</h1></div>
		<div class="content">{{template "body" .}}</div>
		<div class="footer"><p>This is an automated email from Lumi. Please do not reply.</p></div>
	</div>
</body>
</html>
`

const footerText = `
---
This is an automated email from Lumi. Please do not reply.
`

var templates = map[string]emailTemplate{
	TemplateVerification: mustTemplate(
		"Verify your Lumi account",
		`{{define "title"}}Welcome to Lumi!{{end}}
{{define "body"}}
<p>Hi {{.Name}},</p>
<p>Thanks for signing up. Please confirm your email address to start learning.</p>
<p style="text-align: center;"><a href="{{.Link}}" class="button">Verify Email</a></p>
<p>Or copy and paste this link into your browser:</p>
<p style="word-break: break-all; font-size: 12px; color: #666;">{{.Link}}</p>
<p>If you didn't create an account, you can safely ignore this email.</p>
{{end}}`,
		`Hi {{.Name}},

Thanks for signing up. Please confirm your email address to start learning:
{{.Link}}

If you didn't create an account, you can safely ignore this email.
`),
	TemplatePasswordReset: mustTemplate(
		"Reset your Lumi password",
		`{{define "title"}}Password Reset Request{{end}}
{{define "body"}}
<p>Hi {{.Name}},</p>
<p>We received a request to reset the password for your Lumi account.</p>
<p style="text-align: center;"><a href="{{.Link}}" class="button">Reset Password</a></p>
<p>Or copy and paste this link into your browser:</p>
<p style="word-break: break-all; font-size: 12px; color: #666;">{{.Link}}</p>
<p><strong>This link will expire in 1 hour.</strong></p>
<p>If you didn't request a password reset, you can safely ignore this email.</p>
{{end}}`,
		`Hi {{.Name}},

We received a request to reset the password for your Lumi account.

Click the link below to reset your password:
{{.Link}}

This link will expire in 1 hour.

If you didn't request a password reset, you can safely ignore this email.
`),
	TemplateFriendInvite: mustTemplate(
		"{{.InviterName}} invited you to learn on Lumi",
		`{{define "title"}}You're Invited!{{end}}
{{define "body"}}
<p>Hi there,</p>
<p><strong>{{.InviterName}}</strong> wants to study with you on Lumi, the AI tutor that turns any topic into lessons and quizzes.</p>
<p style="text-align: center;"><a href="{{.Link}}" class="button">Accept Invitation</a></p>
<p>Or copy and paste this link into your browser:</p>
<p style="word-break: break-all; font-size: 12px; color: #666;">{{.Link}}</p>
{{end}}`,
		`Hi there,

{{.InviterName}} wants to study with you on Lumi, the AI tutor that turns any topic into lessons and quizzes.

Accept the invitation:
{{.Link}}
`),
	TemplateTest: mustTemplate(
		"Lumi test email",
		`{{define "title"}}It works!{{end}}
{{define "body"}}
<p>This is a test email from the Lumi mail service.</p>
<p>Open Lumi: <a href="{{.AppBaseURL}}">{{.AppBaseURL}}</a></p>
{{end}}`,
		`This is a test email from the Lumi mail service.

Open Lumi: {{.AppBaseURL}}
`),
}

func mustTemplate(subject, htmlBody, textBody string) emailTemplate {
	h := htmltemplate.Must(htmltemplate.New("layout").Parse(layoutHTML))
	h = htmltemplate.Must(h.Parse(htmlBody))
	return emailTemplate{
		subject: subject,
		html:    h,
		text:    texttemplate.Must(texttemplate.New("text").Parse(textBody + footerText)),
	}
}

// Render builds the message for the named template. Subject lines may reference Data fields.
func Render(name, to string, data Data) (Message, error) {
	tmpl, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", name)
	}

	subject, err := texttemplate.New("subject").Parse(tmpl.subject)
	if err != nil {
		return Message{}, fmt.Errorf("parsing subject for %s: %w", name, err)
	}
	var subj, html, text bytes.Buffer
	if err := subject.Execute(&subj, data); err != nil {
		return Message{}, fmt.Errorf("rendering subject for %s: %w", name, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("rendering html for %s: %w", name, err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("rendering text for %s: %w", name, err)
	}

	return Message{
		To:      to,
		Subject: subj.String(),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
