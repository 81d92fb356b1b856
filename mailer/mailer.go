// Package mailer sends the site's transactional email.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

// Message is a single outgoing email.
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
}

// Logger is the subset of echo.Logger the log sender needs.
type Logger interface {
	Infof(format string, args ...interface{})
}

// Resend sends mail through the Resend API.
type Resend struct {
	client *resend.Client
}

// NewResend returns a Resend sender authenticated with apiKey.
func NewResend(apiKey string) *Resend {
	return &Resend{client: resend.NewClient(apiKey)}
}

func (r *Resend) Send(ctx context.Context, m Message) (string, error) {
	if len(m.To) == 0 {
		return "", errors.New("mailer: no recipients")
	}
	resp, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.From,
		To:      m.To,
		ReplyTo: m.ReplyTo,
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.Text,
	})
	if err != nil {
		return "", fmt.Errorf("mailer: resend: %w", err)
	}
	return resp.Id, nil
}

// LogSender writes messages to a logger instead of sending them. Used when no
// provider is configured.
type LogSender struct {
	Logger Logger
}

func (l LogSender) Send(_ context.Context, m Message) (string, error) {
	id := "log-" + uuid.NewString()
	l.Logger.Infof("mail %s to=%s reply-to=%s subject=%q\n%s", id, strings.Join(m.To, ","), m.ReplyTo, m.Subject, m.Text)
	return id, nil
}

// Contact is a message submitted through the site's contact form.
type Contact struct {
	Name    string
	Email   string
	Company string
	Message string
}

var contactHTML = template.Must(template.New("contact").Parse(`<h2>New inquiry from {{.Name}}</h2>
<p><strong>Email:</strong> <a href="mailto:{{.Email}}">{{.Email}}</a></p>
{{- if .Company}}
<p><strong>Company:</strong> {{.Company}}</p>
{{- end}}
<p><strong>Message:</strong></p>
<p style="white-space: pre-wrap">{{.Message}}</p>
`))

var contactText = texttemplate.Must(texttemplate.New("contact").Parse(`New inquiry from {{.Name}}
Email: {{.Email}}
{{- if .Company}}
Company: {{.Company}}
{{- end}}

{{.Message}}
`))

// ContactEmail builds the notification sent to the team for a contact form
// submission. Replies go straight to the sender.
func ContactEmail(from string, to []string, c Contact) (Message, error) {
	var h, t bytes.Buffer
	if err := contactHTML.Execute(&h, c); err != nil {
		return Message{}, err
	}
	if err := contactText.Execute(&t, c); err != nil {
		return Message{}, err
	}
	subject := "New inquiry from " + c.Name
	if c.Company != "" {
		subject += " (" + c.Company + ")"
	}
	return Message{
		From:    from,
		To:      to,
		ReplyTo: c.Email,
		Subject: subject,
		HTML:    h.String(),
		Text:    t.String(),
	}, nil
}
