package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/owlnotes/meeting-pipeline/internal/types"
)

// Message carries everything needed to email a processed meeting to its host.
type Message struct {
	Recipient    string
	Subject      string
	Analysis     *types.Analysis
	ArtifactPath string
	Meta         types.MeetingMeta
}

// Mailer sends analysis emails over SMTP. Sending is best-effort: callers
// log failures and keep the job resolution independent of delivery.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewMailer creates an SMTP mailer.
func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

var bodyTemplate = template.Must(template.New("analysis").Parse(`<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>{{.Title}}</h2>
  <p>Host: {{.Host}}{{if .Participants}} &middot; Participants: {{.Participants}}{{end}}</p>
  <h3>Summary</h3>
  <p>{{.Summary}}</p>
  <h3>Notes</h3>
  <pre style="white-space: pre-wrap; font-family: inherit;">{{.StructuredNote}}</pre>
  <h3>Recommendations</h3>
  <pre style="white-space: pre-wrap; font-family: inherit;">{{.Recommendations}}</pre>
  <p style="color: #777; font-size: 12px;">The merged recording is attached.</p>
</body>
</html>`))

// SendAnalysis formats and sends one result email, attaching the merged
// recording when available.
func (m *Mailer) SendAnalysis(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("notify: recipient required")
	}

	title := msg.Meta.Title
	if title == "" {
		title = "Meeting"
	}

	var body bytes.Buffer
	data := struct {
		Title, Host, Participants                string
		Summary, StructuredNote, Recommendations string
	}{
		Title:        title,
		Host:         msg.Meta.HostName,
		Participants: strings.Join(msg.Meta.Participants, ", "),
	}
	if msg.Analysis != nil {
		data.Summary = msg.Analysis.Summary
		data.StructuredNote = msg.Analysis.StructuredNote
		data.Recommendations = msg.Analysis.Recommendations
	}
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("notify: render body: %w", err)
	}

	mm := mail.NewMsg()
	if err := mm.From(m.from); err != nil {
		return fmt.Errorf("notify: sender address: %w", err)
	}
	if err := mm.To(msg.Recipient); err != nil {
		return fmt.Errorf("notify: recipient address: %w", err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextHTML, body.String())
	if msg.ArtifactPath != "" {
		mm.AttachFile(msg.ArtifactPath)
	}

	client, err := mail.NewClient(m.host,
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.username),
		mail.WithPassword(m.password),
	)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("notify: send to %s: %w", msg.Recipient, err)
	}
	return nil
}
