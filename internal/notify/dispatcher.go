package notify

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"idportal/internal/model"

	"go.uber.org/zap"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "candidate_invite"}}Hello {{.Name}},

Please complete your ID card application by uploading a photo and confirming your details:

{{.Link}}

The link is personal; do not share it.
{{end}}
{{define "changes_requested"}}Hello {{.Name}},

Your ID card application needs changes before it can be approved:

{{.Comment}}

Update it here: {{.Link}}
{{end}}
{{define "vendor_assigned"}}Hello {{.Name}},

{{.Count}} ID card request{{if ne .Count 1}}s have{{else}} has{{end}} been assigned to you. Sign in to download and fulfil them:

{{.Link}}
{{end}}
{{define "login_link"}}Hello {{.Name}},

Use this link to sign in as {{.Role}}. It expires shortly and works once.

{{.Link}}
{{end}}
`))

// Dispatcher renders workflow emails and hands them to a Mailer.
type Dispatcher struct {
	mailer      Mailer
	frontendURL string
	log         *zap.Logger
}

func NewDispatcher(mailer Mailer, frontendURL string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{mailer: mailer, frontendURL: strings.TrimRight(frontendURL, "/"), log: log}
}

func (d *Dispatcher) CandidateInvite(ctx context.Context, sub *model.Submission, link string) error {
	return d.send(ctx, sub.Email, "Complete your ID card application", "candidate_invite", map[string]interface{}{
		"Name": sub.Name,
		"Link": link,
	})
}

func (d *Dispatcher) ChangesRequested(ctx context.Context, sub *model.Submission, link string) error {
	return d.send(ctx, sub.Email, "Changes requested on your ID card application", "changes_requested", map[string]interface{}{
		"Name":    sub.Name,
		"Comment": sub.Comments,
		"Link":    link,
	})
}

func (d *Dispatcher) VendorAssigned(ctx context.Context, vendor *model.Vendor, count int) error {
	return d.send(ctx, vendor.Email, "New ID card requests assigned", "vendor_assigned", map[string]interface{}{
		"Name":  vendor.Name,
		"Count": count,
		"Link":  d.frontendURL + "/vendor",
	})
}

func (d *Dispatcher) LoginLink(ctx context.Context, name, email string, role model.Role, link string) error {
	return d.send(ctx, email, "Your sign-in link", "login_link", map[string]interface{}{
		"Name": name,
		"Role": role,
		"Link": link,
	})
}

func (d *Dispatcher) send(ctx context.Context, to, subject, tmpl string, data map[string]interface{}) error {
	var body strings.Builder
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("failed to render %s email: %w", tmpl, err)
	}
	msg := Message{To: to, Subject: subject, Body: strings.TrimSpace(body.String()) + "\n"}
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.log.Warn("email delivery failed", zap.String("template", tmpl), zap.String("to", to), zap.Error(err))
		return err
	}
	d.log.Debug("email sent", zap.String("template", tmpl), zap.String("to", to))
	return nil
}
