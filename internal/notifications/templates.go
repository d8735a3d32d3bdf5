package notifications

import (
	"bytes"
	"fmt"
	"html/template"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var emailTemplates = map[string][2]string{
	TemplateProviderNewMission: {
		`New mission: {{.service_type}} in {{.location}}`,
		`<p>Hello {{.recipient_name}},</p>
<p>A {{.service_type}} mission in {{.location}} on {{.preferred_date}}{{if .window_start}} ({{.window_start}}-{{.window_end}}){{end}} is waiting for you.</p>
<p>Reference: {{.request_id}}</p>`,
	},
	TemplateProviderMissionConfirmed: {
		`Mission confirmed for {{.preferred_date}}`,
		`<p>Hello {{.recipient_name}},</p>
<p>The {{.service_type}} booking in {{.location}} on {{.preferred_date}} is confirmed{{if .provider_name}} with {{.provider_name}}{{end}}.</p>`,
	},
	TemplateMissionStarted: {
		`Your {{.service_type}} has started`,
		`<p>Hello {{.recipient_name}},</p>
<p>{{if .provider_name}}{{.provider_name}}{{else}}Your provider{{end}} has started the mission.</p>`,
	},
	TemplateMissionCompleted: {
		`Mission completed`,
		`<p>Hello {{.recipient_name}},</p>
<p>The {{.service_type}} mission of {{.preferred_date}} is complete. Thank you for using our service. You can now leave a review.</p>`,
	},
	TemplateCancellation: {
		`Booking cancelled`,
		`<p>Hello {{.recipient_name}},</p>
<p>The {{.service_type}} booking of {{.preferred_date}} in {{.location}} has been cancelled.</p>`,
	},
	TemplateAdminUnmatchedAlert: {
		`No provider for request {{.request_id}}`,
		`<p>Request {{.request_id}} ({{.service_type}}, {{.location}}, {{.preferred_date}}) has no provider.</p>
{{if .reason}}<p>{{.reason}}</p>{{end}}`,
	},
	TemplateDisputeOpened: {
		`Dispute opened on request {{.request_id}}`,
		`<p>A dispute was opened on the {{.service_type}} booking of {{.preferred_date}}.</p>
{{if .reason}}<p>Reason: {{.reason}}</p>{{end}}`,
	},
	TemplateBookingReminder: {
		`Reminder: {{.service_type}} tomorrow`,
		`<p>Hello {{.recipient_name}},</p>
<p>This is a reminder of the {{.service_type}} booking tomorrow, {{.preferred_date}}{{if .window_start}} from {{.window_start}} to {{.window_end}}{{end}}, in {{.location}}.</p>`,
	},
	TemplateRefundProcessed: {
		`Refund processed`,
		`<p>Hello {{.recipient_name}},</p>
<p>A refund of {{printf "%.2f" .amount}} {{.currency}} for request {{.request_id}} has been issued.</p>`,
	},
}

// Renderer turns template keys and payloads into email subject and HTML body.
type Renderer struct {
	templates map[string]emailTemplate
}

// NewRenderer parses every email template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]emailTemplate, len(emailTemplates))}
	for key, src := range emailTemplates {
		subject, err := template.New(key + ".subject").Option("missingkey=zero").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", key, err)
		}
		body, err := template.New(key + ".body").Option("missingkey=zero").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", key, err)
		}
		r.templates[key] = emailTemplate{subject: subject, body: body}
	}
	return r, nil
}

// Render executes the template for key against payload.
func (r *Renderer) Render(key string, payload map[string]any) (subject, body string, err error) {
	t, ok := r.templates[key]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", key)
	}
	var sb, bb bytes.Buffer
	if err := t.subject.Execute(&sb, payload); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", key, err)
	}
	if err := t.body.Execute(&bb, payload); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", key, err)
	}
	return sb.String(), bb.String(), nil
}
