package notify

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/wolfman30/turnos-ai/internal/appointments"
	"github.com/wolfman30/turnos-ai/internal/observability/metrics"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

const (
	kindCreated   = "created"
	kindCancelled = "cancelled"
)

var createdHTML = htmltemplate.Must(htmltemplate.New("created").Parse(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #0f766e;">Tu turno fue registrado</h2>
<p>Hola {{.Name}}, registramos tu turno en {{.Clinic}}.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
<tr><td style="padding: 4px 12px 4px 0;"><strong>Fecha</strong></td><td>{{.When}}</td></tr>
<tr><td style="padding: 4px 12px 4px 0;"><strong>Motivo de consulta</strong></td><td>{{.Description}}</td></tr>
</table>
<p>Por favor confirmá tu asistencia:</p>
<p>
<a href="{{.ConfirmURL}}" style="background: #0f766e; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Confirmar turno</a>
&nbsp;
<a href="{{.CancelURL}}" style="color: #b91c1c;">Cancelar turno</a>
</p>
</div>`))

var createdText = template.Must(template.New("created").Parse(`Hola {{.Name}}, registramos tu turno en {{.Clinic}}.

Fecha: {{.When}}
Motivo de consulta: {{.Description}}

Confirmar: {{.ConfirmURL}}
Cancelar: {{.CancelURL}}
`))

var cancelledHTML = htmltemplate.Must(htmltemplate.New("cancelled").Parse(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #b91c1c;">Tu turno fue cancelado</h2>
<p>Hola {{.Name}}, cancelamos tu turno en {{.Clinic}}.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
<tr><td style="padding: 4px 12px 4px 0;"><strong>Fecha</strong></td><td>{{.When}}</td></tr>
<tr><td style="padding: 4px 12px 4px 0;"><strong>Motivo de consulta</strong></td><td>{{.Description}}</td></tr>
{{if .Reason}}<tr><td style="padding: 4px 12px 4px 0;"><strong>Motivo de cancelación</strong></td><td>{{.Reason}}</td></tr>{{end}}
</table>
<p>Podés pedir un nuevo turno desde el chat cuando quieras.</p>
</div>`))

var cancelledText = template.Must(template.New("cancelled").Parse(`Hola {{.Name}}, cancelamos tu turno en {{.Clinic}}.

Fecha: {{.When}}
Motivo de consulta: {{.Description}}
{{if .Reason}}Motivo de cancelación: {{.Reason}}
{{end}}
Podés pedir un nuevo turno desde el chat cuando quieras.
`))

// DispatcherConfig configures patient emails.
type DispatcherConfig struct {
	BaseURL    string
	ClinicName string
	Location   *time.Location
}

// Dispatcher formats and sends the two patient emails: created and cancelled.
type Dispatcher struct {
	sender  EmailSender
	cfg     DispatcherConfig
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewDispatcher creates a dispatcher. A nil sender falls back to the stub sender.
func NewDispatcher(sender EmailSender, cfg DispatcherConfig, m *metrics.BookingMetrics, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Dispatcher{sender: sender, cfg: cfg, metrics: m, logger: logger}
}

type emailView struct {
	Name        string
	Clinic      string
	When        string
	Description string
	Reason      string
	ConfirmURL  string
	CancelURL   string
}

// ConfirmURL is the public confirmation link for a token.
func (d *Dispatcher) ConfirmURL(token string) string {
	return d.cfg.BaseURL + "/appointment/confirm/" + token
}

// CancelURL is the public cancellation link for a token.
func (d *Dispatcher) CancelURL(token string) string {
	return d.cfg.BaseURL + "/appointment/cancel/" + token
}

func (d *Dispatcher) view(appt appointments.Appointment) emailView {
	return emailView{
		Name:        appt.Name,
		Clinic:      d.cfg.ClinicName,
		When:        HumanDate(appt.ScheduledAt, d.cfg.Location),
		Description: appt.Description,
		Reason:      appt.CancelReason,
		ConfirmURL:  d.ConfirmURL(appt.Token),
		CancelURL:   d.CancelURL(appt.Token),
	}
}

// SendCreated emails the confirm/cancel links for a new turno.
func (d *Dispatcher) SendCreated(ctx context.Context, appt appointments.Appointment) bool {
	return d.send(ctx, kindCreated, appt, "Confirmá tu turno", createdText, createdHTML)
}

// SendCancelled emails the cancellation notice.
func (d *Dispatcher) SendCancelled(ctx context.Context, appt appointments.Appointment) bool {
	return d.send(ctx, kindCancelled, appt, "Tu turno fue cancelado", cancelledText, cancelledHTML)
}

func (d *Dispatcher) send(ctx context.Context, kind string, appt appointments.Appointment, subject string, text *template.Template, html *htmltemplate.Template) bool {
	if strings.TrimSpace(appt.Email) == "" {
		d.logger.Warn("notify: appointment has no email, skipping", "kind", kind, "appointment_id", appt.ID)
		d.metrics.ObserveEmail(kind, false)
		return false
	}

	v := d.view(appt)
	var textBuf, htmlBuf bytes.Buffer
	if err := text.Execute(&textBuf, v); err != nil {
		d.logger.Error("notify: render text email failed", "error", err, "kind", kind)
		d.metrics.ObserveEmail(kind, false)
		return false
	}
	if err := html.Execute(&htmlBuf, v); err != nil {
		d.logger.Error("notify: render html email failed", "error", err, "kind", kind)
		d.metrics.ObserveEmail(kind, false)
		return false
	}

	err := d.sender.Send(ctx, EmailMessage{
		To:            appt.Email,
		ToName:        appt.Name,
		Subject:       subject + " - " + d.cfg.ClinicName,
		Body:          textBuf.String(),
		HTML:          htmlBuf.String(),
		Kind:          kind,
		AppointmentID: appt.ID,
	})
	if err != nil {
		d.logger.Error("notify: email delivery failed", "error", err, "kind", kind, "appointment_id", appt.ID)
		d.metrics.ObserveEmail(kind, false)
		return false
	}
	d.metrics.ObserveEmail(kind, true)
	return true
}

var _ appointments.Notifier = (*Dispatcher)(nil)
