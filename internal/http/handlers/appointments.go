package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/turnos-ai/internal/appointments"
	"github.com/wolfman30/turnos-ai/internal/notify"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

type appointmentLinks interface {
	Get(ctx context.Context, token string) (*appointments.Appointment, error)
	Confirm(ctx context.Context, token string) (*appointments.Result, error)
	Cancel(ctx context.Context, token, reason string) (*appointments.Result, error)
}

// AppointmentHandler serves the tokenized confirm and cancel links sent by email.
type AppointmentHandler struct {
	svc    appointmentLinks
	clinic string
	loc    *time.Location
	logger *logging.Logger
}

func NewAppointmentHandler(svc appointmentLinks, clinic string, loc *time.Location, logger *logging.Logger) *AppointmentHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentHandler{svc: svc, clinic: clinic, loc: loc, logger: logger.Component("appointment_handler")}
}

// Confirm handles GET /appointment/confirm/{token}.
func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.renderError(w, err, "confirmar")
		return
	}
	view := h.page("Turno confirmado", "¡Tu turno está confirmado!", "Te esperamos.", res.Appointment)
	if res.Outcome == appointments.OutcomeAlreadyConfirmed {
		view.Heading = "Tu turno ya estaba confirmado"
		view.Message = "No hace falta hacer nada más."
	}
	renderPage(w, http.StatusOK, view)
}

// CancelForm handles GET /appointment/cancel/{token}.
func (h *AppointmentHandler) CancelForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	appt, err := h.svc.Get(r.Context(), token)
	if err != nil {
		h.renderError(w, err, "cancelar")
		return
	}
	if appt.Status == appointments.StatusCancelled {
		renderPage(w, http.StatusOK, h.page("Turno cancelado", "Este turno ya estaba cancelado", "", appt))
		return
	}
	view := h.page("Cancelar turno", "Cancelar turno", "Contanos por qué no podés asistir.", appt)
	view.Form = &cancelForm{Action: r.URL.Path}
	renderPage(w, http.StatusOK, view)
}

// Cancel handles POST /appointment/cancel/{token}.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	reason := strings.TrimSpace(r.PostForm.Get("reason"))

	res, err := h.svc.Cancel(r.Context(), token, reason)
	if errors.Is(err, appointments.ErrValidation) {
		appt, getErr := h.svc.Get(r.Context(), token)
		if getErr != nil {
			h.renderError(w, getErr, "cancelar")
			return
		}
		view := h.page("Cancelar turno", "Cancelar turno", "Contanos por qué no podés asistir.", appt)
		view.Form = &cancelForm{Action: r.URL.Path, Reason: reason, Error: "Indicá el motivo de la cancelación."}
		renderPage(w, http.StatusBadRequest, view)
		return
	}
	if err != nil {
		h.renderError(w, err, "cancelar")
		return
	}

	view := h.page("Turno cancelado", "Tu turno fue cancelado", "Gracias por avisarnos.", res.Appointment)
	if res.Outcome == appointments.OutcomeAlreadyCancelled {
		view.Heading = "Este turno ya estaba cancelado"
		view.Message = ""
	}
	renderPage(w, http.StatusOK, view)
}

func (h *AppointmentHandler) page(title, heading, message string, appt *appointments.Appointment) pageView {
	view := pageView{Clinic: h.clinic, Title: title, Heading: heading, Message: message}
	if appt != nil {
		view.Details = []detail{
			{Label: "Paciente", Value: appt.Name},
			{Label: "Fecha", Value: notify.HumanDate(appt.ScheduledAt, h.loc)},
			{Label: "Motivo", Value: appt.Description},
			{Label: "Estado", Value: appt.Status.Label()},
		}
		if appt.CancelReason != "" {
			view.Details = append(view.Details, detail{Label: "Motivo de cancelación", Value: appt.CancelReason})
		}
	}
	return view
}

func (h *AppointmentHandler) renderError(w http.ResponseWriter, err error, verb string) {
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		renderPage(w, http.StatusNotFound, pageView{Clinic: h.clinic, Title: "Turno no encontrado",
			Heading: "No encontramos el turno", Message: "El enlace no es válido o el turno ya no existe."})
	case errors.Is(err, appointments.ErrInvalidTransition):
		renderPage(w, http.StatusConflict, pageView{Clinic: h.clinic, Title: "Turno cancelado",
			Heading: "No se puede " + verb + " este turno", Message: "El turno fue cancelado. Podés sacar uno nuevo desde el chat."})
	default:
		h.logger.Error("appointment link failed", "error", err)
		renderPage(w, http.StatusInternalServerError, pageView{Clinic: h.clinic, Title: "Error",
			Heading: "Algo salió mal", Message: "Intentá nuevamente en unos minutos."})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
