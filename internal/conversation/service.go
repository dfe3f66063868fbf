// Package conversation runs the booking chat: it keeps the per-session turn
// log, asks the configured model for the next reply and turns control blocks
// in that reply into appointment operations.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/turnos-ai/internal/actions"
	"github.com/wolfman30/turnos-ai/internal/appointments"
	"github.com/wolfman30/turnos-ai/internal/notify"
	"github.com/wolfman30/turnos-ai/internal/observability/metrics"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

var conversationTracer = otel.Tracer("turnos.internal.conversation")

// ApologyMessage is returned to the user whenever the model call fails.
const ApologyMessage = "Disculpá, tuve un problema para procesar tu mensaje. Por favor, intentá de nuevo en unos minutos."

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("conversation: message is required")

// Principal identifies the logged-in user on whose behalf the chat acts.
type Principal struct {
	Email string
	Name  string
}

// Reply is what the user sees after one turn.
type Reply struct {
	Text          string               `json:"text"`
	AppointmentID string               `json:"appointment_id,omitempty"`
	Action        actions.Kind         `json:"action,omitempty"`
	Outcome       appointments.Outcome `json:"outcome,omitempty"`
}

// Lifecycle is the part of the appointments service the chat drives.
type Lifecycle interface {
	Create(ctx context.Context, req appointments.CreateRequest) (*appointments.Result, error)
	CancelByID(ctx context.Context, id, ownerEmail, reason string) (*appointments.Result, error)
	ListActive(ctx context.Context, email string) ([]*appointments.Appointment, error)
}

// Config tunes prompt construction and model calls.
type Config struct {
	Clinic       string
	Location     *time.Location
	HistoryLimit int
	MaxTokens    int32
	Temperature  float32
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records turn and model-latency metrics.
func WithMetrics(m *metrics.BookingMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service is the conversation orchestrator.
type Service struct {
	llm       LLMClient
	turns     TurnStore
	lifecycle Lifecycle
	extractor *actions.Extractor
	cfg       Config
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time

	sessions keyedMutex
}

// NewService wires the orchestrator.
func NewService(llm LLMClient, turns TurnStore, lifecycle Lifecycle, cfg Config, logger *logging.Logger, opts ...Option) *Service {
	if llm == nil {
		panic("conversation: llm client required")
	}
	if turns == nil {
		panic("conversation: turn store required")
	}
	if lifecycle == nil {
		panic("conversation: lifecycle required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	s := &Service{
		llm:       llm,
		turns:     turns,
		lifecycle: lifecycle,
		extractor: actions.NewExtractor(cfg.Location),
		cfg:       cfg,
		logger:    logger.Component("conversation"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleTurn processes one user message and returns the reply to show.
// Turns of the same session are applied one at a time in arrival order.
func (s *Service) HandleTurn(ctx context.Context, sessionID string, user Principal, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	if strings.TrimSpace(sessionID) == "" {
		return Reply{}, errors.New("conversation: session id is required")
	}

	ctx, span := conversationTracer.Start(ctx, "conversation.handle_turn")
	defer span.End()
	span.SetAttributes(attribute.String("turnos.session_id", sessionID))

	unlock := s.sessions.lock(sessionID)
	defer unlock()

	if err := s.turns.Append(ctx, &Turn{
		SessionID: sessionID,
		Role:      ChatRoleUser,
		Message:   text,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		span.RecordError(err)
		return Reply{}, err
	}

	history, err := s.turns.List(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		span.RecordError(err)
		return Reply{}, err
	}

	var active []*appointments.Appointment
	if user.Email != "" {
		if active, err = s.lifecycle.ListActive(ctx, user.Email); err != nil {
			s.logger.Warn("failed to load active appointments for prompt", "error", err, "session_id", sessionID)
			active = nil
		}
	}

	req := LLMRequest{
		System: []string{BuildSystemPrompt(SystemPromptInput{
			Clinic:   s.cfg.Clinic,
			Now:      s.now(),
			Location: s.cfg.Location,
			User:     user,
			Active:   active,
		})},
		Messages:    historyMessages(history),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	started := time.Now()
	resp, err := s.llm.Complete(ctx, req)
	if err != nil {
		s.metrics.ObserveLLM("error", time.Since(started).Seconds())
		s.metrics.ObserveTurn("llm_error")
		span.RecordError(err)
		s.logger.Error("llm completion failed", "error", err, "session_id", sessionID)
		s.appendAssistant(ctx, sessionID, ApologyMessage, "")
		return Reply{Text: ApologyMessage}, nil
	}
	s.metrics.ObserveLLM("ok", time.Since(started).Seconds())
	s.logger.Debug("llm completion",
		"session_id", sessionID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)

	extracted := s.extractor.Extract(resp.Text)
	if extracted.Block != nil && !extracted.HasAction() {
		s.logger.Warn("control block dropped: missing or invalid fields",
			"session_id", sessionID, "kind", string(extracted.Block.Kind))
	}

	var reply Reply
	if extracted.HasAction() {
		reply.Action = extracted.Action.Kind()
	}
	note := ""
	switch action := extracted.Action.(type) {
	case actions.CreateAppointment:
		note, reply.AppointmentID, reply.Outcome = s.create(ctx, user, action)
	case actions.CancelAppointment:
		note, reply.AppointmentID, reply.Outcome = s.cancel(ctx, user, action)
	}

	reply.Text = joinNote(extracted.Visible, note)
	if reply.Text == "" {
		reply.Text = ApologyMessage
	}
	s.appendAssistant(ctx, sessionID, reply.Text, reply.AppointmentID)

	result := "reply"
	if reply.Outcome != "" {
		result = string(reply.Action)
	}
	s.metrics.ObserveTurn(result)
	return reply, nil
}

// History returns the stored turns of a session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]Turn, error) {
	return s.turns.List(ctx, sessionID, 0)
}

func (s *Service) create(ctx context.Context, user Principal, action actions.CreateAppointment) (note, appointmentID string, outcome appointments.Outcome) {
	email := action.Email
	if email == "" {
		email = user.Email
	}
	res, err := s.lifecycle.Create(ctx, appointments.CreateRequest{
		Name:        action.Name,
		Email:       email,
		ScheduledAt: action.ScheduledAt,
		Description: action.Description,
	})
	if err != nil {
		s.logger.Warn("chat booking rejected", "error", err)
		if errors.Is(err, appointments.ErrValidation) {
			return "No pude registrar el turno: revisá que los datos estén completos, que el email sea válido y que la fecha sea futura.", "", ""
		}
		return "No pude registrar el turno por un problema interno. Por favor, intentá nuevamente.", "", ""
	}

	appt := res.Appointment
	note = fmt.Sprintf("✅ Tu turno quedó registrado para el %s.", notify.HumanDate(appt.ScheduledAt, s.cfg.Location))
	if res.Sync.Email == appointments.SyncFailed {
		note += " No pudimos enviarte el email de confirmación; si lo necesitás, escribinos de nuevo."
	} else {
		note += " Te enviamos un email a " + appt.Email + " para confirmarlo."
	}
	return note, appt.ID, res.Outcome
}

func (s *Service) cancel(ctx context.Context, user Principal, action actions.CancelAppointment) (note, appointmentID string, outcome appointments.Outcome) {
	res, err := s.lifecycle.CancelByID(ctx, action.AppointmentID, user.Email, action.Reason)
	switch {
	case err == nil:
	case errors.Is(err, appointments.ErrNotFound):
		return "No encontré un turno con ese identificador.", "", ""
	case errors.Is(err, appointments.ErrForbidden):
		return "Ese turno no pertenece a tu cuenta, así que no puedo cancelarlo.", "", ""
	case errors.Is(err, appointments.ErrValidation):
		return "Para cancelar el turno necesito el motivo.", "", ""
	default:
		s.logger.Error("chat cancellation failed", "error", err, "appointment_id", action.AppointmentID)
		return "No pude cancelar el turno por un problema interno. Por favor, intentá nuevamente.", "", ""
	}

	if res.Outcome == appointments.OutcomeAlreadyCancelled {
		return "Ese turno ya estaba cancelado.", res.Appointment.ID, res.Outcome
	}
	return fmt.Sprintf("Tu turno del %s fue cancelado.", notify.HumanDate(res.Appointment.ScheduledAt, s.cfg.Location)),
		res.Appointment.ID, res.Outcome
}

func (s *Service) appendAssistant(ctx context.Context, sessionID, text, appointmentID string) {
	if err := s.turns.Append(ctx, &Turn{
		SessionID:     sessionID,
		Role:          ChatRoleAssistant,
		Message:       text,
		AppointmentID: appointmentID,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Error("failed to store assistant turn", "error", err, "session_id", sessionID)
	}
}

// historyMessages turns the stored window into a provider transcript. The
// window is cut by count, so it may open on an assistant turn; those are
// dropped. Consecutive turns of one role, left behind by a failed store
// write, are merged so roles strictly alternate.
func historyMessages(turns []Turn) []ChatMessage {
	out := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		if len(out) == 0 && t.Role != ChatRoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1].Content += "\n\n" + t.Message
			continue
		}
		out = append(out, ChatMessage{Role: t.Role, Content: t.Message})
	}
	return out
}

func joinNote(visible, note string) string {
	visible = strings.TrimSpace(visible)
	switch {
	case note == "":
		return visible
	case visible == "":
		return note
	}
	return visible + "\n\n" + note
}
