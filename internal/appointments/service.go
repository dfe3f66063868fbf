package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/turnos-ai/internal/observability/metrics"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

var appointmentsTracer = otel.Tracer("turnos.internal.appointments")

const maxTokenAttempts = 3

// Service owns the pending -> confirmed/cancelled lifecycle. It is the only
// writer of appointment state.
type Service struct {
	repo     Repository
	calendar CalendarSync
	sheet    SheetSync
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
	newToken func() (string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithCalendar enables calendar sync.
func WithCalendar(c CalendarSync) Option { return func(s *Service) { s.calendar = c } }

// WithSheet enables spreadsheet sync.
func WithSheet(sh SheetSync) Option { return func(s *Service) { s.sheet = sh } }

// WithNotifier enables patient emails.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithMetrics records lifecycle and sync counters.
func WithMetrics(m *metrics.BookingMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTokenSource overrides token generation.
func WithTokenSource(gen func() (string, error)) Option {
	return func(s *Service) { s.newToken = gen }
}

// NewService constructs an appointments service.
func NewService(repo Repository, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		newToken: NewToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a pending turno, then mirrors it downstream.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create")
	defer span.End()

	now := s.now()
	if err := req.Validate(now); err != nil {
		span.RecordError(err)
		return nil, err
	}

	appt := &Appointment{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Email:       req.Email,
		ScheduledAt: req.ScheduledAt,
		Description: req.Description,
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}

	var err error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		if appt.Token, err = s.newToken(); err != nil {
			break
		}
		if err = s.repo.Create(ctx, appt); !errors.Is(err, ErrDuplicateToken) {
			break
		}
		s.logger.Warn("appointments: token collision, regenerating", "attempt", attempt+1)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: create: %w", err)
	}
	span.SetAttributes(attribute.String("turnos.appointment_id", appt.ID))

	report := newSyncReport()
	if s.calendar != nil {
		eventID, err := s.calendar.CreateEvent(ctx, *appt)
		report.Calendar = s.syncResult("calendar", appt.ID, err)
		if err == nil {
			appt.CalendarEventID = eventID
		}
	}
	if s.sheet != nil {
		rowRef, err := s.sheet.AppendRow(ctx, *appt)
		report.Sheet = s.syncResult("sheet", appt.ID, err)
		if err == nil {
			appt.SheetRowRef = rowRef
		}
	}
	if appt.CalendarEventID != "" || appt.SheetRowRef != "" {
		if err := s.repo.SetExternalRefs(ctx, appt.ID, appt.CalendarEventID, appt.SheetRowRef); err != nil {
			s.logger.Error("appointments: failed to store external refs", "error", err, "appointment_id", appt.ID)
		}
	}
	if s.notifier != nil {
		report.Email = s.notifyResult("email", appt.ID, s.notifier.SendCreated(ctx, *appt))
	}

	s.metrics.ObserveTransition(string(OutcomeCreated))
	s.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"scheduled_at", appt.ScheduledAt.Format(time.RFC3339),
		"sync_degraded", report.Degraded(),
	)
	return &Result{Appointment: appt, Outcome: OutcomeCreated, Sync: report}, nil
}

// Confirm moves a pending turno to confirmed. Confirming twice is not an
// error; confirming a cancelled turno is ErrInvalidTransition.
func (s *Service) Confirm(ctx context.Context, token string) (*Result, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.confirm")
	defer span.End()

	res, err := s.confirm(ctx, token, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("turnos.appointment_id", res.Appointment.ID),
		attribute.String("turnos.outcome", string(res.Outcome)),
	)
	s.metrics.ObserveTransition(string(res.Outcome))
	return res, nil
}

func (s *Service) confirm(ctx context.Context, token string, retryOnRace bool) (*Result, error) {
	appt, err := s.lookupToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case StatusConfirmed:
		return &Result{Appointment: appt, Outcome: OutcomeAlreadyConfirmed, Sync: newSyncReport()}, nil
	case StatusCancelled:
		return nil, fmt.Errorf("%w: appointment %s is cancelled", ErrInvalidTransition, appt.ID)
	}

	now := s.now()
	confirmedAt := now.UTC()
	updated, err := s.repo.Apply(ctx, token, Transition{
		From:        StatusPending,
		To:          StatusConfirmed,
		ConfirmedAt: &confirmedAt,
		At:          now.UTC(),
	})
	if errors.Is(err, errStaleStatus) && retryOnRace {
		s.logger.Warn("appointments: concurrent update during confirm", "appointment_id", appt.ID)
		return s.confirm(ctx, token, false)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: confirm: %w", err)
	}

	report := newSyncReport()
	if s.sheet != nil && updated.SheetRowRef != "" {
		err := s.sheet.UpdateStatus(ctx, updated.SheetRowRef, StatusConfirmed, "")
		report.Sheet = s.syncResult("sheet", updated.ID, err)
	}

	s.logger.Info("appointment confirmed", "appointment_id", updated.ID)
	return &Result{Appointment: updated, Outcome: OutcomeConfirmed, Sync: report}, nil
}

// Cancel moves a pending or confirmed turno to cancelled. Cancelling twice is
// not an error.
func (s *Service) Cancel(ctx context.Context, token, reason string) (*Result, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()

	res, err := s.cancel(ctx, token, strings.TrimSpace(reason), true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("turnos.appointment_id", res.Appointment.ID),
		attribute.String("turnos.outcome", string(res.Outcome)),
	)
	s.metrics.ObserveTransition(string(res.Outcome))
	return res, nil
}

func (s *Service) cancel(ctx context.Context, token, reason string, retryOnRace bool) (*Result, error) {
	appt, err := s.lookupToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}
	if appt.Status == StatusCancelled {
		return &Result{Appointment: appt, Outcome: OutcomeAlreadyCancelled, Sync: newSyncReport()}, nil
	}

	updated, err := s.repo.Apply(ctx, token, Transition{
		From:         appt.Status,
		To:           StatusCancelled,
		CancelReason: reason,
		At:           s.now().UTC(),
	})
	if errors.Is(err, errStaleStatus) && retryOnRace {
		s.logger.Warn("appointments: concurrent update during cancel", "appointment_id", appt.ID)
		return s.cancel(ctx, token, reason, false)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel: %w", err)
	}

	report := newSyncReport()
	if s.calendar != nil && updated.CalendarEventID != "" {
		deleted, err := s.calendar.DeleteEvent(ctx, updated.CalendarEventID)
		if err == nil && !deleted {
			s.logger.Info("appointments: calendar event already gone", "appointment_id", updated.ID, "event_id", updated.CalendarEventID)
		}
		report.Calendar = s.syncResult("calendar", updated.ID, err)
	}
	if s.sheet != nil && updated.SheetRowRef != "" {
		err := s.sheet.UpdateStatus(ctx, updated.SheetRowRef, StatusCancelled, reason)
		report.Sheet = s.syncResult("sheet", updated.ID, err)
	}
	if s.notifier != nil {
		report.Email = s.notifyResult("email", updated.ID, s.notifier.SendCancelled(ctx, *updated))
	}

	s.logger.Info("appointment cancelled", "appointment_id", updated.ID, "previous_status", appt.Status)
	return &Result{Appointment: updated, Outcome: OutcomeCancelled, Sync: report}, nil
}

// CancelByID cancels a turno on behalf of a logged-in user. ownerEmail must
// match the turno's email.
func (s *Service) CancelByID(ctx context.Context, id, ownerEmail, reason string) (*Result, error) {
	appt, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("appointments: load %s: %w", id, err)
	}
	if !strings.EqualFold(strings.TrimSpace(appt.Email), strings.TrimSpace(ownerEmail)) {
		return nil, ErrForbidden
	}
	return s.Cancel(ctx, appt.Token, reason)
}

// ListActive returns the user's upcoming, non-cancelled turnos.
func (s *Service) ListActive(ctx context.Context, email string) ([]*Appointment, error) {
	all, err := s.repo.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := make([]*Appointment, 0, len(all))
	for _, appt := range all {
		if appt.Active(now) {
			active = append(active, appt)
		}
	}
	return active, nil
}

// Get returns a turno by token.
func (s *Service) Get(ctx context.Context, token string) (*Appointment, error) {
	return s.lookupToken(ctx, token)
}

func (s *Service) lookupToken(ctx context.Context, token string) (*Appointment, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	appt, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("appointments: lookup token: %w", err)
	}
	return appt, nil
}

func (s *Service) syncResult(target, appointmentID string, err error) SyncStatus {
	if err != nil {
		s.logger.Error("appointments: downstream sync failed", "target", target, "appointment_id", appointmentID, "error", err)
	}
	status := statusOf(err == nil)
	s.metrics.ObserveSync(target, string(status))
	return status
}

func (s *Service) notifyResult(target, appointmentID string, ok bool) SyncStatus {
	if !ok {
		s.logger.Warn("appointments: notification not delivered", "appointment_id", appointmentID)
	}
	status := statusOf(ok)
	s.metrics.ObserveSync(target, string(status))
	return status
}
