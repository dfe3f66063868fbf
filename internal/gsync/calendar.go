// Package gsync mirrors turnos into Google Calendar and Google Sheets.
package gsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/turnos-ai/internal/appointments"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

// CalendarConfig configures the calendar mirror.
type CalendarConfig struct {
	CalendarID string
	Duration   time.Duration
	Location   *time.Location
}

// CalendarClient creates and deletes one event per turno.
type CalendarClient struct {
	srv    *calendar.Service
	cfg    CalendarConfig
	logger *logging.Logger
}

// NewCalendarClient builds a client. Credentials come in through opts,
// typically option.WithCredentialsFile.
func NewCalendarClient(ctx context.Context, cfg CalendarConfig, logger *logging.Logger, opts ...option.ClientOption) (*CalendarClient, error) {
	if strings.TrimSpace(cfg.CalendarID) == "" {
		return nil, errors.New("gsync: calendar id is required")
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	opts = append([]option.ClientOption{option.WithScopes(calendar.CalendarEventsScope)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gsync: create calendar service: %w", err)
	}
	return &CalendarClient{srv: srv, cfg: cfg, logger: logger}, nil
}

// CreateEvent inserts the turno and returns the event id.
func (c *CalendarClient) CreateEvent(ctx context.Context, appt appointments.Appointment) (string, error) {
	start := appt.ScheduledAt.In(c.cfg.Location)
	end := start.Add(c.cfg.Duration)

	event := &calendar.Event{
		Summary:     fmt.Sprintf("Turno: %s", appt.Name),
		Description: fmt.Sprintf("Motivo: %s\nEmail: %s\nTurno: %s", appt.Description, appt.Email, appt.ID),
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: c.cfg.Location.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: c.cfg.Location.String(),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"appointment_id": appt.ID},
		},
	}

	created, err := c.srv.Events.Insert(c.cfg.CalendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gsync: insert calendar event: %w", err)
	}
	c.logger.Info("calendar event created", "appointment_id", appt.ID, "event_id", created.Id)
	return created.Id, nil
}

// DeleteEvent removes an event. It returns false without error when the event
// no longer exists.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) (bool, error) {
	err := c.srv.Events.Delete(c.cfg.CalendarID, eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			return false, nil
		}
		return false, fmt.Errorf("gsync: delete calendar event %s: %w", eventID, err)
	}
	c.logger.Info("calendar event deleted", "event_id", eventID)
	return true, nil
}

var _ appointments.CalendarSync = (*CalendarClient)(nil)
