package appointments

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Status is the lifecycle state of a turno.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Label is the Spanish label shown to patients and written to the spreadsheet.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pendiente"
	case StatusConfirmed:
		return "Confirmado"
	case StatusCancelled:
		return "Cancelado"
	}
	return string(s)
}

// Appointment is a booked turno.
type Appointment struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	Description     string     `json:"description"`
	Status          Status     `json:"status"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	Token           string     `json:"-"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CalendarEventID string     `json:"calendar_event_id,omitempty"`
	SheetRowRef     string     `json:"sheet_row_ref,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Active reports whether the turno is still going to happen.
func (a *Appointment) Active(now time.Time) bool {
	return a.Status != StatusCancelled && a.ScheduledAt.After(now)
}

// CreateRequest carries the data needed for a new turno.
type CreateRequest struct {
	Name        string
	Email       string
	ScheduledAt time.Time
	Description string
}

// Validate checks required fields and that the turno is strictly in the future.
func (r *CreateRequest) Validate(now time.Time) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Description = strings.TrimSpace(r.Description)

	switch {
	case r.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case r.Email == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	case r.Description == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case r.ScheduledAt.IsZero():
		return fmt.Errorf("%w: scheduled time is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, r.Email)
	}
	if !r.ScheduledAt.After(now) {
		return fmt.Errorf("%w: scheduled time %s is in the past", ErrValidation, r.ScheduledAt.Format(time.RFC3339))
	}
	return nil
}

// Outcome describes what a lifecycle call did.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeAlreadyCancelled Outcome = "already_cancelled"
)

// Result is returned by every successful lifecycle call.
type Result struct {
	Appointment *Appointment
	Outcome     Outcome
	Sync        SyncReport
}

// Changed reports whether the call performed a state transition.
func (r *Result) Changed() bool {
	return r.Outcome != OutcomeAlreadyConfirmed && r.Outcome != OutcomeAlreadyCancelled
}
