// Package actions turns the assistant's free-form replies into typed
// appointment requests.
//
// The model is prompted to emit a control block once every required field has
// been confirmed by the user:
//
//	[CREAR_TURNO]
//	NOMBRE: Ana Pérez
//	EMAIL: ana@x.com
//	HORARIO: 2030-01-01 10:00:00
//	DESCRIPCION: control
//	[/CREAR_TURNO]
//
// Only the first complete block is interpreted. Every complete block is removed
// from the text shown to the user.
package actions

import "time"

// Kind names a control block.
type Kind string

const (
	KindNone   Kind = "none"
	KindCreate Kind = "crear_turno"
	KindCancel Kind = "cancelar_turno"
)

// DateTimeLayout is the only accepted HORARIO profile.
const DateTimeLayout = "2006-01-02 15:04:05"

// Field keys after normalization.
const (
	KeyName          = "NOMBRE"
	KeyEmail         = "EMAIL"
	KeySchedule      = "HORARIO"
	KeyDescription   = "DESCRIPCION"
	KeyAppointmentID = "TURNO_ID"
	KeyReason        = "MOTIVO"
)

// Action is the tagged variant produced by the extractor. The concrete types
// are NoAction, CreateAppointment and CancelAppointment.
type Action interface {
	Kind() Kind
}

// NoAction means the conversation is still gathering information.
type NoAction struct{}

func (NoAction) Kind() Kind { return KindNone }

// CreateAppointment asks for a new pending turno.
type CreateAppointment struct {
	Name           string
	Email          string // optional, defaults to the logged-in user's email
	ScheduledAt    time.Time
	RawScheduledAt string
	Description    string
}

func (CreateAppointment) Kind() Kind { return KindCreate }

// Fields returns the action as the lower-case key map the model emitted.
func (c CreateAppointment) Fields() map[string]string {
	return map[string]string{
		"nombre":      c.Name,
		"email":       c.Email,
		"horario":     c.RawScheduledAt,
		"descripcion": c.Description,
	}
}

// CancelAppointment asks to cancel one of the user's turnos.
type CancelAppointment struct {
	AppointmentID string
	Reason        string
}

func (CancelAppointment) Kind() Kind { return KindCancel }

// Block is a raw control block: its kind and the KEY: value pairs it carried,
// keyed by lower-cased normalized key.
type Block struct {
	Kind   Kind
	Fields map[string]string
}

// Result is what the orchestrator gets back for one assistant reply.
type Result struct {
	// Visible is the reply with every control block removed.
	Visible string
	// Action is never nil; NoAction when nothing actionable was found.
	Action Action
	// Block is the raw block that was interpreted, if any.
	Block *Block
}

// HasAction reports whether the result carries something other than NoAction.
func (r Result) HasAction() bool {
	return r.Action != nil && r.Action.Kind() != KindNone
}
