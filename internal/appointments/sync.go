package appointments

import "context"

// CalendarSync mirrors turnos into an external calendar.
type CalendarSync interface {
	CreateEvent(ctx context.Context, appt Appointment) (string, error)
	DeleteEvent(ctx context.Context, eventID string) (bool, error)
}

// SheetSync mirrors turnos into a spreadsheet, one row per turno.
type SheetSync interface {
	AppendRow(ctx context.Context, appt Appointment) (string, error)
	UpdateStatus(ctx context.Context, rowRef string, status Status, reason string) error
}

// Notifier emails the patient. Delivery problems are reported as false.
type Notifier interface {
	SendCreated(ctx context.Context, appt Appointment) bool
	SendCancelled(ctx context.Context, appt Appointment) bool
}

// SyncStatus is the outcome of one downstream call.
type SyncStatus string

const (
	SyncSkipped SyncStatus = "skipped"
	SyncOK      SyncStatus = "ok"
	SyncFailed  SyncStatus = "failed"
)

// SyncReport records what happened downstream of a state change. A failed
// entry never means the state change itself failed.
type SyncReport struct {
	Calendar SyncStatus `json:"calendar"`
	Sheet    SyncStatus `json:"sheet"`
	Email    SyncStatus `json:"email"`
}

func newSyncReport() SyncReport {
	return SyncReport{Calendar: SyncSkipped, Sheet: SyncSkipped, Email: SyncSkipped}
}

// Degraded reports whether any downstream call failed.
func (r SyncReport) Degraded() bool {
	return r.Calendar == SyncFailed || r.Sheet == SyncFailed || r.Email == SyncFailed
}

func statusOf(ok bool) SyncStatus {
	if ok {
		return SyncOK
	}
	return SyncFailed
}
