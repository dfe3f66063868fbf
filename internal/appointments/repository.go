package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Transition describes a status change applied with compare-and-set semantics.
type Transition struct {
	From         Status
	To           Status
	CancelReason string
	ConfirmedAt  *time.Time
	At           time.Time
}

// Repository defines the interface for appointment storage
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	GetByToken(ctx context.Context, token string) (*Appointment, error)
	ListByEmail(ctx context.Context, email string) ([]*Appointment, error)
	// Apply moves the turno identified by token from t.From to t.To. It returns
	// errStaleStatus when the stored status no longer equals t.From.
	Apply(ctx context.Context, token string, t Transition) (*Appointment, error)
	SetExternalRefs(ctx context.Context, id, calendarEventID, sheetRowRef string) error
}

// InMemoryRepository keeps appointments in a map. Used by tests and local runs
// without DATABASE_URL.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Appointment
	byToken map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:    make(map[string]*Appointment),
		byToken: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[appt.Token]; exists {
		return ErrDuplicateToken
	}
	stored := *appt
	r.byID[appt.ID] = &stored
	r.byToken[appt.Token] = appt.ID
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (r *InMemoryRepository) GetByToken(ctx context.Context, token string) (*Appointment, error) {
	r.mu.RLock()
	id, ok := r.byToken[token]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *InMemoryRepository) ListByEmail(ctx context.Context, email string) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Appointment
	for _, appt := range r.byID {
		if strings.EqualFold(appt.Email, email) {
			cp := *appt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *InMemoryRepository) Apply(ctx context.Context, token string, t Transition) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	appt := r.byID[id]
	if appt.Status != t.From {
		return nil, errStaleStatus
	}
	appt.Status = t.To
	if t.To == StatusCancelled {
		appt.CancelReason = t.CancelReason
	}
	if t.ConfirmedAt != nil {
		at := *t.ConfirmedAt
		appt.ConfirmedAt = &at
	}
	appt.UpdatedAt = t.At
	cp := *appt
	return &cp, nil
}

func (r *InMemoryRepository) SetExternalRefs(ctx context.Context, id, calendarEventID, sheetRowRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if calendarEventID != "" {
		appt.CalendarEventID = calendarEventID
	}
	if sheetRowRef != "" {
		appt.SheetRowRef = sheetRowRef
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
