package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// db is the subset of pgxpool.Pool used here; pgxmock satisfies it in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, name, email, scheduled_at, description, status, cancel_reason, token,
		confirmed_at, calendar_event_id, sheet_row_ref, created_at, updated_at`

const uniqueViolation = "23505"

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (id, name, email, scheduled_at, description, status, token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err := r.db.Exec(ctx, query,
		appt.ID,
		appt.Name,
		appt.Email,
		appt.ScheduledAt,
		appt.Description,
		string(appt.Status),
		appt.Token,
		appt.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateToken
		}
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE token = $1`
	return r.getOne(ctx, query, token)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) ListByEmail(ctx context.Context, email string) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE lower(email) = lower($1)
		ORDER BY scheduled_at ASC
	`
	rows, err := r.db.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	return out, nil
}

// Apply relies on the row-level UPDATE ... WHERE status = $from to serialize
// racing confirm/cancel requests for the same token.
func (r *PostgresRepository) Apply(ctx context.Context, token string, t Transition) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $3,
			cancel_reason = CASE WHEN $3::text = 'cancelled' THEN $4 ELSE cancel_reason END,
			confirmed_at = COALESCE($5::timestamptz, confirmed_at),
			updated_at = $6
		WHERE token = $1 AND status = $2
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(r.db.QueryRow(ctx, query,
		token,
		string(t.From),
		string(t.To),
		t.CancelReason,
		t.ConfirmedAt,
		t.At,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errStaleStatus
		}
		return nil, fmt.Errorf("appointments: update status failed: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) SetExternalRefs(ctx context.Context, id, calendarEventID, sheetRowRef string) error {
	query := `
		UPDATE appointments
		SET calendar_event_id = COALESCE(NULLIF($2::text, ''), calendar_event_id),
			sheet_row_ref = COALESCE(NULLIF($3::text, ''), sheet_row_ref)
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, calendarEventID, sheetRowRef)
	if err != nil {
		return fmt.Errorf("appointments: update external refs failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	var status string
	if err := row.Scan(
		&appt.ID,
		&appt.Name,
		&appt.Email,
		&appt.ScheduledAt,
		&appt.Description,
		&status,
		&appt.CancelReason,
		&appt.Token,
		&appt.ConfirmedAt,
		&appt.CalendarEventID,
		&appt.SheetRowRef,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	return &appt, nil
}

var _ Repository = (*PostgresRepository)(nil)
